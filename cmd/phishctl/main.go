package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/config"
	"github.com/phishguard/phishguard/internal/core"
	"github.com/phishguard/phishguard/internal/logging"
	"github.com/phishguard/phishguard/internal/adapters/remote"
)

var (
	endpoint  string
	apiKey    string
	localOnly bool
	jsonOut   bool
	verbose   bool
	daemonURL string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "phishctl",
		Short: "Inspect and exercise the phishguard analysis pipeline",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.eml>",
		Short: "Classify an RFC822 message from disk",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&endpoint, "endpoint", "", "classification service endpoint (defaults to config)")
	analyzeCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the classification service")
	analyzeCmd.Flags().BoolVar(&localOnly, "local-only", false, "skip the remote service and use the heuristic scorer")
	analyzeCmd.Flags().BoolVar(&jsonOut, "json", false, "print the raw result as JSON")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the running daemon's statistics snapshot",
		RunE:  runStats,
	}
	statsCmd.Flags().StringVar(&daemonURL, "daemon", "http://127.0.0.1:8976", "daemon base URL")

	rootCmd.AddCommand(analyzeCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger, err := logging.InitConsoleLogger(verbose, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	apiCfg, err := cfg.GetAPI()
	if err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}
	if endpoint != "" {
		apiCfg.Endpoint = endpoint
	}
	if apiKey != "" {
		apiCfg.Key = apiKey
	}

	record, err := readEmailRecord(args[0])
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	features := core.ExtractFeatures(record)

	started := time.Now()
	var result *core.AnalysisResult
	if localOnly {
		result = core.ScoreLocally(features)
	} else {
		session := core.NewSessionContext(nil, logger)
		client := remote.NewClient(
			apiCfg.Endpoint,
			apiCfg.Key,
			apiCfg.DemoKey,
			session,
			logger,
			nil,
			apiCfg.MaxAttempts,
			apiCfg.BaseDelay,
			apiCfg.Timeout,
		)

		result, err = client.Classify(cmd.Context(), features, record)
		if err != nil {
			if errors.Is(err, core.ErrAuthExpired) {
				logger.Warn("Credentials rejected, using local scorer")
			} else {
				logger.Warn("Remote classification failed, using local scorer", zap.Error(err))
			}
			result = core.ScoreLocally(features)
		}
	}
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", record.Sender)
	fmt.Printf("Subject: %s\n", record.Subject)
	fmt.Printf("Links: %d (%d external)\n", features.NumLinks, features.NumExternalLinks)
	fmt.Printf("Attachments: %d\n", len(record.Attachments))

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Prediction: %s\n", result.Prediction)
	fmt.Printf("Threat: %t\n", result.Threat)
	fmt.Printf("Confidence: %.4f\n", result.Confidence)
	fmt.Printf("Threat level: %s\n", result.ThreatLevel)
	if result.ThreatType != "" {
		fmt.Printf("Threat type: %s\n", result.ThreatType)
	}
	fmt.Printf("Model: %s (fallback: %t)\n", result.ModelVersion, result.Fallback)
	for _, indicator := range result.Indicators {
		fmt.Printf("  - %s\n", indicator)
	}
	fmt.Printf("Processing time: %dms\n", result.ProcessingTimeMs)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, daemonURL+"/api/stats", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	var snapshot core.StatisticsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}

	fmt.Printf("Total scanned:      %d\n", snapshot.TotalScanned)
	fmt.Printf("Threats detected:   %d\n", snapshot.ThreatsDetected)
	fmt.Printf("Emails quarantined: %d\n", snapshot.EmailsQuarantined)
	if !snapshot.LastScan.IsZero() {
		fmt.Printf("Last scan:          %s\n", snapshot.LastScan.Format(time.RFC3339))
	}
	for provider, ps := range snapshot.ProviderStats {
		fmt.Printf("  %-10s scanned=%d threats=%d\n", provider, ps.Scanned, ps.Threats)
	}
	return nil
}
