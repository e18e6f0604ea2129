// Package remote implements the resilient HTTP client for the external
// classification service: auth-header selection, bounded timeouts, bounded
// retry with linear backoff, and rate-limit and auth-expiry handling.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
	"github.com/phishguard/phishguard/internal/metrics"
)

// Client talks to the classification service. It fails only by exhausting
// retries or on auth expiry; the orchestrator decides whether to fall back.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	demoKey    string
	session    *core.SessionContext
	logger     *zap.Logger
	metrics    *metrics.Metrics

	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
}

// NewClient creates a classification service client.
func NewClient(
	endpoint string,
	apiKey string,
	demoKey string,
	session *core.SessionContext,
	logger *zap.Logger,
	m *metrics.Metrics,
	maxAttempts int,
	baseDelay time.Duration,
	attemptTimeout time.Duration,
) *Client {
	return &Client{
		httpClient:     &http.Client{},
		endpoint:       strings.TrimRight(endpoint, "/"),
		apiKey:         apiKey,
		demoKey:        demoKey,
		session:        session,
		logger:         logger,
		metrics:        m,
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		attemptTimeout: attemptTimeout,
	}
}

// analyzeRequest is the wire shape of POST /analyze.
type analyzeRequest struct {
	Features *core.FeatureVector `json:"features"`
	Email    analyzeEmail        `json:"email"`
}

type analyzeEmail struct {
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	UserID    string    `json:"user_id,omitempty"`
}

// serviceResponse tolerates the field-name variants the service has shipped
// over time.
type serviceResponse struct {
	Prediction      string   `json:"prediction"`
	IsPhishing      *bool    `json:"is_phishing"`
	Confidence      *float64 `json:"confidence"`
	ConfidenceScore *float64 `json:"confidence_score"`
	ThreatLevel     string   `json:"threat_level"`
	ThreatType      string   `json:"threat_type"`
	ModelVersion    string   `json:"model_version"`
	Indicators      []string `json:"indicators"`
	ProcessingID    string   `json:"processing_id"`
}

type remoteStats struct {
	TotalScanned      int64 `json:"total_scanned"`
	ThreatsDetected   int64 `json:"threats_detected"`
	EmailsQuarantined int64 `json:"emails_quarantined"`
}

// backoffDelay is the pure backoff schedule: baseDelay multiplied by the
// 1-based attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// authToken selects the bearer token for an attempt: session token if
// present, else the configured API key, else the fixed demo key.
func (c *Client) authToken() (token, source string) {
	if creds, ok := c.session.Credentials(); ok {
		return creds.Token, "session"
	}
	if c.apiKey != "" {
		return c.apiKey, "api_key"
	}
	return c.demoKey, "demo"
}

// Classify submits a feature vector and email summary for classification.
func (c *Client) Classify(ctx context.Context, features *core.FeatureVector, record *core.EmailRecord) (*core.AnalysisResult, error) {
	body := record.BodyText
	if body == "" {
		body = record.BodyHTML
	}

	payload := analyzeRequest{
		Features: features,
		Email: analyzeEmail{
			Subject:   record.Subject,
			Sender:    record.Sender,
			Recipient: record.Recipient,
			Body:      body,
			Timestamp: record.Timestamp,
			Provider:  record.Provider,
		},
	}
	if creds, ok := c.session.Credentials(); ok {
		payload.Email.UserID = creds.UserID
	}

	encoded, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyze request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.metrics != nil {
			c.metrics.RemoteAttempts.Inc()
		}

		result, retryable, err := c.attempt(ctx, encoded)
		if err == nil {
			return result, nil
		}
		if c.metrics != nil {
			c.metrics.RemoteFailures.Inc()
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		delay := backoffDelay(c.baseDelay, attempt)
		c.logger.Debug("Retrying classification",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("classification aborted: %w", ctx.Err())
		}
	}

	return nil, lastErr
}

// attempt issues a single classification call. The second return value
// reports whether the failure is retryable under the backoff schedule.
func (c *Client) attempt(ctx context.Context, encoded []byte) (*core.AnalysisResult, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	token, source := c.authToken()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(encoded))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", core.ErrRetriesExhausted, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Stored credentials are stale. Clear them immediately and surface
		// the condition; retrying with the same token cannot succeed.
		if source == "session" {
			c.session.Clear(ctx)
		}
		c.logger.Warn("Classification service rejected credentials",
			zap.String("auth_source", source))
		return nil, false, core.ErrAuthExpired

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, core.ErrRateLimited

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, true, fmt.Errorf("%w: service returned %d", core.ErrRetriesExhausted, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", core.ErrRetriesExhausted, err)
	}

	result, err := normalizeResponse(raw)
	if err != nil {
		// Malformed 2xx bodies are not retried; the orchestrator falls back.
		return nil, false, err
	}
	return result, false, nil
}

// normalizeResponse reconciles the service's field-name variants into the
// canonical AnalysisResult shape.
func normalizeResponse(raw []byte) (*core.AnalysisResult, error) {
	var parsed serviceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	prediction := parsed.Prediction
	if prediction == "" {
		if parsed.IsPhishing == nil {
			return nil, fmt.Errorf("%w: no prediction field", core.ErrMalformedResponse)
		}
		if *parsed.IsPhishing {
			prediction = core.PredictionPhish
		} else {
			prediction = core.PredictionLegit
		}
	}

	var confidence float64
	switch {
	case parsed.Confidence != nil:
		confidence = *parsed.Confidence
	case parsed.ConfidenceScore != nil:
		confidence = *parsed.ConfidenceScore
	default:
		return nil, fmt.Errorf("%w: no confidence field", core.ErrMalformedResponse)
	}

	threatLevel := strings.ToUpper(parsed.ThreatLevel)
	if threatLevel == "" {
		threatLevel = core.BucketThreatLevel(confidence)
	}

	modelVersion := parsed.ModelVersion
	if modelVersion == "" {
		modelVersion = "remote"
	}

	processingID := parsed.ProcessingID
	if processingID == "" {
		processingID = uuid.NewString()
	}

	return &core.AnalysisResult{
		Prediction:   prediction,
		Threat:       prediction == core.PredictionPhish,
		Confidence:   confidence,
		ThreatLevel:  threatLevel,
		ThreatType:   parsed.ThreatType,
		ModelVersion: modelVersion,
		Indicators:   parsed.Indicators,
		Fallback:     false,
		ProcessingID: processingID,
		AnalyzedAt:   time.Now(),
	}, nil
}

// FetchStats pulls authoritative aggregate counters from the dashboard.
func (c *Client) FetchStats(ctx context.Context) (*core.StatisticsSnapshot, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	token, source := c.authToken()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.endpoint+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if source == "session" {
			c.session.Clear(ctx)
		}
		return nil, core.ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}

	var parsed remoteStats
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	return &core.StatisticsSnapshot{
		TotalScanned:      parsed.TotalScanned,
		ThreatsDetected:   parsed.ThreatsDetected,
		EmailsQuarantined: parsed.EmailsQuarantined,
	}, nil
}

// ReportFalsePositive notifies the service of a misclassification. The
// response body is irrelevant; only transport-level failure is reported.
func (c *Client) ReportFalsePositive(ctx context.Context, record *core.EmailRecord, result *core.AnalysisResult) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"emailData": record,
		"result":    result,
		"provider":  record.Provider,
		"timestamp": time.Now(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode false-positive report: %w", err)
	}

	token, _ := c.authToken()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint+"/report-false-positive", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build false-positive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to report false positive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("false-positive endpoint returned %d", resp.StatusCode)
	}
	return nil
}
