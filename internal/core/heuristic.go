package core

import (
	"time"

	"github.com/google/uuid"
)

// LocalModelVersion tags results produced by the heuristic fallback scorer.
const LocalModelVersion = "local-heuristic-v1"

// heuristicThreshold is the strict boundary above which the local scorer
// classifies phishing.
const heuristicThreshold = 0.5

// Weighted indicator set of the fallback scorer. The weights are tuned to
// keep a single weak signal below the classification boundary.
const (
	weightSuspiciousTLD        = 0.30
	weightUrgentLanguage       = 0.20
	weightFinancialTerms       = 0.20
	weightShortenedURLs        = 0.25
	weightDisplayNameMismatch  = 0.35
	weightSuspiciousAttachment = 0.40
	weightManyExternalLinks    = 0.15
	weightAuthFailures         = 0.20
)

// externalLinkAlarm is the external-link count above which the link-volume
// indicator fires.
const externalLinkAlarm = 5

// ScoreLocally classifies a feature vector with the deterministic heuristic
// fallback. It is total: it never fails, which makes it the guaranteed
// terminal of the analysis pipeline when the network is unavailable.
func ScoreLocally(features *FeatureVector) *AnalysisResult {
	var confidence float64
	var indicators []string

	if features.HasSuspiciousTLD {
		confidence += weightSuspiciousTLD
		indicators = append(indicators, "Suspicious top-level domain in links")
	}
	if features.HasUrgentKeywords {
		confidence += weightUrgentLanguage
		indicators = append(indicators, "Urgent language in subject or body")
	}
	if features.HasFinancialKeywords {
		confidence += weightFinancialTerms
		indicators = append(indicators, "Financial terms present")
	}
	if features.HasShortenedURLs {
		confidence += weightShortenedURLs
		indicators = append(indicators, "Shortened URLs present")
	}
	if features.HasDisplayNameMismatch {
		confidence += weightDisplayNameMismatch
		indicators = append(indicators, "Display name does not match sender domain")
	}
	if features.HasSuspiciousAttachments {
		confidence += weightSuspiciousAttachment
		indicators = append(indicators, "Suspicious attachment type")
	}
	if features.NumExternalLinks > externalLinkAlarm {
		confidence += weightManyExternalLinks
		indicators = append(indicators, "High external link count")
	}
	if !features.HasSPFPass && !features.HasDKIMPass {
		confidence += weightAuthFailures
		indicators = append(indicators, "SPF check failed", "DKIM verification failed")
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	threat := confidence > heuristicThreshold
	prediction := PredictionLegit
	if threat {
		prediction = PredictionPhish
	}

	result := &AnalysisResult{
		Prediction:   prediction,
		Threat:       threat,
		Confidence:   confidence,
		ThreatLevel:  BucketThreatLevel(confidence),
		ModelVersion: LocalModelVersion,
		Indicators:   indicators,
		Fallback:     true,
		ProcessingID: uuid.NewString(),
		AnalyzedAt:   time.Now(),
	}
	if threat {
		result.ThreatType = inferThreatType(features)
	}
	return result
}

// inferThreatType derives a coarse threat category from the fired signals
// when the remote service supplied none.
func inferThreatType(features *FeatureVector) string {
	switch {
	case features.HasSuspiciousAttachments:
		return "malware_delivery"
	case features.HasFinancialKeywords:
		return "credential_phishing"
	default:
		return "phishing"
	}
}
