package core

import (
	"time"
)

// Prediction labels returned by the analysis pipeline.
const (
	PredictionPhish = "phish"
	PredictionLegit = "legit"
	PredictionError = "error"
)

// Threat severity buckets, ordered from least to most severe.
const (
	ThreatLevelLow      = "LOW"
	ThreatLevelMedium   = "MEDIUM"
	ThreatLevelHigh     = "HIGH"
	ThreatLevelCritical = "CRITICAL"
)

// EmailRecord is the normalized representation of an email produced by a
// provider monitor. It is immutable once produced and lives for the duration
// of a single analysis call.
type EmailRecord struct {
	Sender      string    `json:"sender"`
	SenderName  string    `json:"sender_name"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	BodyHTML    string    `json:"body_html"`
	BodyText    string    `json:"body_text"`
	Timestamp   time.Time `json:"timestamp"`
	IsReply     bool      `json:"is_reply"`
	Attachments []string  `json:"attachments"`
	IsUnread    bool      `json:"is_unread"`
	SPFPass     bool      `json:"spf_pass"`
	DKIMPass    bool      `json:"dkim_pass"`
	URLs        []string  `json:"urls"`
	Provider    string    `json:"provider"`
}

// FeatureVector is the deterministic transform of an EmailRecord. Field
// names on the wire match what the classification service was trained on.
type FeatureVector struct {
	HasSuspiciousTLD         bool    `json:"has_suspicious_tld"`
	HasDisplayNameMismatch   bool    `json:"has_display_name_mismatch"`
	SubjectLength            int     `json:"subject_length"`
	BodyLength               int     `json:"body_length"`
	HasUrgentKeywords        bool    `json:"has_urgent_keywords"`
	HasFinancialKeywords     bool    `json:"has_financial_keywords"`
	NumLinks                 int     `json:"num_links"`
	NumExternalLinks         int     `json:"num_external_links"`
	HasShortenedURLs         bool    `json:"has_shortened_urls"`
	HasSuspiciousAttachments bool    `json:"has_suspicious_attachments"`
	HTMLToTextRatio          float64 `json:"html_to_text_ratio"`
	HasHiddenText            bool    `json:"has_hidden_text"`
	NumImages                int     `json:"num_images"`
	IsReply                  bool    `json:"is_reply"`
	TimeOfDay                int     `json:"time_of_day"`
	HasSPFPass               bool    `json:"has_spf_pass"`
	HasDKIMPass              bool    `json:"has_dkim_pass"`
	IsUnread                 bool    `json:"is_unread"`
	Provider                 string  `json:"provider"`
}

// AnalysisResult is the canonical output of the analysis pipeline.
// Invariant: Threat == (Prediction == "phish").
type AnalysisResult struct {
	Prediction       string    `json:"prediction"`
	Threat           bool      `json:"threat"`
	Confidence       float64   `json:"confidence"`
	ThreatLevel      string    `json:"threat_level"`
	ThreatType       string    `json:"threat_type,omitempty"`
	ModelVersion     string    `json:"model_version"`
	Indicators       []string  `json:"indicators,omitempty"`
	Fallback         bool      `json:"fallback"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ProcessingID     string    `json:"processing_id,omitempty"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}

// CacheEntry holds a prior classification keyed by a content hash of the
// email's identifying fields, plus the time it was written.
type CacheEntry struct {
	Key       string
	Result    *AnalysisResult
	StoredAt  time.Time
	ExpiresAt time.Time
}

// ProviderStats is the per-provider scanned/threat counter pair.
type ProviderStats struct {
	Scanned int64 `json:"scanned"`
	Threats int64 `json:"threats"`
}

// StatisticsSnapshot is an immutable copy of the running counters, taken
// under the store's lock so callers never observe a torn read.
type StatisticsSnapshot struct {
	TotalScanned      int64                    `json:"total_scanned"`
	ThreatsDetected   int64                    `json:"threats_detected"`
	EmailsQuarantined int64                    `json:"emails_quarantined"`
	LastScan          time.Time                `json:"last_scan"`
	ProviderStats     map[string]ProviderStats `json:"provider_stats"`
}

// ScanEvent is one entry in the detection-event log (capped at 100).
type ScanEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	Threat      bool      `json:"threat"`
	Confidence  float64   `json:"confidence"`
	ThreatLevel string    `json:"threat_level"`
}

// AnalysisEvent is one entry in the richer classification log (capped at 50).
type AnalysisEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Provider  string          `json:"provider"`
	Sender    string          `json:"sender"`
	Subject   string          `json:"subject"`
	Result    *AnalysisResult `json:"result"`
}

// Credentials is an optional bearer session token plus user identifier.
// Presence gates dashboard sync; absence forces API-key or demo-key auth.
type Credentials struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Notification is delivered to the external notification sink when a threat
// is detected or a quarantine attempt fails.
type Notification struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Severity string   `json:"severity"`
	Actions  []string `json:"actions,omitempty"`
}

// QuarantineOutcome reports how a provider monitor handled a quarantine
// request: via its primary action control, a simulated fallback shortcut,
// or not at all.
type QuarantineOutcome struct {
	OK     bool   `json:"ok"`
	Method string `json:"method"` // "primary", "fallback" or "none"
}

// BucketThreatLevel maps a confidence score to a severity bucket. Used when
// the remote service omits an explicit threat level, and by the local scorer.
func BucketThreatLevel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return ThreatLevelCritical
	case confidence >= 0.7:
		return ThreatLevelHigh
	case confidence >= 0.5:
		return ThreatLevelMedium
	default:
		return ThreatLevelLow
	}
}
