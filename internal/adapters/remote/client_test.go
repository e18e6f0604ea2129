package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// recordingHandler captures requests and plays back a scripted sequence of
// responses, repeating the last one when the script runs out.
type recordingHandler struct {
	mu        sync.Mutex
	requests  []*http.Request
	authWas   []string
	bodies    [][]byte
	responses []scripted
}

type scripted struct {
	status int
	body   string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	h.requests = append(h.requests, r)
	h.authWas = append(h.authWas, r.Header.Get("Authorization"))
	h.bodies = append(h.bodies, raw)

	idx := len(h.requests) - 1
	if idx >= len(h.responses) {
		idx = len(h.responses) - 1
	}
	response := h.responses[idx]
	w.WriteHeader(response.status)
	_, _ = w.Write([]byte(response.body))
}

func (h *recordingHandler) requestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *recordingHandler) lastAuth() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authWas[len(h.authWas)-1]
}

func newTestClient(t *testing.T, endpoint, apiKey string, session *core.SessionContext) *Client {
	t.Helper()
	if session == nil {
		session = core.NewSessionContext(nil, zap.NewNop())
	}
	return NewClient(endpoint, apiKey, "demo-key-2024", session, zap.NewNop(), nil,
		3, time.Millisecond, 5*time.Second)
}

func sampleRecord() *core.EmailRecord {
	return &core.EmailRecord{
		Sender:    "alerts@secure-bank.xyz",
		Recipient: "victim@example.com",
		Subject:   "Urgent: verify your account",
		BodyText:  "Click http://bit.ly/x now",
		Timestamp: time.Now(),
		Provider:  "gmail",
	}
}

func TestClassifySuccessCanonicalResponse(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK,
		`{"prediction":"phish","confidence":0.93,"threat_level":"critical","threat_type":"credential_phishing","model_version":"xgb-2.1","indicators":["Suspicious TLD"],"processing_id":"abc-123"}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	result, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.NoError(t, err)
	assert.True(t, result.Threat)
	assert.Equal(t, 0.93, result.Confidence)
	assert.Equal(t, "CRITICAL", result.ThreatLevel)
	assert.Equal(t, "xgb-2.1", result.ModelVersion)
	assert.Equal(t, "abc-123", result.ProcessingID)
	assert.False(t, result.Fallback)
	assert.Equal(t, 1, handler.requestCount())
	assert.Equal(t, "Bearer key-1", handler.lastAuth())
}

func TestClassifyNormalizesLegacyFieldNames(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK,
		`{"is_phishing":true,"confidence_score":0.75}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	result, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.NoError(t, err)
	assert.Equal(t, core.PredictionPhish, result.Prediction)
	assert.Equal(t, 0.75, result.Confidence)
	assert.Equal(t, core.ThreatLevelHigh, result.ThreatLevel, "missing threat_level is derived from confidence")
	assert.Equal(t, "remote", result.ModelVersion)
	assert.NotEmpty(t, result.ProcessingID)
}

func TestClassifyFallsBackToDemoKey(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK,
		`{"prediction":"legit","confidence":0.1}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "", nil)
	record := sampleRecord()
	_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.NoError(t, err)
	assert.Equal(t, "Bearer demo-key-2024", handler.lastAuth())
}

func TestClassifyPrefersSessionToken(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK,
		`{"prediction":"legit","confidence":0.1}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	session := core.NewSessionContext(nil, zap.NewNop())
	session.Set(context.Background(), &core.Credentials{Token: "sess-tok", UserID: "u-9"})

	client := newTestClient(t, server.URL, "key-1", session)
	record := sampleRecord()
	_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.NoError(t, err)
	assert.Equal(t, "Bearer sess-tok", handler.lastAuth())

	var payload struct {
		Email struct {
			UserID string `json:"user_id"`
		} `json:"email"`
	}
	require.NoError(t, json.Unmarshal(handler.bodies[0], &payload))
	assert.Equal(t, "u-9", payload.Email.UserID, "session user id rides along in the request")
}

func TestClassifyUnauthorizedClearsSessionWithoutRetry(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusUnauthorized, `{}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	session := core.NewSessionContext(nil, zap.NewNop())
	session.Set(context.Background(), &core.Credentials{Token: "stale", UserID: "u-9"})

	client := newTestClient(t, server.URL, "key-1", session)
	record := sampleRecord()
	_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.ErrorIs(t, err, core.ErrAuthExpired)
	assert.Equal(t, 1, handler.requestCount(), "auth expiry is never retried")
	_, hasSession := session.Credentials()
	assert.False(t, hasSession, "stale session is cleared immediately")
}

func TestClassifyRateLimitedExhaustsAttempts(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusTooManyRequests, `{}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.ErrorIs(t, err, core.ErrRateLimited)
	assert.Equal(t, 3, handler.requestCount())
}

func TestClassifyRetriesServerErrorsThenSucceeds(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{
		{http.StatusInternalServerError, `boom`},
		{http.StatusBadGateway, `boom`},
		{http.StatusOK, `{"prediction":"phish","confidence":0.91}`},
	}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	result, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.NoError(t, err)
	assert.True(t, result.Threat)
	assert.Equal(t, 3, handler.requestCount())
}

func TestClassifyServerErrorsExhaustRetries(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusInternalServerError, `boom`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)

	require.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.Equal(t, 3, handler.requestCount())
}

func TestClassifyMalformedBodyIsNotRetried(t *testing.T) {
	for _, body := range []string{
		`not json at all`,
		`{"threat_level":"HIGH"}`,
		`{"prediction":"phish"}`,
	} {
		handler := &recordingHandler{responses: []scripted{{http.StatusOK, body}}}
		server := httptest.NewServer(handler)

		client := newTestClient(t, server.URL, "key-1", nil)
		record := sampleRecord()
		_, err := client.Classify(context.Background(), core.ExtractFeatures(record), record)
		server.Close()

		require.ErrorIs(t, err, core.ErrMalformedResponse, "body %q", body)
		assert.Equal(t, 1, handler.requestCount(), "malformed responses are terminal")
	}
}

func TestBackoffDelaySchedule(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(time.Second, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(time.Second, 2))
	assert.Equal(t, 3*time.Second, backoffDelay(time.Second, 3))
}

func TestFetchStats(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK,
		`{"total_scanned":120,"threats_detected":14,"emails_quarantined":3}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	snapshot, err := client.FetchStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(120), snapshot.TotalScanned)
	assert.Equal(t, int64(14), snapshot.ThreatsDetected)
	assert.Equal(t, int64(3), snapshot.EmailsQuarantined)
}

func TestFetchStatsUnauthorizedClearsSession(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusUnauthorized, `{}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	session := core.NewSessionContext(nil, zap.NewNop())
	session.Set(context.Background(), &core.Credentials{Token: "stale", UserID: "u-9"})

	client := newTestClient(t, server.URL, "", session)
	_, err := client.FetchStats(context.Background())

	require.ErrorIs(t, err, core.ErrAuthExpired)
	_, hasSession := session.Credentials()
	assert.False(t, hasSession)
}

func TestReportFalsePositive(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusOK, `{}`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	result := &core.AnalysisResult{Prediction: core.PredictionPhish, Threat: true, Confidence: 0.9}

	require.NoError(t, client.ReportFalsePositive(context.Background(), record, result))

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(handler.bodies[0], &payload))
	assert.Contains(t, payload, "emailData")
	assert.Contains(t, payload, "result")
	assert.Contains(t, payload, "provider")
}

func TestReportFalsePositiveServerError(t *testing.T) {
	handler := &recordingHandler{responses: []scripted{{http.StatusInternalServerError, `boom`}}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL, "key-1", nil)
	record := sampleRecord()
	err := client.ReportFalsePositive(context.Background(), record, &core.AnalysisResult{})
	assert.Error(t, err)
}
