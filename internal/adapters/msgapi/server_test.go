package msgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/adapters/cache"
	"github.com/phishguard/phishguard/internal/core"
)

type stubClassifier struct {
	mu      sync.Mutex
	reports int
	result  *core.AnalysisResult
	err     error
}

func (c *stubClassifier) Classify(ctx context.Context, features *core.FeatureVector, record *core.EmailRecord) (*core.AnalysisResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	copied := *c.result
	return &copied, nil
}

func (c *stubClassifier) FetchStats(ctx context.Context) (*core.StatisticsSnapshot, error) {
	return &core.StatisticsSnapshot{}, nil
}

func (c *stubClassifier) ReportFalsePositive(ctx context.Context, record *core.EmailRecord, result *core.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports++
	return nil
}

func (c *stubClassifier) reportCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports
}

type serverFixture struct {
	server     *Server
	classifier *stubClassifier
	stats      *core.StatisticsStore
	session    *core.SessionContext
}

func newServerFixture(t *testing.T, classifier *stubClassifier) *serverFixture {
	t.Helper()

	logger := zap.NewNop()
	stats := core.NewStatisticsStore(nil, logger)
	session := core.NewSessionContext(nil, logger)

	orchestrator := core.NewOrchestrator(
		classifier,
		cache.NewMemoryCache(logger),
		stats,
		session,
		nil,
		nil,
		logger,
		nil,
		true,
		true,
		time.Hour,
		false,
		nil,
	)

	server := NewServer(orchestrator, stats, session, classifier, logger, nil, "127.0.0.1:0")
	return &serverFixture{server: server, classifier: classifier, stats: stats, session: session}
}

func postMessage(t *testing.T, fx *serverFixture, action string, data interface{}) (*httptest.ResponseRecorder, response) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(envelope{Action: action, Data: raw})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/message", bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	fx.server.handleMessage(recorder, req)

	var resp response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return recorder, resp
}

func phishEmailData() *core.EmailRecord {
	return &core.EmailRecord{
		Sender:    "alerts@secure-bank.xyz",
		Recipient: "victim@example.com",
		Subject:   "Urgent: verify your account",
		BodyText:  "Click http://bit.ly/x now",
		Timestamp: time.Now(),
		Provider:  "gmail",
	}
}

func TestHandleMessageInvalidEnvelope(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/message", bytes.NewReader([]byte("not json")))
	recorder := httptest.NewRecorder()
	fx.server.handleMessage(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleMessageUnknownAction(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	recorder, resp := postMessage(t, fx, "selfDestruct", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown action", resp.Error)
}

func TestAnalyzeEmailAction(t *testing.T) {
	classifier := &stubClassifier{result: &core.AnalysisResult{
		Prediction:  core.PredictionPhish,
		Threat:      true,
		Confidence:  0.92,
		ThreatLevel: core.ThreatLevelCritical,
	}}
	fx := newServerFixture(t, classifier)

	recorder, resp := postMessage(t, fx, actionAnalyzeEmail, phishEmailData())

	assert.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Threat)
	assert.Empty(t, resp.Error)
	assert.Equal(t, int64(1), fx.stats.Snapshot().TotalScanned)
}

func TestAnalyzeEmailActionEmptyRecord(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	recorder, resp := postMessage(t, fx, actionAnalyzeEmail, &core.EmailRecord{Provider: "gmail"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, resp.Success)
}

func TestAnalyzeEmailActionAuthExpired(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{err: core.ErrAuthExpired})

	recorder, resp := postMessage(t, fx, actionAnalyzeEmail, phishEmailData())

	assert.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, resp.Success, "a fallback result still counts as success")
	assert.Equal(t, "auth_expired", resp.Error)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Fallback)
}

func TestUpdateStatsAction(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	_, resp := postMessage(t, fx, actionUpdateStats, map[string]interface{}{
		"isThreat": true,
		"provider": "outlook",
	})

	require.True(t, resp.Success)
	snapshot := fx.stats.Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalScanned)
	assert.Equal(t, int64(1), snapshot.ThreatsDetected)
	assert.Equal(t, int64(1), snapshot.ProviderStats["outlook"].Threats)
}

func TestEmailQuarantinedAction(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	_, resp := postMessage(t, fx, actionEmailQuarantined, map[string]interface{}{
		"provider": "gmail",
		"email":    phishEmailData(),
	})

	require.True(t, resp.Success)
	assert.Equal(t, int64(1), fx.stats.Snapshot().EmailsQuarantined)
}

func TestReportFalsePositiveAction(t *testing.T) {
	classifier := &stubClassifier{}
	fx := newServerFixture(t, classifier)

	_, resp := postMessage(t, fx, actionReportFalsePositive, map[string]interface{}{
		"emailData": phishEmailData(),
		"result":    &core.AnalysisResult{Prediction: core.PredictionPhish},
		"provider":  "gmail",
	})

	require.True(t, resp.Success)
	require.Eventually(t, func() bool {
		return classifier.reportCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "report is forwarded asynchronously")
}

func TestSessionActions(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	recorder, resp := postMessage(t, fx, actionSetSession, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, resp.Success, "a session without a token is rejected")

	_, resp = postMessage(t, fx, actionSetSession, &core.Credentials{Token: "tok-1", UserID: "u-1"})
	require.True(t, resp.Success)
	creds, ok := fx.session.Credentials()
	require.True(t, ok)
	assert.Equal(t, "tok-1", creds.Token)

	_, resp = postMessage(t, fx, actionClearSession, map[string]string{})
	require.True(t, resp.Success)
	_, ok = fx.session.Credentials()
	assert.False(t, ok)
}

func TestStatsEndpoint(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})
	fx.stats.RecordExternal(context.Background(), true, "gmail")

	recorder := httptest.NewRecorder()
	fx.server.handleStats(recorder, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	var snapshot core.StatisticsSnapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.TotalScanned)
	assert.Equal(t, int64(1), snapshot.ThreatsDetected)
}

func TestHistoryEndpoint(t *testing.T) {
	classifier := &stubClassifier{result: &core.AnalysisResult{
		Prediction:  core.PredictionPhish,
		Threat:      true,
		Confidence:  0.92,
		ThreatLevel: core.ThreatLevelCritical,
	}}
	fx := newServerFixture(t, classifier)
	_, resp := postMessage(t, fx, actionAnalyzeEmail, phishEmailData())
	require.True(t, resp.Success)

	recorder := httptest.NewRecorder()
	fx.server.handleHistory(recorder, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	var payload struct {
		ScanHistory     []core.ScanEvent     `json:"scan_history"`
		AnalysisHistory []core.AnalysisEvent `json:"analysis_history"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Len(t, payload.ScanHistory, 1)
	assert.Equal(t, "alerts@secure-bank.xyz", payload.ScanHistory[0].Sender)
	require.Len(t, payload.AnalysisHistory, 1)
}

func TestHealthEndpoint(t *testing.T) {
	fx := newServerFixture(t, &stubClassifier{})

	recorder := httptest.NewRecorder()
	fx.server.handleHealth(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}
