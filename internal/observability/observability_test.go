package observability

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesModuleMetrics(t *testing.T) {
	RecordAgentSend("success", 1500*time.Millisecond)
	RecordAgentRetry()
	RecordAgentPoll()
	RecordToolCall("plan_survival_route", true)
	RecordTokenRequest("client-secret", false)
	RecordMapsRequest("geocode", 20*time.Millisecond, true)
	SetActiveSessions(2)
	RecordSessionCreated()
	RecordSessionExpired(1)
	RecordRejectedSend("busy")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `zombinator_agent_send_total{outcome="success"}`)
	assert.Contains(t, out, "zombinator_agent_retries_total")
	assert.Contains(t, out, `zombinator_token_requests_total{status="error",strategy="client-secret"}`)
	assert.Contains(t, out, `zombinator_maps_requests_total{operation="geocode",status="success"}`)
	assert.Contains(t, out, "zombinator_active_sessions 2")
	assert.Contains(t, out, `zombinator_rejected_sends_total{reason="busy"}`)
}

func TestAuditLog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, OpenAuditLog(path))
	defer CloseAuditLog()

	RecordAuthAudit(context.Background(), "credential_resolved", "managed-identity", AuditSuccess, map[string]interface{}{"interactive_fallback": false})
	RecordConversationAudit(context.Background(), "message_sent", "sess-1", AuditFailure, map[string]interface{}{"error": "agent is taking too long"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), `"category":"auth"`)
	assert.Contains(t, string(data), `"action":"credential_resolved"`)
	assert.Contains(t, string(data), `"actor":"sess-1"`)
	assert.Contains(t, string(data), `"outcome":"failure"`)
	assert.Contains(t, string(data), `"interactive_fallback":false`)
}

func TestAuditLog_FallsBackToProcessLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	require.NoError(t, CloseAuditLog())
	RecordConversationAudit(context.Background(), "conversation_reset", "sess-2", AuditSuccess, nil)

	assert.Contains(t, buf.String(), `"component":"audit"`)
	assert.Contains(t, buf.String(), `"action":"conversation_reset"`)
	assert.NotContains(t, buf.String(), "trace_id")
}
