package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCheck_ClientSecretWithoutTriple(t *testing.T) {
	cfgPath := writeConfig(t, "auth:\n  strategy: client-secret\n  client_id: only-the-id\n")

	_, err := runCLI(t, "--config", cfgPath, "auth", "check", "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestAuthCheck_InteractiveNotAllowed(t *testing.T) {
	cfgPath := writeConfig(t, "auth:\n  strategy: interactive\n")

	_, err := runCLI(t, "--config", cfgPath, "auth", "check", "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestAuthCheck_WritesAuditFile(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	cfgPath := writeConfig(t, "  audit_file: "+auditPath+"\nauth:\n  strategy: client-secret\n")

	_, err := runCLI(t, "--config", cfgPath, "auth", "check", "--timeout", "1s")
	require.Error(t, err)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"credential_resolved"`)
	assert.Contains(t, string(data), `"outcome":"failure"`)
}
