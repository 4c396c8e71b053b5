package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a temp database and returns
// combined output.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tidelog.db")
}

// seedCLI logs a handful of events through the log command itself.
func seedCLI(t *testing.T, dbPath string) {
	t.Helper()
	entries := [][]string{
		{"log", "--type", "file_change", "--source", "file_watcher",
			"--project", "proj-1", "--data", `{"path":"notes/a.md","action":"modified"}`},
		{"log", "--type", "db_change", "--source", "database",
			"--data", `{"table":"notes","operation":"update","row_count":1}`},
		{"log", "--type", "sync_operation", "--source", "sync_engine", "--severity", "warning",
			"--correlation", "op-1", "--data", `{"success":false,"detail":"connection refused"}`},
	}
	for _, args := range entries {
		_, err := runCLI(t, dbPath, args...)
		require.NoError(t, err)
	}
}

func TestLogAndList(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "events", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "file_change")
	assert.Contains(t, out, "db_change")
	assert.Contains(t, out, "3 event(s)")
}

func TestListFilterByType(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "events", "list", "--type", "sync_operation")
	require.NoError(t, err)
	assert.Contains(t, out, "sync_operation")
	assert.NotContains(t, out, "file_change")
	assert.Contains(t, out, "1 event(s)")
}

func TestListRejectsBadFilter(t *testing.T) {
	db := testDB(t)

	_, err := runCLI(t, db, "events", "list", "--type", "teleport")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = runCLI(t, db, "events", "list", "--since", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSearchFindsPayloadText(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "events", "search", "connection refused")
	require.NoError(t, err)
	assert.Contains(t, out, "sync_operation")
	assert.Contains(t, out, "1 event(s)")

	out, err = runCLI(t, db, "events", "search", "no such text")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found")
}

func TestStatsJSONEnvelope(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "--format", "json", "events", "stats")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, data["total_events"])
}

func TestExportToFile(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)
	outPath := filepath.Join(t.TempDir(), "events.csv")

	out, err := runCLI(t, db, "events", "export", "--export-format", "csv", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file_change")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	db := testDB(t)

	_, err := runCLI(t, db, "events", "export", "--export-format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBackupLifecycle(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "--format", "json", "backup", "create", "--backup-type", "full")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.Equal(t, "ok", response.Status)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	backupID, _ := data["id"].(string)
	require.NotEmpty(t, backupID)

	out, err = runCLI(t, db, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, backupID)

	out, err = runCLI(t, db, "backup", "verify", backupID)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")

	_, err = runCLI(t, db, "backup", "verify", "bk-missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestReplayCreateValidateRun(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "--format", "json", "replay", "create",
		"--name", "audit", "--mode", "dry_run")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	sessionID, _ := data["session_id"].(string)
	require.NotEmpty(t, sessionID)

	out, err = runCLI(t, db, "replay", "validate", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "runnable")

	out, err = runCLI(t, db, "replay", "start", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "3 processed")

	out, err = runCLI(t, db, "replay", "list")
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)
}

func TestReplayValidateWarnsOnEmptyFilter(t *testing.T) {
	db := testDB(t)

	out, err := runCLI(t, db, "replay", "create", "--name", "empty", "--source", "nobody")
	require.NoError(t, err)
	sessionID := lastField(out)

	out, err = runCLI(t, db, "replay", "validate", sessionID)
	require.NoError(t, err, "warnings must not block")
	assert.Contains(t, out, "NO_EVENTS")
	assert.Contains(t, out, "runnable")
}

func TestReplayCancelPendingSession(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "replay", "create", "--name", "doomed")
	require.NoError(t, err)
	sessionID := lastField(out)

	out, err = runCLI(t, db, "replay", "cancel", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")

	_, err = runCLI(t, db, "replay", "start", sessionID)
	require.Error(t, err, "cancelled session must not start")
}

func TestRecoverStatsFromLog(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "--format", "json", "recover", "stats")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, data["sync_failures"])
	assert.EqualValues(t, 0, data["attempts"])
	assert.Equal(t, "healthy", data["overall_status"])
}

func TestRollbackListEmpty(t *testing.T) {
	db := testDB(t)

	out, err := runCLI(t, db, "rollback", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No rollback points")
}

func TestRollbackCreateAndRestore(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	out, err := runCLI(t, db, "--format", "json", "rollback", "create",
		"--name", "pre-change", "--operation", "op-1")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.Equal(t, "ok", response.Status)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	pointID, _ := data["id"].(string)
	require.NotEmpty(t, pointID)

	out, err = runCLI(t, db, "rollback", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pre-change")
	assert.Contains(t, out, "active")

	out, err = runCLI(t, db, "rollback", "restore", "--id", pointID)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	_, err = runCLI(t, db, "rollback", "restore", "--id", "rbp-missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEventsCleanup(t *testing.T) {
	db := testDB(t)
	seedCLI(t, db)

	// Default retention keeps recent events; nothing should be removed.
	out, err := runCLI(t, db, "events", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 event(s)")
}

// lastField extracts the trailing token of single-line command output,
// which is where create-style commands print the new ID.
func lastField(out string) string {
	fields := bytes.Fields([]byte(out))
	if len(fields) == 0 {
		return ""
	}
	return string(fields[len(fields)-1])
}
