package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/database"
	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := "env: test\ndatabase:\n  driver: sqlite\n  path: " + filepath.Join(dir, "bb.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func seedAssets(t *testing.T, cfgPath string, rows ...models.AudioAssetModel) {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	db, err := database.Connect(cfg, true)
	require.NoError(t, err)
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func asset(key audiopath.Key, path string) models.AudioAssetModel {
	return models.AudioAssetModel{
		BookID:     key.BookID,
		ChunkIndex: key.ChunkIndex,
		Level:      string(key.Level),
		VoiceID:    key.VoiceID,
		Path:       path,
		TextHash:   "h",
	}
}

func runCtl(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuditPathsClean(t *testing.T) {
	cfgPath := writeConfig(t)
	k1 := audiopath.Key{BookID: "alice", ChunkIndex: 0, Level: cefr.A1, VoiceID: "nova"}
	k2 := audiopath.Key{BookID: "bob", ChunkIndex: 0, Level: cefr.A1, VoiceID: "nova"}
	seedAssets(t, cfgPath, asset(k1, audiopath.PathFor(k1)), asset(k2, audiopath.PathFor(k2)))

	out, err := runCtl("--config", cfgPath, "audit-paths")
	require.NoError(t, err)
	assert.Contains(t, out, `"assets": 2`)
}

func TestAuditPathsReportsLegacyLayout(t *testing.T) {
	cfgPath := writeConfig(t)
	k := audiopath.Key{BookID: "alice", ChunkIndex: 0, Level: cefr.A1, VoiceID: "nova"}
	seedAssets(t, cfgPath, asset(k, "audio/A1/nova/chunk_0.mp3"))

	out, err := runCtl("--config", cfgPath, "audit-paths")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 stored paths differ")
	assert.Contains(t, out, "audio/A1/nova/chunk_0.mp3")
	assert.Contains(t, out, audiopath.PathFor(k))
}

func TestIngestRequiresArgs(t *testing.T) {
	_, err := runCtl("--config", writeConfig(t), "ingest", "only-id")
	assert.Error(t, err)
}
