package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctoken/internal/config"
)

func TestAuditKeepsWarnings(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogConfig{
		Level:     "info",
		File:      filepath.Join(dir, "ctoken.log"),
		AuditFile: filepath.Join(dir, "audit", "audit.log"),
	}
	var console bytes.Buffer
	logger, closer, err := New(cfg, &console)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("deposited")
	logger.Warn("proof context left open")
	require.NoError(t, logger.Sync())
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "deposited")
	assert.NotContains(t, console.String(), "hidden")

	main, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(main), "deposited")

	audit, err := os.ReadFile(cfg.AuditFile)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "proof context left open")
	assert.NotContains(t, string(audit), "deposited")
}

func TestBadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
