package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelqc.log")

	require.NoError(t, Setup(LogConfig{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	l := WithFile("archive", "DOC001.zip")
	l.Info().Msg("extracted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"archive"`)
	assert.Contains(t, string(data), `"file":"DOC001.zip"`)
	assert.Contains(t, string(data), `"message":"extracted"`)
}

func TestSetup_InvalidLevel(t *testing.T) {
	assert.Error(t, Setup(LogConfig{Level: "loud", Output: "stderr"}))
}
