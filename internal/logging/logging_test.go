// ABOUTME: Tests for logger setup
// ABOUTME: Verifies file output, level filtering and std log redirection
package logging

import (
	stdlog "log"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()

	logger := log.Logger
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
		stdlog.SetOutput(os.Stderr)
		stdlog.SetFlags(stdlog.LstdFlags)
	})
}

func TestSetupWritesFile(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "listenbuddy.log")

	closer, err := Setup(Options{App: "listenbuddy", Level: "info", File: path})
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello file")
	log.Debug().Msg("filtered out")
	stdlog.Printf("from std log")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, `"message":"hello file"`)
	assert.Contains(t, content, `"app":"listenbuddy"`)
	assert.Contains(t, content, `"component":"test"`)
	assert.Contains(t, content, "from std log")
	assert.NotContains(t, content, "filtered out")
}

func TestSetupLevel(t *testing.T) {
	restoreGlobals(t)

	_, err := Setup(Options{Level: "DEBUG"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	_, err = Setup(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestSetupBadFile(t *testing.T) {
	restoreGlobals(t)

	_, err := Setup(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestSetupWithoutOutputs(t *testing.T) {
	restoreGlobals(t)

	closer, err := Setup(Options{})
	require.NoError(t, err)
	log.Info().Msg("discarded")
	assert.NoError(t, closer.Close())
}
