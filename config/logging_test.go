package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/voxphys/parameter"
)

// restoreStdLogger undoes SetupLogging's changes to the standard logger
func restoreStdLogger(t *testing.T) {
	out, flags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(out)
		log.SetFlags(flags)
	})
}

func TestSetupLogging_DisabledByDefault(t *testing.T) {
	restoreStdLogger(t)
	t.Chdir(t.TempDir())

	logger, logFile, err := SetupLogging(Default().Log)
	require.NoError(t, err)
	assert.Nil(t, logFile)
	assert.Equal(t, io.Discard, logger.Writer())
	assert.Equal(t, io.Discard, log.Writer())

	_, err = os.Stat(parameter.LogDir)
	assert.True(t, os.IsNotExist(err), "log dir created while disabled")
}

func TestSetupLogging_EnabledWithDebug(t *testing.T) {
	restoreStdLogger(t)
	t.Chdir(t.TempDir())

	logger, logFile, err := SetupLogging(LogSection{Debug: true})
	require.NoError(t, err)
	require.NotNil(t, logFile)
	defer logFile.Close()

	logPath := filepath.Join(parameter.LogDir, parameter.LogFileName)
	_, err = os.Stat(logPath)
	require.NoError(t, err)

	logger.Println("test log message")
	log.Println("standard logger message")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test log message")
	assert.Contains(t, string(data), "standard logger message")

	assert.NotEqual(t, os.Stdout, log.Writer())
	assert.NotEqual(t, os.Stderr, log.Writer())
}

func TestSetupLogging_CustomFile(t *testing.T) {
	restoreStdLogger(t)
	t.Chdir(t.TempDir())

	_, logFile, err := SetupLogging(LogSection{Debug: true, File: "bench.log"})
	require.NoError(t, err)
	defer logFile.Close()

	_, err = os.Stat(filepath.Join(parameter.LogDir, "bench.log"))
	assert.NoError(t, err)
}

func TestSetupLogging_Rotation(t *testing.T) {
	restoreStdLogger(t)
	t.Chdir(t.TempDir())

	require.NoError(t, os.MkdirAll(parameter.LogDir, 0755))
	logPath := filepath.Join(parameter.LogDir, parameter.LogFileName)
	require.NoError(t, os.WriteFile(logPath, make([]byte, parameter.MaxLogSize+1), 0644))

	_, logFile, err := SetupLogging(LogSection{Debug: true})
	require.NoError(t, err)
	defer logFile.Close()

	entries, err := os.ReadDir(parameter.LogDir)
	require.NoError(t, err)
	rotated := false
	for _, e := range entries {
		if e.Name() != parameter.LogFileName && filepath.Ext(e.Name()) == ".log" {
			rotated = true
		}
	}
	assert.True(t, rotated, "expected a rotated log file")

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(parameter.MaxLogSize))
}
