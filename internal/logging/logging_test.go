package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCLIDefaultsToWarn(t *testing.T) {
	logger, err := NewCLI("")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger, err = NewCLI("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = NewCLI("chatty")
	assert.Error(t, err)
}

func TestNewDaemonWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewDaemon(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger.WithField("account", 2).Info("ping succeeded")
	logger.Debug("hidden")
	out := buf.String()
	assert.Contains(t, out, `msg="ping succeeded"`)
	assert.Contains(t, out, "account=2")
	assert.NotContains(t, out, "hidden")
}

func TestOpenLogFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	for _, line := range []string{"one\n", "two\n"} {
		f, err := OpenLogFile(path)
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}
