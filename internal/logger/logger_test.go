package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionWritesJSONWithService(t *testing.T) {
	log := New(Config{ServiceName: "edu-notify", Environment: "production", Level: "debug"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithField("component", "test").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "edu-notify", entry["service"])
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNewRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log := New(Config{Environment: "development", Level: "bogus", FilePath: path, MaxSizeMB: 1})
	log.Info("to file")

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
