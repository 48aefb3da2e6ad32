package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Session.PreemptiveGeneration)
	assert.True(t, cfg.Session.Speech.Pacing)
	assert.Equal(t, orderstore.BackendFile, cfg.Store.Backend)
	assert.Equal(t, orderstore.DefaultFilePath, cfg.Store.Path)
	assert.Equal(t, ProviderMock, cfg.Providers.Kind)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
logging:
  level: debug
  format: json
  common_fields:
    service: barista
server:
  addr: ":7000"
  max_sessions: 4
  admission_timeout: 2s
session:
  preemptive_generation: false
  turn:
    min_endpointing_delay: 300ms
    max_endpointing_delay: 4s
    interruption: deferred
  speech:
    pacing: false
store:
  backend: redis
  redis:
    addr: redis:6379
providers:
  script: demo.yaml
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "barista", cfg.Logging.CommonFields["service"])
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, DefaultMetricsAddr, cfg.Server.MetricsAddr)
	assert.False(t, cfg.Session.PreemptiveGeneration)
	assert.Equal(t, 300*time.Millisecond, cfg.Session.Turn.MinEndpointingDelay)
	assert.Equal(t, 4*time.Second, cfg.Session.Turn.MaxEndpointingDelay)
	assert.Equal(t, audio.InterruptionDeferred, cfg.Session.Turn.Interruption)
	assert.InDelta(t, audio.DefaultEndOfTurnThreshold, cfg.Session.Turn.EndOfTurnThreshold, 1e-9)
	assert.False(t, cfg.Session.Speech.Pacing)
	assert.Equal(t, orderstore.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "demo.yaml", cfg.Providers.Script)
	assert.Equal(t, ProviderMock, cfg.Providers.Kind)

	w := cfg.Worker()
	assert.Equal(t, 4, w.MaxSessions)
	assert.Equal(t, 2*time.Second, w.AdmissionTimeout)
	assert.False(t, w.Session.PreemptiveGeneration)
}

func TestParse_EmptyDocumentIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("server:\n  adress: \":1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adress")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"
	cfg.Server.Addr = ""
	cfg.Store.Backend = "s3"
	cfg.Providers.Kind = "openai"
	cfg.Session.Turn.EndOfTurnThreshold = 2

	err := cfg.Validate()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 5)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "store.backend")
	assert.Contains(t, err.Error(), "providers.kind")
}

func TestValidate_FileStoreNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "store.path")

	cfg.Store.Backend = orderstore.BackendMemory
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barista.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: /tmp/orders.json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/orders.json", cfg.Store.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
