package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"rbtchain/config"
	"rbtchain/core"
	"rbtchain/core/state"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/native/ringback"
	"rbtchain/observability/metrics"
	"rbtchain/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}
	}
	env := lookup(map[string]string{genesisPathEnv: " /env/genesis.yaml "})
	none := lookup(nil)

	require.Equal(t, "/flag.yaml", resolveGenesisPath(" /flag.yaml ", "/cfg.yaml", env))
	require.Equal(t, "/env/genesis.yaml", resolveGenesisPath("", "/cfg.yaml", env))
	require.Equal(t, "/cfg.yaml", resolveGenesisPath("", "/cfg.yaml", none))
	require.Equal(t, "", resolveGenesisPath("", "", nil))
}

func TestLoggingOptionsEnablesFileOnlyWhenSet(t *testing.T) {
	opts := loggingOptions(config.Logging{Level: "debug"})
	require.Equal(t, "debug", opts.Level)
	require.Nil(t, opts.File)

	opts = loggingOptions(config.Logging{File: "/var/log/rbtd.log", MaxSizeMB: 10, Compress: true})
	require.NotNil(t, opts.File)
	require.Equal(t, "/var/log/rbtd.log", opts.File.Path)
	require.Equal(t, 10, opts.File.MaxSizeMB)
	require.True(t, opts.File.Compress)
}

func TestTelemetryConfigParsesHeaders(t *testing.T) {
	cfg := telemetryConfig(config.Telemetry{ServiceName: "rbtd", Headers: "a=1, b=2", Traces: true}, "test")
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, cfg.Headers)
	require.Equal(t, "test", cfg.Environment)
	require.True(t, cfg.Enabled())
}

func TestOpenNodeAppliesGenesisOnce(t *testing.T) {
	dir := t.TempDir()
	funded := crypto.MustNewAddress(crypto.IdentityPrefix, bytes.Repeat([]byte{0x07}, 20))
	genesisPath := filepath.Join(dir, "genesis.yaml")
	body := fmt.Sprintf("genesisTime: 2024-01-01T00:00:00Z\nchainId: rbt-test\nalloc:\n  %s: \"500\"\n", funded.String())
	require.NoError(t, os.WriteFile(genesisPath, []byte(body), 0o600))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBBackend = storage.BackendBolt
	cfg.IndexerDSN = indexerOff
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	n, err := openNode(cfg, genesisPath, logger)
	require.NoError(t, err)
	require.Nil(t, n.indexer)
	account, err := n.executor.Account(funded.Array())
	require.NoError(t, err)
	require.Equal(t, "500", account.Balance.String())
	require.NoError(t, n.Close())

	// Reopening keeps the applied allocation and does not fail on the marker.
	n, err = openNode(cfg, genesisPath, logger)
	require.NoError(t, err)
	account, err = n.executor.Account(funded.Array())
	require.NoError(t, err)
	require.Equal(t, "500", account.Balance.String())
	require.NoError(t, n.Close())
}

func TestOpenNodeWithIndexer(t *testing.T) {
	cfg := config.Default()
	cfg.DBBackend = storage.BackendMemory
	cfg.DataDir = t.TempDir()
	cfg.IndexerDSN = ""

	n, err := openNode(cfg, "", slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NotNil(t, n.indexer)
	require.FileExists(t, filepath.Join(cfg.DataDir, "indexer.sqlite"))
	require.NoError(t, n.Close())
}

func applySigned(t *testing.T, exec *core.Executor, key *crypto.PrivateKey, nonce uint64, kind types.InstructionType, args interface{}) error {
	t.Helper()
	data, err := ringback.EncodeArgs(args)
	require.NoError(t, err)
	tx := &types.Transaction{Type: kind, Nonce: nonce, Data: data}
	require.NoError(t, tx.Sign(key.PrivateKey))
	_, err = exec.Apply(context.Background(), tx)
	return err
}

func toneCountGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "rbt_tone_count" {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("rbt_tone_count not registered")
	return 0
}

func TestOpenNodeRestoresProgramWithoutGenesis(t *testing.T) {
	dir := t.TempDir()
	program := crypto.MustNewAddress(crypto.ProgramPrefix, bytes.Repeat([]byte{0x42}, 20))
	genesisPath := filepath.Join(dir, "genesis.yaml")
	body := fmt.Sprintf("genesisTime: 2024-01-01T00:00:00Z\nchainId: rbt-custom\nprogram: %s\n", program.String())
	require.NoError(t, os.WriteFile(genesisPath, []byte(body), 0o600))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBBackend = storage.BackendBolt
	cfg.IndexerDSN = indexerOff
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	operator, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	artist, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	n, err := openNode(cfg, genesisPath, logger)
	require.NoError(t, err)
	require.Equal(t, program.Array(), n.executor.Program())
	require.NoError(t, applySigned(t, n.executor, operator, 0, types.InstructionSetupPlatform, nil))
	require.NoError(t, applySigned(t, n.executor, artist, 0, types.InstructionSignUpArtist,
		ringback.SignUpArgs{Name: "Ada", ProfileURL: "https://ada.example"}))
	require.NoError(t, applySigned(t, n.executor, artist, 1, types.InstructionUploadTone, ringback.UploadArgs{
		AudioName: "Intro", AudioCode: 1, AudioURL: "https://cdn.example/1", Price: 10, Duration: "30d",
	}))
	require.NoError(t, n.Close())

	metrics.Ringback().SetToneCount(0)

	n, err = openNode(cfg, "", logger)
	require.NoError(t, err)
	defer n.Close()
	require.Equal(t, program.Array(), n.executor.Program())
	require.Equal(t, 1.0, toneCountGauge(t))

	platform, ok, err := n.executor.View().Platform()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), platform.ToneCount)

	err = applySigned(t, n.executor, operator, 1, types.InstructionSetupPlatform, nil)
	require.ErrorIs(t, err, state.ErrAccountExists)
}
