package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicflow/internal/config"
	"clinicflow/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(dir, "in")
	cfg.Blob.FSRoot = filepath.Join(dir, "out")
	cfg.Ledger.Path = filepath.Join(dir, "log.txt")
	cfg.Metrics.Textfile = filepath.Join(dir, "clinicflow.prom")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0o755))
	return cfg
}

func TestIngestThenReshape(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	testutil.WriteWorkbook(t, filepath.Join(cfg.InputDir, "jan.xlsx"), [][]any{testutil.RawVisitRow("x", "New", 2, 3)})

	a, err := Open(ctx, cfg, nil)
	require.NoError(t, err)

	ires, err := a.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jan.xlsx"}, ires.Files)

	rres, err := a.Reshape(ctx)
	require.NoError(t, err)
	assert.Equal(t, 32, rres.Rows)
	assert.Equal(t, `{"New": 1}`, rres.CaseMap)

	require.NoError(t, a.Close())
	for _, p := range []string{
		filepath.Join(cfg.Blob.FSRoot, cfg.Ingest.MasterKey),
		filepath.Join(cfg.Blob.FSRoot, cfg.Reshape.NumericKey),
		cfg.Ledger.Path,
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "clinicflow_files_ingested_total 1")

	ledgerText, err := os.ReadFile(cfg.Ledger.Path)
	require.NoError(t, err)
	assert.Equal(t, "jan.xlsx\n", string(ledgerText))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Driver = "etcd"
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
}
