package workbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/config"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ingredientsCSV = "NOME_ITEM,UNIDADE_PACOTE,QUANT_PACOTE,VALOR_PACOTE\nFARINHA,G,1000,\"R$ 10,00\"\n"
	basesCSV       = "NOME_BASE,NOME_INGREDIENTE,QUANT_RECEITA,RENDIMENTO_FINAL_UNIDADES\nMASSA,FARINHA,500,2\n"
	finalsCSV      = "NOME_BOLO,NOME_INGREDIENTE,QUANT_RECEITA\nBOLO,MASSA,1\n"
	pricesCSV      = "PRODUTO,PRECO\nBOLO,\"R$ 9,00\"\n"
)

// newWorkbookServer serves CSV exports for the given tabs and returns 404
// for everything else.
func newWorkbookServer(tabs map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tab := r.URL.Query().Get("sheet")
		body, ok := tabs[tab]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, body)
	}))
}

func allTabs() map[string]string {
	return map[string]string{
		source.TabIngredients: ingredientsCSV,
		source.TabBases:       basesCSV,
		source.TabFinals:      finalsCSV,
		source.TabPrices:      pricesCSV,
	}
}

func newTestManager(t *testing.T, baseURL, dataDir string) *Manager {
	t.Helper()
	cfg := &config.Config{
		SheetID:                "test-sheet",
		SheetsBaseURL:          baseURL,
		DataDir:                dataDir,
		MetadataPath:           filepath.Join(dataDir, "metadata.json"),
		LockFile:               filepath.Join(dataDir, "refresh.lock"),
		RefreshIntervalMinutes: 10,
	}
	return NewManager(cfg, config.NewTestLogger(io.Discard, "debug"))
}

func TestManager_EnsureSnapshot_Downloads(t *testing.T) {
	server := newWorkbookServer(allTabs())
	defer server.Close()

	dataDir := t.TempDir()
	m := newTestManager(t, server.URL, dataDir)

	err := m.EnsureSnapshot(context.Background())
	require.NoError(t, err)

	for tab, want := range allTabs() {
		data, err := os.ReadFile(source.SnapshotPath(dataDir, tab))
		require.NoError(t, err, "snapshot for %s", tab)
		assert.Equal(t, want, string(data))
	}

	meta, err := m.loadMetadata()
	require.NoError(t, err)
	assert.Len(t, meta.Tabs, 4)
	assert.WithinDuration(t, time.Now().UTC(), meta.DownloadedAt, time.Minute)
}

func TestManager_EnsureSnapshot_FreshSnapshotSkipsDownload(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		tab := r.URL.Query().Get("sheet")
		fmt.Fprint(w, allTabs()[tab])
	}))
	defer server.Close()

	dataDir := t.TempDir()
	m := newTestManager(t, server.URL, dataDir)

	require.NoError(t, m.EnsureSnapshot(context.Background()))
	downloaded := requests

	require.NoError(t, m.EnsureSnapshot(context.Background()))
	assert.Equal(t, downloaded, requests, "fresh snapshots must not be re-downloaded")
}

func TestManager_EnsureSnapshot_StaleSnapshotRedownloads(t *testing.T) {
	server := newWorkbookServer(allTabs())
	defer server.Close()

	dataDir := t.TempDir()
	m := newTestManager(t, server.URL, dataDir)
	require.NoError(t, m.EnsureSnapshot(context.Background()))

	// Age the metadata past the refresh interval.
	meta, err := m.loadMetadata()
	require.NoError(t, err)
	meta.DownloadedAt = time.Now().UTC().Add(-time.Hour)
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.metadataPath, data, 0644))

	assert.False(t, m.snapshotFresh())
	require.NoError(t, m.EnsureSnapshot(context.Background()))
	assert.True(t, m.snapshotFresh())
}

func TestManager_EnsureSnapshot_MissingRequiredTabFails(t *testing.T) {
	tabs := allTabs()
	delete(tabs, source.TabBases)
	server := newWorkbookServer(tabs)
	defer server.Close()

	m := newTestManager(t, server.URL, t.TempDir())

	err := m.EnsureSnapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), source.TabBases)
}

func TestManager_EnsureSnapshot_MissingPriceTabIsTolerated(t *testing.T) {
	tabs := allTabs()
	delete(tabs, source.TabPrices)
	server := newWorkbookServer(tabs)
	defer server.Close()

	dataDir := t.TempDir()
	m := newTestManager(t, server.URL, dataDir)

	require.NoError(t, m.EnsureSnapshot(context.Background()))

	_, err := os.Stat(source.SnapshotPath(dataDir, source.TabPrices))
	assert.True(t, os.IsNotExist(err), "no price snapshot should be written")

	meta, err := m.loadMetadata()
	require.NoError(t, err)
	assert.Len(t, meta.Tabs, 3)
}

func TestManager_EnsureSnapshot_HTMLErrorPageFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<!DOCTYPE html><html><body>Sheet not found</body></html>")
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, t.TempDir())

	err := m.EnsureSnapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTML")
}

func TestManager_DisableFetch(t *testing.T) {
	t.Run("fails without local snapshots", func(t *testing.T) {
		dataDir := t.TempDir()
		m := newTestManager(t, "http://unreachable.invalid", dataDir)
		m.disableFetch = true

		err := m.EnsureSnapshot(context.Background())
		assert.Error(t, err)
	})

	t.Run("serves existing snapshots", func(t *testing.T) {
		dataDir := t.TempDir()
		for tab, body := range allTabs() {
			require.NoError(t, os.WriteFile(source.SnapshotPath(dataDir, tab), []byte(body), 0644))
		}

		m := newTestManager(t, "http://unreachable.invalid", dataDir)
		m.disableFetch = true

		assert.NoError(t, m.EnsureSnapshot(context.Background()))
	})
}

func TestManager_ForceRefresh(t *testing.T) {
	version := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tab := r.URL.Query().Get("sheet")
		fmt.Fprintf(w, "%sVERSION_%d\n", allTabs()[tab], version)
	}))
	defer server.Close()

	dataDir := t.TempDir()
	m := newTestManager(t, server.URL, dataDir)
	require.NoError(t, m.EnsureSnapshot(context.Background()))

	version = 1
	require.NoError(t, m.ForceRefresh(context.Background()))

	data, err := os.ReadFile(source.SnapshotPath(dataDir, source.TabIngredients))
	require.NoError(t, err)
	assert.Contains(t, string(data), "VERSION_1", "force refresh must ignore freshness")
}

func TestExportURL(t *testing.T) {
	m := &Manager{baseURL: "https://docs.google.com/spreadsheets/d", sheetID: "abc123"}
	assert.Equal(t,
		"https://docs.google.com/spreadsheets/d/abc123/gviz/tq?tqx=out:csv&sheet=receitas+bases",
		m.exportURL("receitas bases"))
}
