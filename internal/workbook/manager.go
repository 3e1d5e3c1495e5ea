// Package workbook keeps local CSV snapshots of the bakery's spreadsheet.
// Each worksheet tab is downloaded through the sheet's CSV export endpoint
// into the data directory, where the source engine reads it. Snapshots carry
// a metadata file recording when they were taken; within the configured
// refresh interval they are served as-is.
package workbook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/config"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/source"
)

// TabMeta records one downloaded worksheet snapshot.
type TabMeta struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Metadata describes the snapshot set as a whole.
type Metadata struct {
	DownloadedAt time.Time          `json:"downloaded_at"`
	Tabs         map[string]TabMeta `json:"tabs"`
}

// Manager downloads and refreshes worksheet snapshots.
type Manager struct {
	sheetID         string
	baseURL         string
	dataDir         string
	metadataPath    string
	lockPath        string
	refreshInterval time.Duration
	disableFetch    bool
	client          *http.Client
	log             *slog.Logger
}

// NewManager creates a snapshot manager from the server configuration.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		sheetID:         cfg.SheetID,
		baseURL:         cfg.SheetsBaseURL,
		dataDir:         cfg.DataDir,
		metadataPath:    cfg.MetadataPath,
		lockPath:        cfg.LockFile,
		refreshInterval: cfg.RefreshInterval(),
		disableFetch:    cfg.DisableFetch,
		client:          &http.Client{Timeout: 2 * time.Minute},
		log:             logger,
	}
}

// EnsureSnapshot makes sure a usable snapshot set exists, downloading one
// when the current set is missing or older than the refresh interval.
func (m *Manager) EnsureSnapshot(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Ensuring worksheet snapshots are available", "data_dir", m.dataDir)

	if m.snapshotFresh() {
		m.log.Info("Snapshots are fresh", "duration", time.Since(start))
		return nil
	}

	if m.disableFetch {
		if m.requiredSnapshotsExist() {
			m.log.Warn("Remote fetch disabled, serving existing snapshots", "duration", time.Since(start))
			return nil
		}
		return fmt.Errorf("remote fetch disabled and no local snapshots in %s", m.dataDir)
	}

	if err := m.downloadWithLock(ctx); err != nil {
		return fmt.Errorf("failed to refresh worksheet snapshots: %w", err)
	}

	m.log.Info("Snapshots ensured", "duration", time.Since(start))
	return nil
}

// ForceRefresh downloads a new snapshot set regardless of freshness.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	if m.disableFetch {
		m.log.Warn("Remote fetch disabled, refresh keeps existing snapshots")
		return nil
	}
	return m.downloadWithLock(ctx)
}

// snapshotFresh reports whether the snapshot set exists and is younger than
// the refresh interval.
func (m *Manager) snapshotFresh() bool {
	meta, err := m.loadMetadata()
	if err != nil {
		return false
	}
	if m.refreshInterval > 0 && time.Since(meta.DownloadedAt) > m.refreshInterval {
		return false
	}
	return m.requiredSnapshotsExist()
}

func (m *Manager) requiredSnapshotsExist() bool {
	for _, tab := range source.RequiredTabs() {
		if _, err := os.Stat(source.SnapshotPath(m.dataDir, tab)); err != nil {
			return false
		}
	}
	return true
}

// downloadWithLock downloads all worksheets under an exclusive file lock so
// concurrent instances do not clobber each other's snapshots.
func (m *Manager) downloadWithLock(ctx context.Context) error {
	lockFile, err := acquireLock(m.lockPath)
	if err != nil {
		m.log.Info("Another instance is downloading, waiting", "lock_path", m.lockPath)
		return m.waitForDownload(ctx)
	}
	defer releaseLock(lockFile, m.lockPath)

	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	meta := &Metadata{Tabs: make(map[string]TabMeta)}

	for _, tab := range source.RequiredTabs() {
		tabMeta, err := m.downloadTab(ctx, tab)
		if err != nil {
			return fmt.Errorf("worksheet %s: %w", tab, err)
		}
		meta.Tabs[tab] = *tabMeta
	}

	// The market price tab is optional: a failure only means the catalog is
	// costed without pricing. Any stale snapshot is removed so the source
	// does not serve outdated prices.
	if tabMeta, err := m.downloadTab(ctx, source.TabPrices); err != nil {
		m.log.Warn("Market price worksheet unavailable", "tab", source.TabPrices, "error", err)
		os.Remove(source.SnapshotPath(m.dataDir, source.TabPrices))
	} else {
		meta.Tabs[source.TabPrices] = *tabMeta
	}

	meta.DownloadedAt = time.Now().UTC()
	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save snapshot metadata", "error", err)
	}

	return nil
}

// downloadTab fetches one worksheet as CSV and atomically replaces its
// snapshot file.
func (m *Manager) downloadTab(ctx context.Context, tab string) (*TabMeta, error) {
	start := time.Now()
	exportURL := m.exportURL(tab)
	m.log.Debug("Downloading worksheet", "tab", tab, "url", exportURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The export endpoint answers 200 with an HTML error page when a tab
	// does not exist; that must fail the download, not poison the snapshot.
	if looksLikeHTML(data) {
		return nil, errors.New("export returned HTML, worksheet probably does not exist")
	}

	path := source.SnapshotPath(m.dataDir, tab)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	sum := sha256.Sum256(data)
	m.log.Info("Worksheet downloaded", "tab", tab, "bytes", len(data), "duration", time.Since(start))
	return &TabMeta{
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(data)),
	}, nil
}

func (m *Manager) exportURL(tab string) string {
	return fmt.Sprintf("%s/%s/gviz/tq?tqx=out:csv&sheet=%s", m.baseURL, m.sheetID, url.QueryEscape(tab))
}

func looksLikeHTML(data []byte) bool {
	head := bytes.TrimSpace(data)
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(bytes.ToLower(head), []byte("<!doctype")) ||
		bytes.HasPrefix(bytes.ToLower(head), []byte("<html"))
}

// waitForDownload waits for another instance to finish its download.
func (m *Manager) waitForDownload(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	timeout := time.After(2 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for snapshot download by other instance")
		case <-ticker.C:
			if m.snapshotFresh() {
				m.log.Info("Snapshots now available after other instance completed")
				return nil
			}
		}
	}
}

func (m *Manager) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *Manager) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath, data, 0644)
}

// acquireLock attempts to acquire an exclusive lock file.
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_CREATE|O_EXCL will fail if file exists
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}
