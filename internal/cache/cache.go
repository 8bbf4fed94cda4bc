package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/metrics"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// CacheError reports a snapshot storage failure: I/O errors or a corrupt
// snapshot file. Corrupt entries are not silently recomputed; the caller
// decides whether to invalidate.
type CacheError struct {
	Key string
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// snapshot is the on-disk cache entry. Entries are only ever written after a
// fully successful compute, so a present file is always a complete dataset.
type snapshot struct {
	Key       string                `json:"key"`
	Params    string                `json:"params"`
	CreatedAt time.Time             `json:"created_at"`
	Records   []models.MergedRecord `json:"records"`
	Report    models.QualityReport  `json:"report"`
}

// ComputeFunc produces a merged dataset on a cache miss.
type ComputeFunc func(ctx context.Context) ([]models.MergedRecord, models.QualityReport, error)

// Manager persists merged datasets keyed by the full request parameter set.
// Concurrent misses on the same key are serialized by a per-key mutex, so at
// most one computation is in flight per key; later callers read the stored
// snapshot. There is no TTL: entries live until explicitly invalidated.
type Manager struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheError{Op: "init", Err: err}
	}
	return &Manager{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// KeyFor derives the cache key from every request parameter. Two requests
// with identical parameters share an entry; any difference separates them.
func KeyFor(req models.Request) string {
	canonical := canonicalParams(req)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func canonicalParams(req models.Request) string {
	return strings.Join([]string{
		req.StartDate.Format("2006-01-02"),
		req.EndDate.Format("2006-01-02"),
		fmt.Sprintf("%.4f", req.Latitude),
		fmt.Sprintf("%.4f", req.Longitude),
		fmt.Sprintf("%d", req.RowLimit),
		req.RidershipSource,
		req.WeatherSource,
		fmt.Sprintf("%t", req.AllowPartialWeather),
	}, "|")
}

// GetOrCompute returns the cached dataset for the request, computing and
// storing it on a miss. Write-through: the result is committed before it is
// returned. A cancelled context never commits a partial entry.
func (m *Manager) GetOrCompute(ctx context.Context, req models.Request, compute ComputeFunc) ([]models.MergedRecord, models.QualityReport, bool, error) {
	key := KeyFor(req)

	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	snap, found, err := m.read(key)
	if err != nil {
		return nil, models.QualityReport{}, false, err
	}
	if found {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		log.Printf("cache: hit %s (%d rows, created %s)", shortKey(key), len(snap.Records), snap.CreatedAt.Format(time.RFC3339))
		return snap.Records, snap.Report, true, nil
	}

	metrics.CacheRequests.WithLabelValues("miss").Inc()
	records, report, err := compute(ctx)
	if err != nil {
		return nil, models.QualityReport{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, models.QualityReport{}, false, err
	}

	snap = &snapshot{
		Key:       key,
		Params:    canonicalParams(req),
		CreatedAt: time.Now().UTC(),
		Records:   records,
		Report:    report,
	}
	if err := m.write(key, snap); err != nil {
		return nil, models.QualityReport{}, false, err
	}
	log.Printf("cache: stored %s (%d rows)", shortKey(key), len(records))
	return records, report, false, nil
}

// Invalidate removes the entry for the request, if present.
func (m *Manager) Invalidate(req models.Request) error {
	key := KeyFor(req)
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(m.path(key))
	if err != nil && !os.IsNotExist(err) {
		return &CacheError{Key: key, Op: "invalidate", Err: err}
	}
	return nil
}

// InvalidateAll removes every stored entry.
func (m *Manager) InvalidateAll() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return &CacheError{Op: "invalidate-all", Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
			return &CacheError{Key: entry.Name(), Op: "invalidate-all", Err: err}
		}
	}
	return nil
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+".json")
}

func (m *Manager) read(key string) (*snapshot, bool, error) {
	data, err := os.ReadFile(m.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheError{Key: key, Op: "read", Err: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, &CacheError{Key: key, Op: "decode", Err: err}
	}
	return &snap, true, nil
}

// write commits a snapshot atomically: temp file in the same directory, then
// rename. A crash mid-write never leaves a partial entry behind the key.
func (m *Manager) write(key string, snap *snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return &CacheError{Key: key, Op: "encode", Err: err}
	}

	tmp, err := os.CreateTemp(m.dir, key+".tmp-*")
	if err != nil {
		return &CacheError{Key: key, Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &CacheError{Key: key, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &CacheError{Key: key, Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, m.path(key)); err != nil {
		os.Remove(tmpName)
		return &CacheError{Key: key, Op: "commit", Err: err}
	}
	return nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
