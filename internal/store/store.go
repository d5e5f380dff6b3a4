// Package store persists project coverage data between runs.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/logger"
)

const (
	// DefaultFileName is the snapshot file name used when only a directory
	// is given.
	DefaultFileName = "coverage.ser.json"

	formatVersion = 1
)

// ErrDigestMismatch is returned when a snapshot's content does not match its
// recorded digest.
var ErrDigestMismatch = errors.New("snapshot digest mismatch")

var log = logger.Named("store")

// envelope wraps the encoded data with a digest of its bytes.
type envelope struct {
	Version int             `json:"version"`
	Digest  string          `json:"digest"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// Store reads and writes coverage snapshots.
type Store interface {
	// Load reads the snapshot. A missing snapshot yields empty data.
	Load() (*coverage.Data, error)

	// Save writes d as the new snapshot.
	Save(d *coverage.Data) error

	// Exists reports whether a snapshot has been written.
	Exists() bool
}

// FileStore is a Store backed by one JSON file.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store for the snapshot at path. When path is a
// directory, the snapshot is dir/coverage.ser.json.
func NewFileStore(path string) *FileStore {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	return &FileStore{filePath: path}
}

// GetFilePath returns the path of the snapshot file.
func (s *FileStore) GetFilePath() string {
	return s.filePath
}

// Exists reports whether the snapshot file exists.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.filePath)
	return err == nil
}

// Load reads the snapshot, verifying its digest.
func (s *FileStore) Load() (*coverage.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("no snapshot at %s, starting empty", s.filePath)
			return coverage.NewData(), nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.filePath, err)
	}
	d, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.filePath, err)
	}
	return d, nil
}

// Save writes d atomically: to a temporary file first, then renamed over
// the snapshot.
func (s *FileStore) Save(d *coverage.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	raw, err := encode(d)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", s.filePath, err)
	}
	log.Debug("saved snapshot %s (%d bytes)", s.filePath, len(raw))
	return nil
}

// HashBytes returns the hex BLAKE3 digest of data.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func encode(d *coverage.Data) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coverage data: %w", err)
	}
	out, err := json.MarshalIndent(envelope{
		Version: formatVersion,
		Digest:  HashBytes(body),
		SavedAt: time.Now().UTC(),
		Data:    body,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return out, nil
}

func decode(raw []byte) (*coverage.Data, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", env.Version)
	}
	if got := HashBytes(compact(env.Data)); got != env.Digest {
		return nil, fmt.Errorf("%w: recorded %s, computed %s", ErrDigestMismatch, env.Digest, got)
	}

	d := coverage.NewData()
	if err := json.Unmarshal(env.Data, d); err != nil {
		return nil, fmt.Errorf("failed to parse coverage data: %w", err)
	}
	return d, nil
}

// compact undoes the indentation MarshalIndent applied to the embedded
// body, so the digest is computed over the bytes that were hashed on save.
func compact(body []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return body
	}
	return buf.Bytes()
}

// Save writes d to path.
func Save(path string, d *coverage.Data) error {
	return NewFileStore(path).Save(d)
}

// Load reads the snapshot at path.
func Load(path string) (*coverage.Data, error) {
	return NewFileStore(path).Load()
}

// LoadAll reads several snapshots concurrently. Unlike Load, a missing
// snapshot is an error. The result is in the order of paths; the first
// failure cancels the remaining loads.
func LoadAll(ctx context.Context, paths []string) ([]*coverage.Data, error) {
	out := make([]*coverage.Data, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fs := NewFileStore(p)
			if !fs.Exists() {
				return fmt.Errorf("snapshot %s: %w", fs.GetFilePath(), os.ErrNotExist)
			}
			d, err := fs.Load()
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
