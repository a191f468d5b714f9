// Package snapshot persists the live contents of a cache.Cache as
// zstd-compressed JSON so a restarted server comes back warm.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"

	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// DefaultConcurrency bounds the namespaces restored in parallel.
const DefaultConcurrency = 4

// Record is one cache entry in a snapshot.
type Record struct {
	Namespace string     `json:"namespace"`
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type document struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Records []Record  `json:"records"`
}

// Result summarizes a Load.
type Result struct {
	Restored int `json:"restored"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"`
}

// Save writes every live entry of c to w and returns how many were written.
func Save(w io.Writer, c *cache.Cache) (int, error) {
	entries := c.Entries()
	doc := document{
		Version: FormatVersion,
		SavedAt: time.Now().UTC(),
		Records: make([]Record, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Records = append(doc.Records, Record{
			Namespace: e.Namespace,
			Key:       e.Key,
			Value:     e.Value,
			ExpiresAt: e.ExpiresAt,
		})
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create encoder: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(doc); err != nil {
		enc.Close()
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("flush snapshot: %w", err)
	}
	return len(doc.Records), nil
}

// Load restores a snapshot into c. Namespaces are restored concurrently.
// Records for namespaces c does not know are skipped, and records that
// expired while the snapshot was on disk are dropped.
func Load(ctx context.Context, r io.Reader, c *cache.Cache) (Result, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	var doc document
	if err := json.NewDecoder(dec).Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != FormatVersion {
		return Result{}, errors.NewValidationError("version", doc.Version, fmt.Sprintf("unsupported snapshot version %d", doc.Version))
	}

	byNamespace := make(map[string][]Record)
	var res Result
	for _, rec := range doc.Records {
		if _, err := c.Config(rec.Namespace); err != nil {
			res.Skipped++
			continue
		}
		byNamespace[rec.Namespace] = append(byNamespace[rec.Namespace], rec)
	}

	var restored, expired atomic.Int64
	p := pool.New().WithMaxGoroutines(DefaultConcurrency).WithContext(ctx).WithCancelOnError()
	for ns, records := range byNamespace {
		p.Go(func(ctx context.Context) error {
			for _, rec := range records {
				if err := ctx.Err(); err != nil {
					return err
				}
				var expiresAt time.Time
				if rec.ExpiresAt != nil {
					expiresAt = *rec.ExpiresAt
				}
				ok, err := c.Restore(ns, rec.Key, rec.Value, expiresAt)
				if err != nil {
					return fmt.Errorf("restore %s/%s: %w", ns, rec.Key, err)
				}
				if ok {
					restored.Add(1)
				} else {
					expired.Add(1)
				}
			}
			return nil
		})
	}
	err = p.Wait()

	res.Restored = int(restored.Load())
	res.Expired = int(expired.Load())
	return res, err
}

// SaveFile writes a snapshot to path atomically.
func SaveFile(path string, c *cache.Cache) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return 0, errors.WrapIO("create", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return 0, errors.WrapIO("create", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := Save(tmp, c)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.WrapIO("write", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.WrapIO("rename", path, err)
	}
	return n, nil
}

// LoadFile restores the snapshot at path. A missing file restores nothing.
func LoadFile(ctx context.Context, path string, c *cache.Cache) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	return Load(ctx, f, c)
}
