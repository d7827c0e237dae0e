// Package local implements evallog.Buffer as a directory of per-sample JSON
// files, the simpler of the two sample-buffer backends spec §4.7 names
// ("either an embedded local database per task, or a directory of
// per-sample files"). Grounded on registry/store/memory.go's lock+map
// Store shape, adapted to a filesystem-backed store since the sample
// buffer must survive the process restarting, which an in-memory map
// cannot.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/internal/ids"
)

// Buffer implements evallog.Buffer under a root directory, one file per
// (runID, sampleID, epoch) key, named after an escaped form of
// ids.SampleKey.
type Buffer struct {
	mu   sync.Mutex
	root string
}

var _ evallog.Buffer = (*Buffer)(nil)

// New constructs a Buffer rooted at dir, creating it if necessary.
func New(dir string) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Buffer{root: dir}, nil
}

func (b *Buffer) path(runID string, sampleID any, epoch int) string {
	key := url.PathEscape(ids.SampleKey(sampleID, epoch))
	safe := filepath.Base(fmt.Sprintf("%s__%s.json", runID, key))
	return filepath.Join(b.root, safe)
}

// Put implements evallog.Buffer.
func (b *Buffer) Put(ctx context.Context, runID string, sample evallog.EvalSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	path := b.path(runID, sample.ID, sample.Epoch)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get implements evallog.Buffer.
func (b *Buffer) Get(ctx context.Context, runID string, sampleID any, epoch int) (evallog.EvalSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path(runID, sampleID, epoch))
	if os.IsNotExist(err) {
		return evallog.EvalSample{}, evallog.ErrNotFound
	}
	if err != nil {
		return evallog.EvalSample{}, err
	}
	var s evallog.EvalSample
	if err := json.Unmarshal(data, &s); err != nil {
		return evallog.EvalSample{}, err
	}
	return s, nil
}

// List implements evallog.Buffer.
func (b *Buffer) List(ctx context.Context, runID string) ([]evallog.EvalSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	prefix := runID + "__"
	var out []evallog.EvalSample
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if len(e.Name()) < len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.root, e.Name()))
		if err != nil {
			return nil, err
		}
		var s evallog.EvalSample
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete implements evallog.Buffer.
func (b *Buffer) Delete(ctx context.Context, runID string, sampleID any, epoch int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := os.Remove(b.path(runID, sampleID, epoch))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
