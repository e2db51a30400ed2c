package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the on-disk layout: four parallel arrays of equal length.
type Snapshot struct {
	IDs        []string         `json:"ids"`
	Texts      []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
	Embeddings [][]float32      `json:"embeddings"`
}

func (s *Snapshot) Len() int {
	return len(s.IDs)
}

func (s *Snapshot) validate() error {
	n := len(s.IDs)
	if len(s.Texts) != n || len(s.Metadatas) != n || len(s.Embeddings) != n {
		return fmt.Errorf("snapshot arrays differ (ids=%d documents=%d metadatas=%d embeddings=%d): %w",
			n, len(s.Texts), len(s.Metadatas), len(s.Embeddings), ErrLengthMismatch)
	}
	return nil
}

// Persister saves and restores the whole snapshot.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// FilePersister stores the snapshot as one JSON file, replaced atomically.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (f *FilePersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (f *FilePersister) Save(ctx context.Context, snap *Snapshot) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// MemoryPersister keeps the last saved snapshot in memory.
type MemoryPersister struct {
	Saved *Snapshot
	Saves int
	Err   error
}

func (m *MemoryPersister) Load(ctx context.Context) (*Snapshot, error) {
	if m.Saved == nil {
		return &Snapshot{}, nil
	}
	return m.Saved, nil
}

func (m *MemoryPersister) Save(ctx context.Context, snap *Snapshot) error {
	if m.Err != nil {
		return m.Err
	}
	m.Saves++
	m.Saved = snap
	return nil
}
