package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bowerhall/docsage/internal/logger"
)

// DefaultExtensions are the documentation formats loaded from disk.
var DefaultExtensions = []string{".md", ".txt", ".rst"}

type Document struct {
	ID      string
	Path    string
	Name    string
	Content string
}

// Load reads every file under dir with one of the given extensions,
// skipping hidden directories. Unreadable files are logged and skipped.
func Load(dir string, extensions []string) ([]Document, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("docs directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs directory: %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(extensions, ext) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("failed to read document", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		sum := md5.Sum([]byte(rel))
		docs = append(docs, Document{
			ID:      hex.EncodeToString(sum[:]),
			Path:    rel,
			Name:    d.Name(),
			Content: string(data),
		})
		logger.Debug("loaded document", "path", rel, "bytes", len(data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	logger.Info("documents loaded", "dir", dir, "count", len(docs))
	return docs, nil
}

// Prepared is a batch ready for the vector store.
type Prepared struct {
	Texts     []string
	Metadatas []map[string]any
	IDs       []string
}

// Prepare chunks one document. Chunk ids are "<doc id>_chunk_<n>".
func Prepare(doc Document, opts Options) Prepared {
	chunks := Chunk(doc.Content, opts)

	p := Prepared{
		Texts:     chunks,
		Metadatas: make([]map[string]any, len(chunks)),
		IDs:       make([]string, len(chunks)),
	}
	for i := range chunks {
		p.Metadatas[i] = map[string]any{
			"source":       doc.Name,
			"filepath":     doc.Path,
			"type":         strings.TrimPrefix(filepath.Ext(doc.Name), "."),
			"chunk_index":  i,
			"total_chunks": len(chunks),
		}
		p.IDs[i] = fmt.Sprintf("%s_chunk_%d", doc.ID, i)
	}
	return p
}

// Indexer receives chunk batches.
type Indexer interface {
	Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error
}

type Report struct {
	Documents int
	Chunks    int
}

// Ingest chunks and indexes docs one document at a time, calling progress
// after each. The first indexing error aborts the run.
func Ingest(ctx context.Context, idx Indexer, docs []Document, opts Options, progress func(done int)) (Report, error) {
	var rep Report
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		p := Prepare(doc, opts)
		if len(p.Texts) > 0 {
			if err := idx.Add(ctx, p.Texts, p.Metadatas, p.IDs); err != nil {
				return rep, fmt.Errorf("index %s: %w", doc.Path, err)
			}
		}

		rep.Documents++
		rep.Chunks += len(p.Texts)
		if progress != nil {
			progress(i + 1)
		}
	}

	logger.Info("ingestion complete", "documents", rep.Documents, "chunks", rep.Chunks)
	return rep, nil
}
