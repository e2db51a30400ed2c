package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyAndShort(t *testing.T) {
	assert.Nil(t, Chunk("", Options{}))
	assert.Nil(t, Chunk("  \n ", Options{}))
	assert.Equal(t, []string{"short doc"}, Chunk("  short doc \n", Options{}))
}

func TestChunkOverlapWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 2500)

	chunks := Chunk(text, Options{})

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), DefaultChunkSize)
	}
	assert.Equal(t, chunks[0][800:], chunks[1][:200])
	assert.Equal(t, chunks[1][800:], chunks[2][:200])
}

func TestChunkSnapsToSentences(t *testing.T) {
	var sb strings.Builder
	for i := range 100 {
		sb.WriteString("Sentence number ")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString(" is here. ")
	}

	chunks := Chunk(sb.String(), Options{})

	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
		assert.True(t, strings.HasSuffix(c, "."), "chunk should end on a sentence: %q", c[len(c)-20:])
	}
}

func TestChunkPrefersParagraphs(t *testing.T) {
	para1 := strings.TrimSpace(strings.Repeat("Alpha beta gamma. ", 39))
	para2 := strings.TrimSpace(strings.Repeat("Delta epsilon zeta. ", 35))

	chunks := Chunk(para1+"\n\n"+para2, Options{})

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, para1, chunks[0])
}

func TestChunkCountsRunes(t *testing.T) {
	chunks := Chunk(strings.Repeat("é", 2500), Options{})

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
	}
}

func TestChunkClampsOverlap(t *testing.T) {
	chunks := Chunk(strings.Repeat("b", 250), Options{ChunkSize: 100, Overlap: 500})

	// overlap falls back to a fifth of the chunk size
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 90)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "auth.md"), "# Auth\nUse an API key.")
	writeFile(t, filepath.Join(dir, "limits.txt"), "120 requests per minute.")
	writeFile(t, filepath.Join(dir, "guide.rst"), "Guide\n=====")
	writeFile(t, filepath.Join(dir, "main.go"), "package main")
	writeFile(t, filepath.Join(dir, ".git", "notes.md"), "hidden")
	writeFile(t, filepath.Join(dir, "sub", "ORDERS.MD"), "POST /v1/orders")

	docs, err := Load(dir, nil)
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		names = append(names, d.Name)
		assert.Len(t, d.ID, 32)
	}
	assert.ElementsMatch(t, []string{"auth.md", "limits.txt", "guide.rst", "ORDERS.MD"}, names)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrepare(t *testing.T) {
	doc := Document{ID: "abc", Path: "api/limits.md", Name: "limits.md", Content: strings.Repeat("word ", 500)}

	p := Prepare(doc, Options{})

	require.Len(t, p.Texts, 3)
	require.Len(t, p.Metadatas, 3)
	assert.Equal(t, []string{"abc_chunk_0", "abc_chunk_1", "abc_chunk_2"}, p.IDs)
	assert.Equal(t, "limits.md", p.Metadatas[1]["source"])
	assert.Equal(t, "md", p.Metadatas[1]["type"])
	assert.Equal(t, 1, p.Metadatas[1]["chunk_index"])
	assert.Equal(t, 3, p.Metadatas[1]["total_chunks"])
}

type recordingIndexer struct {
	batches [][]string
	failOn  int
}

func (r *recordingIndexer) Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error {
	if r.failOn > 0 && len(r.batches)+1 == r.failOn {
		return errors.New("embedder unavailable")
	}
	r.batches = append(r.batches, texts)
	return nil
}

func TestIngest(t *testing.T) {
	docs := []Document{
		{ID: "1", Name: "a.md", Content: "first"},
		{ID: "2", Name: "empty.md", Content: "   "},
		{ID: "3", Name: "c.md", Content: strings.Repeat("z", 1500)},
	}
	idx := &recordingIndexer{}

	var done []int
	rep, err := Ingest(context.Background(), idx, docs, Options{}, func(n int) { done = append(done, n) })

	require.NoError(t, err)
	assert.Equal(t, Report{Documents: 3, Chunks: 3}, rep)
	assert.Len(t, idx.batches, 2)
	assert.Equal(t, []int{1, 2, 3}, done)
}

func TestIngestStopsOnIndexError(t *testing.T) {
	docs := []Document{
		{ID: "1", Path: "a.md", Content: "first"},
		{ID: "2", Path: "b.md", Content: "second"},
	}

	rep, err := Ingest(context.Background(), &recordingIndexer{failOn: 2}, docs, Options{}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.md")
	assert.Equal(t, 1, rep.Documents)
}
