package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/vectorstore"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`{"score": 0.8}`, 0.8, false},
		{"Sure! {\"score\": 0.25} hope that helps", 0.25, false},
		{"0.7", 0.7, false},
		{" 1 ", 1, false},
		{`{"score": 1.5}`, 0, true},
		{`{"relevance": 0.5}`, 0, true},
		{"quite relevant", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseScore(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, errMalformed, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestParseOrder(t *testing.T) {
	order, err := parseOrder("Ranking: [3, 1, 2]", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, order)

	order, err = parseOrder("[2]", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, order)

	for _, bad := range []string{"[]", "[0, 1]", "[1, 5]", "[1, 1]", "first one", `["a"]`} {
		_, err := parseOrder(bad, 4)
		assert.ErrorIs(t, err, errMalformed, bad)
	}
}

func TestRankWithModelAppendsMissing(t *testing.T) {
	cands := []candidate{
		{match: vectorstore.Match{Chunk: vectorstore.Chunk{ID: "a"}, Similarity: 0.9}},
		{match: vectorstore.Match{Chunk: vectorstore.Chunk{ID: "b"}, Similarity: 0.8}},
		{match: vectorstore.Match{Chunk: vectorstore.Chunk{ID: "c"}, Similarity: 0.7}},
	}

	f := newFixture(t, Options{})
	f.model.On("Rank these documentation excerpts", "[3]")

	ordered, err := f.orch.rankWithModel(t.Context(), "q", cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(ordered))
}

func TestToCandidatesMarksWeak(t *testing.T) {
	matches := []vectorstore.Match{{Chunk: vectorstore.Chunk{ID: "x"}}}

	assert.False(t, toCandidates(matches, false)[0].weak)
	assert.True(t, toCandidates(matches, true)[0].weak)
}

func TestTruncateAnswer(t *testing.T) {
	assert.Equal(t, "short", truncateAnswer("short", 10))
	assert.Equal(t, "abcdefg...", truncateAnswer("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", truncateAnswer("héllo wörld again", 10))
}

func ids(cands []candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.match.ID
	}
	return out
}
