package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"recursive", MethodRecursive, false},
		{" Markdown ", MethodMarkdown, false},
		{"SEMANTIC", MethodSemantic, false},
		{"fixed", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSplitter(t *testing.T) {
	_, err := NewSplitter(MethodSemantic, 100, 10, nil)
	assert.ErrorIs(t, err, ErrEmbeddingsRequired)

	_, err = NewSplitter(Method("bogus"), 100, 10, nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	s, err := NewSplitter(MethodMarkdown, 100, 10, nil)
	require.NoError(t, err)
	assert.True(t, s.(*RecursiveSplitter).IsRegex)
}

func TestRecursiveSplitter(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text yields no chunks", func(t *testing.T) {
		chunks, err := NewRecursiveSplitter(1000, 200).Split(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("whitespace only yields no chunks", func(t *testing.T) {
		chunks, err := NewRecursiveSplitter(1000, 200).Split(ctx, "  \n\n \n ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks, err := NewRecursiveSplitter(1000, 200).Split(ctx, "first\n\nsecond")
		require.NoError(t, err)
		assert.Equal(t, []string{"first\n\nsecond"}, chunks)
	})

	t.Run("long text respects size and overlaps", func(t *testing.T) {
		text := strings.Repeat("word ", 500)
		chunks, err := NewRecursiveSplitter(1000, 200).Split(ctx, text)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		}
		tail := chunks[0][len(chunks[0])-50:]
		assert.Contains(t, chunks[1], tail)
	})

	t.Run("overlap not smaller than size terminates", func(t *testing.T) {
		text := strings.Repeat("alpha beta gamma ", 40)
		chunks, err := NewRecursiveSplitter(20, 50).Split(ctx, text)
		require.NoError(t, err)
		assert.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
		}
	})

	t.Run("falls back to characters for unbroken text", func(t *testing.T) {
		chunks, err := NewRecursiveSplitter(10, 0).Split(ctx, strings.Repeat("x", 25))
		require.NoError(t, err)
		assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)
	})

	t.Run("length is counted in runes", func(t *testing.T) {
		chunks, err := NewRecursiveSplitter(6, 0).Split(ctx, "ééééé ééééé")
		require.NoError(t, err)
		assert.Equal(t, []string{"ééééé", "ééééé"}, chunks)
	})
}

func TestMarkdownSplitter(t *testing.T) {
	text := "# Intro\n" + strings.Repeat("alpha ", 10) + "\n## Details\n" + strings.Repeat("beta ", 10)

	chunks, err := NewMarkdownSplitter(80, 0).Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], "# Intro"))
	assert.True(t, strings.HasPrefix(chunks[1], "## Details"), chunks[1])
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello world. How are you?  Fine! Pi is 3.14 roughly")
	assert.Equal(t, []string{"Hello world.", "How are you?", "Fine!", "Pi is 3.14 roughly"}, got)
	assert.Empty(t, splitSentences("   "))
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 2.5, percentile([]float64{4, 1, 3, 2}, 50), 1e-9)
	assert.InDelta(t, 4.0, percentile([]float64{4, 1, 3, 2}, 100), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 95))
}

// topicEmbedder scores each text by how often it mentions each topic word.
type topicEmbedder struct {
	calls int
	err   error
}

func (e *topicEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(strings.Count(t, "Cats")), float32(strings.Count(t, "Stocks"))}
	}
	return out, nil
}

func TestSemanticSplitter(t *testing.T) {
	ctx := context.Background()
	text := "Cats purr. Cats nap. Cats play. Stocks fell. Stocks rose. Stocks dipped."

	emb := &topicEmbedder{}
	chunks, err := NewSemanticSplitter(emb).Split(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Cats purr. Cats nap. Cats play.",
		"Stocks fell. Stocks rose. Stocks dipped.",
	}, chunks)

	t.Run("single sentence skips embedding", func(t *testing.T) {
		emb := &topicEmbedder{}
		chunks, err := NewSemanticSplitter(emb).Split(ctx, "Only one sentence here")
		require.NoError(t, err)
		assert.Equal(t, []string{"Only one sentence here"}, chunks)
		assert.Zero(t, emb.calls)
	})

	t.Run("embedder errors propagate", func(t *testing.T) {
		boom := errors.New("model offline")
		_, err := NewSemanticSplitter(&topicEmbedder{err: boom}).Split(ctx, text)
		assert.ErrorIs(t, err, boom)
	})
}
