package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/replbox/internal/script"
)

func TestPeekString(t *testing.T) {
	text := "line1\nline2\nline3\nline4\nline5"
	end := int64(3)
	assert.Equal(t, "line2\nline3", Peek(text, 1, &end))
}

func TestPeekStringOpenEnd(t *testing.T) {
	text := "a\nb\nc"
	assert.Equal(t, "b\nc", Peek(text, 1, nil))
}

func TestPeekList(t *testing.T) {
	data := script.NewList(int64(1), int64(2), int64(3), int64(4), int64(5))
	end := int64(2)
	result := Peek(data, 0, &end)
	assert.Contains(t, result, "[1, 2]")
}

func TestPeekStringList(t *testing.T) {
	data := script.NewList("alpha", "beta", "gamma")
	end := int64(2)
	assert.Equal(t, "alpha\nbeta", Peek(data, 0, &end))
}

func TestPeekClamping(t *testing.T) {
	end := int64(100)
	assert.Equal(t, "only", Peek("only", 0, &end))
	assert.Equal(t, "", Peek("only", 10, nil))
}

func TestSearchString(t *testing.T) {
	text := "foo bar\nbaz foo\nqux"
	hits, err := Search(text, "foo", false, true, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(0), hits[0].Index)
	assert.Equal(t, int64(1), hits[1].Index)
	assert.Equal(t, "foo bar", hits[0].Content)
}

func TestSearchRegex(t *testing.T) {
	text := "error: something\nwarning: other\nerror: again"
	hits, err := Search(text, "error:.*", true, true, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchLiteralQuotesMeta(t *testing.T) {
	hits, err := Search("a.c\nabc", "a.c", false, true, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(0), hits[0].Index)
}

func TestSearchCaseInsensitive(t *testing.T) {
	text := "Hello\nhello\nHELLO"
	hits, err := Search(text, "hello", false, false, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearchContext(t *testing.T) {
	text := "a\nb\nmatch\nc\nd"
	hits, err := Search(text, "match", false, true, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].HasCtx)
	assert.Equal(t, "b\nmatch\nc", hits[0].Context)
}

func TestSearchList(t *testing.T) {
	data := script.NewList("apple", int64(42), "applesauce")
	hits, err := Search(data, "apple", false, true, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(0), hits[0].Index)
	assert.Equal(t, int64(2), hits[1].Index)
}

func TestSearchDict(t *testing.T) {
	d := script.NewDict()
	require.NoError(t, d.Set("name", "gopher"))
	require.NoError(t, d.Set("other", int64(1)))
	hits, err := Search(d, "gopher", false, true, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].IsKeyed)
	assert.Equal(t, "name", hits[0].Key)
	assert.Equal(t, "gopher", hits[0].Content)
}

func TestCountTokens(t *testing.T) {
	text := "This is a test string"
	assert.Equal(t, int64(len(text)/4), CountTokens(text))
	assert.Greater(t, CountTokens(text), int64(0))
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("a", 10000)
	out := Truncate(text, 100)
	assert.Less(t, len(out), len(text))
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, 400, len(out))

	assert.Equal(t, "short", Truncate("short", 100))
}

func TestExtractCodeBlocks(t *testing.T) {
	text := "\nSome text\n```python\ndef foo():\n    pass\n```\nMore text\n```javascript\nconsole.log('hi')\n```\n"
	blocks := ExtractCodeBlocks(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, "python", blocks[0].Language)
	assert.Contains(t, blocks[0].Code, "def foo")
	assert.Equal(t, "javascript", blocks[1].Language)
}

func TestExtractCodeBlocksDefaultLanguage(t *testing.T) {
	blocks := ExtractCodeBlocks("```\nplain\n```")
	require.Len(t, blocks, 1)
	assert.Equal(t, "text", blocks[0].Language)
	assert.Equal(t, "plain", blocks[0].Code)
}

func TestChunkTextOverlap(t *testing.T) {
	chunks := ChunkText("a\nb\nc", 2, 1)
	assert.Equal(t, []string{"a\nb", "b\nc"}, chunks)
}

func TestChunkTextSingleChunk(t *testing.T) {
	chunks := ChunkText("tiny", 500, 50)
	assert.Equal(t, []string{"tiny"}, chunks)
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", 500, 50))
}
