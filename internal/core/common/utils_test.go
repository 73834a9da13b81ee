package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type titleResult struct {
	Title string `json:"title"`
}

func TestParseJSON(t *testing.T) {
	got, err := ParseJSON[titleResult]("Sure! ```json\n{\"title\": \"Late night talk\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Late night talk", got.Title)

	_, err = ParseJSON[titleResult]("no json here")
	assert.Error(t, err)

	_, err = ParseJSON[titleResult]("} backwards {")
	assert.Error(t, err)

	_, err = ParseJSON[titleResult](`{"title": 12}`)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "", Truncate("hello", 0))
	// multi-byte runes are counted as one
	assert.Equal(t, "안녕", Truncate("안녕하세요", 2))
	assert.Equal(t, "♈♉", Truncate("♈♉♊", 2))
}

func TestEllipsize(t *testing.T) {
	assert.Equal(t, "abc", Ellipsize("abc", 5))
	assert.Equal(t, "ab...", Ellipsize("abcdef", 2))
}
