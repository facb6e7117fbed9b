package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	enc := EncodeCursor(1725180000000000000, "post-abc")
	cur, err := DecodeCursor(enc)
	require.NoError(t, err)
	assert.Equal(t, int64(1725180000000000000), cur.Score)
	assert.Equal(t, "post-abc", cur.PostID)
}

func TestCursorEmptyMeansFirstPage(t *testing.T) {
	cur, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, cur)
}

func TestCursorMalformed(t *testing.T) {
	for _, s := range []string{"!!!not-base64!!!", "aGVsbG8", EncodeCursor(1, "")} {
		_, err := DecodeCursor(s)
		assert.ErrorIs(t, err, ErrBadCursor, "input %q", s)
	}
}

func TestCursorNegativeScore(t *testing.T) {
	// score 可以为任意 int64，游标不应丢符号
	cur, err := DecodeCursor(EncodeCursor(-5, "p1"))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), cur.Score)
}
