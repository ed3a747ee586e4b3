package blocklist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRows_BareFragment(t *testing.T) {
	// Row fragments arrive without a surrounding table element.
	rows := ParseRows(`<tr><td>a</td></tr><tr><td>b</td></tr>`)
	assert.Len(t, rows, 2)
}

func TestParseRows_Garbage(t *testing.T) {
	assert.Empty(t, ParseRows(`<div>no rows here</div>`))
}

func TestExtract_CachedAttributes(t *testing.T) {
	rows := ParseRows(`<tr data-username="cached_user" data-block-date="2024-03-01T12:00:00Z"><td></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "cached_user", rec.Username)
	require.NotNil(t, rec.BlockedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), *rec.BlockedAt)
}

func TestExtract_UsernameFromProfileLink(t *testing.T) {
	rows := ParseRows(`<tr><td class="user"><a href="https://example.com/user/some_user?context=3">some_user</a></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "some_user", rec.Username)
	assert.Nil(t, rec.BlockedAt)
	assert.Zero(t, rec.VoteWeight)
}

func TestExtract_MissingUsername(t *testing.T) {
	rows := ParseRows(`<tr><td>no link at all</td></tr>`)
	require.Len(t, rows, 1)

	_, err := NewExtractor().Extract(rows[0])
	assert.ErrorIs(t, err, ErrMissingUsername)
}

func TestExtract_OverlongUsernameRejected(t *testing.T) {
	// 21 characters, one over the limit.
	rows := ParseRows(`<tr data-username="abcdefghijklmnopqrstu"><td></td></tr>`)
	require.Len(t, rows, 1)

	_, err := NewExtractor().Extract(rows[0])
	assert.ErrorIs(t, err, ErrMissingUsername)
}

func TestExtract_DateFromTimeElement(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td><time datetime="2023-11-05T08:30:00Z">a while ago</time></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	require.NotNil(t, rec.BlockedAt)
	assert.Equal(t, 2023, rec.BlockedAt.Year())
	assert.Equal(t, time.November, rec.BlockedAt.Month())
}

func TestExtract_DateFromFreeText(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td>u1</td><td>5 Jan 2024</td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	require.NotNil(t, rec.BlockedAt)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *rec.BlockedAt)
}

func TestExtract_UnparseableDateStaysNil(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1" data-block-date="not-a-date"><td>yesterday-ish</td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Nil(t, rec.BlockedAt, "a failed parse must yield no date, never a zero date")
	assert.False(t, rec.HasBlockDate())
}

func TestExtract_VoteWeightFromTitle(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td><span class="voteWeight" title="u1: 12 upvotes, 5 downvotes">[+7]</span></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Equal(t, 7, rec.VoteWeight)
}

func TestExtract_VoteWeightBracketFallback(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td><span class="voteWeight" title="u1's votes">[-3]</span></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Equal(t, -3, rec.VoteWeight)
}

func TestExtract_VoteWeightDefaultsToZero(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td><span class="voteWeight">no numbers</span></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Zero(t, rec.VoteWeight)
}

func TestExtract_Tag(t *testing.T) {
	rows := ParseRows(`<tr data-username="u1"><td><a class="userTagLink hasTag">locked: do not touch</a></td></tr>`)
	require.Len(t, rows, 1)

	rec, err := NewExtractor().Extract(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "locked: do not touch", rec.Tag)
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("a"))
	assert.True(t, ValidUsername("abcdefghijklmnopqrst")) // exactly 20
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername("abcdefghijklmnopqrstu")) // 21
}
