package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	token := Encode(at, "txn_abc123")

	c, err := Decode(token)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(at))
	assert.Equal(t, "txn_abc123", c.ID)
}

func TestDecodeEmptyIsNil(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"not-base64!!", "bm9waXBl", "fHx8"} {
		_, err := Decode(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestAfterOrdering(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Cursor{CreatedAt: at, ID: "txn_b"}

	assert.True(t, c.After(at.Add(time.Second), "txn_a"), "later timestamp wins")
	assert.True(t, c.After(at, "txn_c"), "equal timestamp falls back to ID")
	assert.False(t, c.After(at, "txn_a"))
	assert.False(t, c.After(at.Add(-time.Second), "txn_z"))
}

func TestPage(t *testing.T) {
	type item struct {
		at time.Time
		id string
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []item{
		{base, "txn_1"},
		{base.Add(time.Second), "txn_2"},
		{base.Add(2 * time.Second), "txn_3"},
	}
	key := func(i item) (time.Time, string) { return i.at, i.id }

	// Fetched limit+1: one extra means another page exists.
	page, next, more := Page(items, 2, key)
	require.Len(t, page, 2)
	assert.True(t, more)

	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "txn_2", c.ID)

	// Exactly at the limit: no next page.
	page, next, more = Page(items[:2], 2, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
	assert.False(t, more)
}
