package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRegistry_IndexesBySession(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "a", SessionID: "s1"})
	r.Add(&Client{ID: "b", SessionID: "s1"})
	r.Add(&Client{ID: "c", SessionID: "s2"})

	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.BySession("s1"), 2)
	assert.Len(t, r.BySession("s2"), 1)
	assert.Empty(t, r.BySession("s3"))

	r.Remove("a")
	r.Remove("c")
	r.Remove("missing")
	assert.Equal(t, 1, r.Count())
	require.Len(t, r.BySession("s1"), 1)
	assert.Equal(t, "b", r.BySession("s1")[0].ID)
	assert.Empty(t, r.BySession("s2"))
	assert.NotContains(t, r.bySession, "s2")
}

func TestClientRegistry_ReAddMovesSession(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "a", SessionID: "s1"})
	r.Add(&Client{ID: "a", SessionID: "s2"})

	assert.Equal(t, 1, r.Count())
	assert.Empty(t, r.BySession("s1"))
	assert.Len(t, r.BySession("s2"), 1)
}

func TestClientRegistry_SnapshotMarksIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewClientRegistry()
	r.now = func() time.Time { return now }

	r.Add(&Client{ID: "old", SessionID: "s1", ConnectedAt: now.Add(-time.Hour), LastActivity: now.Add(-time.Hour)})
	r.Add(&Client{ID: "new", SessionID: "s1", ConnectedAt: now.Add(-time.Minute), LastActivity: now.Add(-time.Minute)})

	infos := r.Snapshot()
	require.Len(t, infos, 2)
	assert.Equal(t, "old", infos[0].ID)
	assert.True(t, infos[0].Idle)
	assert.False(t, infos[1].Idle)

	r.Touch("old")
	infos = r.Snapshot()
	assert.False(t, infos[0].Idle)
	assert.Equal(t, now, infos[0].LastActivity)
}
