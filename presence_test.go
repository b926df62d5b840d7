package feedsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestPresenceSnapshotAndDeltas(t *testing.T) {
	a := NewId()
	b := NewId()
	c := NewId()

	presence := NewPresenceStore()
	assert.Equal(t, false, presence.IsOnline(a))
	assert.Equal(t, 0, presence.OnlineCount())

	// the snapshot is authoritative and fully replaces the set
	presence.ReplaceAll([]Id{a, b})
	assert.Equal(t, true, presence.IsOnline(a))
	assert.Equal(t, true, presence.IsOnline(b))
	assert.Equal(t, false, presence.IsOnline(c))
	assert.Equal(t, 2, presence.OnlineCount())

	presence.Apply(c, PresenceStatusOnline)
	assert.Equal(t, true, presence.IsOnline(c))

	presence.Apply(a, PresenceStatusOffline)
	assert.Equal(t, false, presence.IsOnline(a))
	assert.Equal(t, 2, presence.OnlineCount())

	presence.ReplaceAll([]Id{c})
	assert.Equal(t, false, presence.IsOnline(b))
	assert.Equal(t, true, presence.IsOnline(c))
	assert.Equal(t, 1, presence.OnlineCount())
}

func TestPresenceChangeCallback(t *testing.T) {
	a := NewId()

	presence := NewPresenceStore()

	changes := []PresenceStatus{}
	unsub := presence.AddChangeCallback(func(userId Id, status PresenceStatus) {
		assert.Equal(t, a, userId)
		changes = append(changes, status)
	})

	presence.Apply(a, PresenceStatusOnline)
	// duplicate delta, no change
	presence.Apply(a, PresenceStatusOnline)
	presence.Apply(a, PresenceStatusOffline)
	assert.Equal(t, []PresenceStatus{PresenceStatusOnline, PresenceStatusOffline}, changes)

	unsub()
	presence.Apply(a, PresenceStatusOnline)
	assert.Equal(t, 2, len(changes))
}
