package feedsync

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func(int)]()

	out := []int{}

	aId := callbacks.Add(func(v int) {
		out = append(out, v)
	})
	bId := callbacks.Add(func(v int) {
		out = append(out, 10*v)
	})

	for _, callback := range callbacks.Get() {
		callback(1)
	}
	assert.Equal(t, []int{1, 10}, out)

	callbacks.Remove(aId)
	out = []int{}
	for _, callback := range callbacks.Get() {
		callback(2)
	}
	assert.Equal(t, []int{20}, out)

	// removing twice is a no-op
	callbacks.Remove(aId)
	callbacks.Remove(bId)
	assert.Equal(t, 0, len(callbacks.Get()))

	callbacks.Add(func(v int) {})
	callbacks.Clear()
	assert.Equal(t, 0, len(callbacks.Get()))
}

func TestReconnectBackoff(t *testing.T) {
	reconnect := NewReconnect(1*time.Second, 8*time.Second)

	assert.Equal(t, 1*time.Second, reconnect.NextTimeout())
	reconnect.After()
	assert.Equal(t, 2*time.Second, reconnect.NextTimeout())
	reconnect.After()
	assert.Equal(t, 4*time.Second, reconnect.NextTimeout())
	reconnect.After()
	assert.Equal(t, 8*time.Second, reconnect.NextTimeout())
	// bounded at the max
	reconnect.After()
	assert.Equal(t, 8*time.Second, reconnect.NextTimeout())

	reconnect.Reset()
	assert.Equal(t, 1*time.Second, reconnect.NextTimeout())
}

func TestHandleError(t *testing.T) {
	called := false
	HandleError(func() {
		called = true
		panic("boom")
	})
	assert.Equal(t, true, called)
}
