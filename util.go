package feedsync

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// makes a copy of the list on read so that callbacks can
// unregister themselves while being iterated
type CallbackList[T any] struct {
	mutex          sync.Mutex
	nextCallbackId int
	callbackIds    []int
	callbacks      map[int]T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: map[int]T{},
	}
}

// in registration order
func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.callbackIds))
	for _, callbackId := range self.callbackIds {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextCallbackId
	self.nextCallbackId += 1
	self.callbackIds = append(self.callbackIds, callbackId)
	self.callbacks[callbackId] = callback
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbackIds, callbackId)
	if i < 0 {
		// not present
		return
	}
	self.callbackIds = slices.Delete(slices.Clone(self.callbackIds), i, i+1)
	delete(self.callbacks, callbackId)
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.callbackIds = nil
	maps.Clear(self.callbacks)
}

// bounded exponential backoff for the channel reconnect loop.
// the delay doubles on each `After` up to the max, and drops back
// to the min on `Reset` (called after a healthy connection).
type Reconnect struct {
	minTimeout time.Duration
	maxTimeout time.Duration

	mutex   sync.Mutex
	timeout time.Duration
}

func NewReconnect(minTimeout time.Duration, maxTimeout time.Duration) *Reconnect {
	return &Reconnect{
		minTimeout: minTimeout,
		maxTimeout: maxTimeout,
		timeout:    minTimeout,
	}
}

func (self *Reconnect) After() <-chan time.Time {
	self.mutex.Lock()
	timeout := self.timeout
	self.timeout = min(2*self.timeout, self.maxTimeout)
	self.mutex.Unlock()

	return time.After(timeout)
}

func (self *Reconnect) NextTimeout() time.Duration {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.timeout
}

func (self *Reconnect) Reset() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.timeout = self.minTimeout
}

// note all user callbacks are wrapped to recover from errors
func HandleError(do func()) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("Unexpected error: %s\n%s\n", r, debug.Stack())
		}
	}()
	do()
}
