package feedsync

import (
	"sync"

	"golang.org/x/exp/maps"
)

type PresenceChangeFunction = func(userId Id, status PresenceStatus)

// set of currently online user ids. mutated only by channel events:
// the snapshot fully replaces the set, deltas are additive/subtractive.
type PresenceStore struct {
	stateLock sync.Mutex

	onlineUserIds map[Id]bool

	changeCallbacks *CallbackList[PresenceChangeFunction]
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		onlineUserIds:   map[Id]bool{},
		changeCallbacks: NewCallbackList[PresenceChangeFunction](),
	}
}

func (self *PresenceStore) AddChangeCallback(callback PresenceChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *PresenceStore) ReplaceAll(userIds []Id) {
	self.stateLock.Lock()
	maps.Clear(self.onlineUserIds)
	for _, userId := range userIds {
		self.onlineUserIds[userId] = true
	}
	self.stateLock.Unlock()

	for _, userId := range userIds {
		self.change(userId, PresenceStatusOnline)
	}
}

func (self *PresenceStore) Apply(userId Id, status PresenceStatus) {
	self.stateLock.Lock()
	changed := false
	switch status {
	case PresenceStatusOnline:
		if !self.onlineUserIds[userId] {
			self.onlineUserIds[userId] = true
			changed = true
		}
	case PresenceStatusOffline:
		if self.onlineUserIds[userId] {
			delete(self.onlineUserIds, userId)
			changed = true
		}
	}
	self.stateLock.Unlock()

	if changed {
		self.change(userId, status)
	}
}

func (self *PresenceStore) IsOnline(userId Id) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.onlineUserIds[userId]
}

func (self *PresenceStore) OnlineUserIds() []Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return maps.Keys(self.onlineUserIds)
}

func (self *PresenceStore) OnlineCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.onlineUserIds)
}

func (self *PresenceStore) change(userId Id, status PresenceStatus) {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback(userId, status)
		})
	}
}
