package feedsync

import (
	"sync"

	"golang.org/x/exp/slices"
)

type FetchNotificationsFunction = func(filter string, limit int) ([]*NotificationItem, int, error)
type MarkAllNotificationsReadFunction = func() error
type NotificationsChangeFunction = func()

// newest-first notification items plus a cached unread counter.
// the counter is incremented per arriving event and reset only by
// a confirmed mark-all-read, never recomputed by scanning.
type NotificationStore struct {
	fetchNotifications       FetchNotificationsFunction
	markAllNotificationsRead MarkAllNotificationsReadFunction

	log LogFunction

	stateLock   sync.Mutex
	items       []*NotificationItem
	itemIndexes map[Id]int
	unreadCount int

	changeCallbacks *CallbackList[NotificationsChangeFunction]
}

func NewNotificationStore(
	fetchNotifications FetchNotificationsFunction,
	markAllNotificationsRead MarkAllNotificationsReadFunction,
) *NotificationStore {
	return &NotificationStore{
		fetchNotifications:       fetchNotifications,
		markAllNotificationsRead: markAllNotificationsRead,
		log:                      LogFn(LogLevelDebug, "[nt]"),
		itemIndexes:              map[Id]int{},
		changeCallbacks:          NewCallbackList[NotificationsChangeFunction](),
	}
}

func (self *NotificationStore) AddChangeCallback(callback NotificationsChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

// replaces the cached items and counter with the backend state
func (self *NotificationStore) LoadInitial(filter string, limit int) error {
	items, unreadCount, err := self.fetchNotifications(filter, limit)
	if err != nil {
		return TransientNetwork("fetch notifications", err)
	}

	self.stateLock.Lock()
	self.items = slices.Clone(items)
	self.itemIndexes = map[Id]int{}
	for i, item := range self.items {
		self.itemIndexes[item.NotificationId] = i
	}
	self.unreadCount = unreadCount
	self.stateLock.Unlock()

	self.change()
	return nil
}

// prepends a channel-delivered item. duplicates by id are dropped so an
// at-least-once redelivery cannot inflate the counter.
// returns false when the item was a duplicate.
func (self *NotificationStore) ApplyIncoming(item *NotificationItem) bool {
	self.stateLock.Lock()

	if _, ok := self.itemIndexes[item.NotificationId]; ok {
		self.stateLock.Unlock()
		self.log("dup %s", item.NotificationId)
		return false
	}

	self.items = append([]*NotificationItem{item}, self.items...)
	for i, existing := range self.items {
		self.itemIndexes[existing.NotificationId] = i
	}
	if !item.Read {
		self.unreadCount += 1
	}

	self.stateLock.Unlock()

	self.change()
	return true
}

// the only bulk mutation in the engine, and deliberately not optimistic:
// the flags flip after the backend confirms, because under-reporting
// unread is worse than a brief lag.
func (self *NotificationStore) MarkAllRead() error {
	if err := self.markAllNotificationsRead(); err != nil {
		return TransientNetwork("mark all notifications read", err)
	}

	self.stateLock.Lock()
	self.unreadCount = 0
	for _, item := range self.items {
		item.Read = true
	}
	self.stateLock.Unlock()

	self.change()
	return nil
}

func (self *NotificationStore) Items() []*NotificationItem {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	items := make([]*NotificationItem, len(self.items))
	for i, item := range self.items {
		itemCopy := *item
		items[i] = &itemCopy
	}
	return items
}

func (self *NotificationStore) UnreadCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.unreadCount
}

func (self *NotificationStore) change() {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback()
		})
	}
}
