package feedsync

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

type FetchConversationsFunction = func() ([]*ConversationSummary, error)
type MarkConversationReadFunction = func(conversationId Id) error
type ConversationsChangeFunction = func()

type ConversationStoreSettings struct {
	// messages for unknown conversation ids schedule a full refetch.
	// triggers inside this window collapse to one refetch.
	RefreshCoalesceTimeout time.Duration
}

func DefaultConversationStoreSettings() *ConversationStoreSettings {
	return &ConversationStoreSettings{
		RefreshCoalesceTimeout: 250 * time.Millisecond,
	}
}

// ordered conversation summaries, most recent last message first,
// with an id index so channel events update in O(1) lookups instead
// of scanning the sequence.
type ConversationStore struct {
	ctx context.Context

	selfUserId Id

	fetchConversations   FetchConversationsFunction
	markConversationRead MarkConversationReadFunction

	settings *ConversationStoreSettings

	log LogFunction

	stateLock      sync.Mutex
	summaries      []*ConversationSummary
	summaryIndexes map[Id]int
	// arrival-ordered loaded message window per conversation
	messages   map[Id][]*Message
	messageIds map[Id]map[Id]bool

	refreshPending bool

	changeCallbacks *CallbackList[ConversationsChangeFunction]
}

func NewConversationStoreWithDefaults(
	ctx context.Context,
	selfUserId Id,
	fetchConversations FetchConversationsFunction,
	markConversationRead MarkConversationReadFunction,
) *ConversationStore {
	return NewConversationStore(
		ctx,
		selfUserId,
		fetchConversations,
		markConversationRead,
		DefaultConversationStoreSettings(),
	)
}

func NewConversationStore(
	ctx context.Context,
	selfUserId Id,
	fetchConversations FetchConversationsFunction,
	markConversationRead MarkConversationReadFunction,
	settings *ConversationStoreSettings,
) *ConversationStore {
	return &ConversationStore{
		ctx:                  ctx,
		selfUserId:           selfUserId,
		fetchConversations:   fetchConversations,
		markConversationRead: markConversationRead,
		settings:             settings,
		log:                  LogFn(LogLevelDebug, "[cv]"),
		summaryIndexes:       map[Id]int{},
		messages:             map[Id][]*Message{},
		messageIds:           map[Id]map[Id]bool{},
		changeCallbacks:      NewCallbackList[ConversationsChangeFunction](),
	}
}

func (self *ConversationStore) AddChangeCallback(callback ConversationsChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

// replaces the full sequence. safe to call repeatedly.
func (self *ConversationStore) LoadAll() error {
	summaries, err := self.fetchConversations()
	if err != nil {
		return TransientNetwork("fetch conversations", err)
	}

	ordered := slices.Clone(summaries)
	slices.SortStableFunc(ordered, func(a *ConversationSummary, b *ConversationSummary) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})

	self.stateLock.Lock()
	self.summaries = ordered
	self.summaryIndexes = map[Id]int{}
	for i, summary := range ordered {
		self.summaryIndexes[summary.ConversationId] = i
	}
	self.stateLock.Unlock()

	self.log("load n=%d", len(ordered))
	self.change()
	return nil
}

// applies a message from either the channel echo or the send response.
// duplicate deliveries collapse by message id. a message for an unknown
// conversation does not synthesize a partial summary; it schedules a
// coalesced full refetch so participant metadata stays correct.
// returns false when the message was a duplicate.
func (self *ConversationStore) ApplyIncomingMessage(message *Message) bool {
	self.stateLock.Lock()

	seen := self.messageIds[message.ConversationId]
	if seen == nil {
		seen = map[Id]bool{}
		self.messageIds[message.ConversationId] = seen
	}
	if seen[message.MessageId] {
		self.stateLock.Unlock()
		self.log("dup %s", message.MessageId)
		return false
	}
	seen[message.MessageId] = true
	self.messages[message.ConversationId] = append(self.messages[message.ConversationId], message)

	i, ok := self.summaryIndexes[message.ConversationId]
	if !ok {
		self.scheduleRefresh()
		self.stateLock.Unlock()
		self.change()
		return true
	}

	summary := self.summaries[i]
	summary.LastMessageText = message.Content
	summary.LastMessageAt = message.CreatedAt
	summary.Unread = summary.Unread || !message.IsMine(self.selfUserId)

	// move to head
	copy(self.summaries[1:i+1], self.summaries[0:i])
	self.summaries[0] = summary
	for j := 0; j <= i; j += 1 {
		self.summaryIndexes[self.summaries[j].ConversationId] = j
	}

	self.stateLock.Unlock()

	self.change()
	return true
}

// optimistically clears the unread flag, then confirms with the backend.
// a REST failure is logged and not rolled back: a stale unread-false is
// preferable to re-surfacing a read conversation.
func (self *ConversationStore) MarkRead(conversationId Id) {
	self.stateLock.Lock()
	changed := false
	if i, ok := self.summaryIndexes[conversationId]; ok {
		if self.summaries[i].Unread {
			self.summaries[i].Unread = false
			changed = true
		}
	}
	self.stateLock.Unlock()

	if changed {
		self.change()
	}

	if err := self.markConversationRead(conversationId); err != nil {
		glog.Infof("[cv]mark read error %s = %s\n", conversationId, err)
	}
}

func (self *ConversationStore) Conversations() []*ConversationSummary {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	summaries := make([]*ConversationSummary, len(self.summaries))
	for i, summary := range self.summaries {
		summaryCopy := *summary
		summaries[i] = &summaryCopy
	}
	return summaries
}

func (self *ConversationStore) Conversation(conversationId Id) (*ConversationSummary, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if i, ok := self.summaryIndexes[conversationId]; ok {
		summaryCopy := *self.summaries[i]
		return &summaryCopy, true
	}
	return nil, false
}

func (self *ConversationStore) Messages(conversationId Id) []*Message {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return slices.Clone(self.messages[conversationId])
}

func (self *ConversationStore) UnreadConversationCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	count := 0
	for _, summary := range self.summaries {
		if summary.Unread {
			count += 1
		}
	}
	return count
}

// must be called with `stateLock`
func (self *ConversationStore) scheduleRefresh() {
	if self.refreshPending {
		return
	}
	self.refreshPending = true

	time.AfterFunc(self.settings.RefreshCoalesceTimeout, func() {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		err := self.LoadAll()

		self.stateLock.Lock()
		self.refreshPending = false
		self.stateLock.Unlock()

		if err != nil {
			glog.Infof("[cv]refresh error = %s\n", err)
		}
	})
}

func (self *ConversationStore) change() {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback()
		})
	}
}
