package feedsync

import (
	"context"
	"sync"
)

// side effects (audio cue, toast) are kept out of the state-transition
// logic so the stores stay unit-testable without them
type SideEffects interface {
	MessageTone()
	ErrorToast(message string)
}

type noopSideEffects struct{}

func (self *noopSideEffects) MessageTone() {}

func (self *noopSideEffects) ErrorToast(message string) {}

type PostRemovedFunction = func(postId Id)
type EngineChangeFunction = func()

type FeedEngineSettings struct {
	CommentPageSize      int
	NotificationLimit    int
	ChannelSettings      *PlatformChannelSettings
	ConversationSettings *ConversationStoreSettings
	CommentSettings      *CommentStoreSettings
}

func DefaultFeedEngineSettings() *FeedEngineSettings {
	commentSettings := DefaultCommentStoreSettings()
	return &FeedEngineSettings{
		CommentPageSize:      commentSettings.PageSize,
		NotificationLimit:    50,
		ChannelSettings:      DefaultPlatformChannelSettings(),
		ConversationSettings: DefaultConversationStoreSettings(),
		CommentSettings:      commentSettings,
	}
}

// one authenticated session's stores plus its channel singleton
type feedSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	byJwt *ByJwt

	channel       *PlatformChannel
	conversations *ConversationStore
	notifications *NotificationStore
	comments      *CommentStore
	presence      *PresenceStore
	counters      *EntityCounterStore
	toggles       *OptimisticToggleController

	unsubs []func()
}

// owns the stores and the single live channel per authenticated session.
// the ui reads snapshots through the selectors and dispatches intents;
// it never mutates store entities directly.
type FeedEngine struct {
	ctx    context.Context
	cancel context.CancelFunc

	api         *FeedApi
	platformUrl string

	settings *FeedEngineSettings

	sideEffects SideEffects

	log LogFunction

	changeCallbacks       *CallbackList[EngineChangeFunction]
	channelStateCallbacks *CallbackList[ChannelStateFunction]
	postRemovedCallbacks  *CallbackList[PostRemovedFunction]

	stateLock sync.Mutex
	session   *feedSession
}

func NewFeedEngineWithDefaults(ctx context.Context, apiUrl string, platformUrl string) *FeedEngine {
	return NewFeedEngine(ctx, apiUrl, platformUrl, DefaultFeedEngineSettings())
}

func NewFeedEngine(ctx context.Context, apiUrl string, platformUrl string, settings *FeedEngineSettings) *FeedEngine {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &FeedEngine{
		ctx:                   cancelCtx,
		cancel:                cancel,
		api:                   NewFeedApiWithContext(cancelCtx, apiUrl),
		platformUrl:           platformUrl,
		settings:              settings,
		sideEffects:           &noopSideEffects{},
		log:                   LogFn(LogLevelDebug, "[en]"),
		changeCallbacks:       NewCallbackList[EngineChangeFunction](),
		channelStateCallbacks: NewCallbackList[ChannelStateFunction](),
		postRemovedCallbacks:  NewCallbackList[PostRemovedFunction](),
	}
}

func (self *FeedEngine) SetSideEffects(sideEffects SideEffects) {
	if sideEffects == nil {
		sideEffects = &noopSideEffects{}
	}
	self.sideEffects = sideEffects
}

func (self *FeedEngine) AddChangeCallback(callback EngineChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *FeedEngine) AddChannelStateCallback(callback ChannelStateFunction) func() {
	callbackId := self.channelStateCallbacks.Add(callback)
	return func() {
		self.channelStateCallbacks.Remove(callbackId)
	}
}

func (self *FeedEngine) AddPostRemovedCallback(callback PostRemovedFunction) func() {
	callbackId := self.postRemovedCallbacks.Add(callback)
	return func() {
		self.postRemovedCallbacks.Remove(callbackId)
	}
}

// tears down any previous session and establishes the channel singleton
// for the new one. no two live channels exist at any point.
func (self *FeedEngine) Login(byJwtStr string) error {
	byJwt, err := ParseByJwtUnverified(byJwtStr)
	if err != nil {
		return WrapError(CodeUnknown, "parse session token", err)
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.teardownSession()

	self.api.SetByJwt(byJwtStr)

	sessionCtx, sessionCancel := context.WithCancel(self.ctx)
	session := &feedSession{
		ctx:    sessionCtx,
		cancel: sessionCancel,
		byJwt:  byJwt,
	}

	session.conversations = NewConversationStore(
		sessionCtx,
		byJwt.UserId,
		func() ([]*ConversationSummary, error) {
			result, err := self.api.FetchConversationsSync()
			if err != nil {
				return nil, err
			}
			return result.Conversations, nil
		},
		func(conversationId Id) error {
			_, err := self.api.MarkConversationReadSync(&MarkConversationReadArgs{
				ConversationId: conversationId,
			})
			return err
		},
		self.settings.ConversationSettings,
	)

	session.notifications = NewNotificationStore(
		func(filter string, limit int) ([]*NotificationItem, int, error) {
			result, err := self.api.FetchNotificationsSync(&FetchNotificationsArgs{
				Filter: filter,
				Limit:  limit,
			})
			if err != nil {
				return nil, 0, err
			}
			return result.Activities, result.UnreadCount, nil
		},
		func() error {
			_, err := self.api.MarkAllNotificationsReadSync()
			return err
		},
	)

	session.comments = NewCommentStore(
		func(postId Id, page int, size int) ([]*Comment, error) {
			result, err := self.api.FetchCommentsSync(postId, page, size)
			if err != nil {
				return nil, err
			}
			return result.Comments, nil
		},
		func(postId Id, content string, attachments []*CommentAttachment) (*Comment, error) {
			result, err := self.api.CreateCommentSync(&CreateCommentArgs{
				PostId:      postId,
				Content:     content,
				Attachments: attachments,
			})
			if err != nil {
				return nil, err
			}
			return result.Comment, nil
		},
		self.settings.CommentSettings,
	)

	session.presence = NewPresenceStore()
	session.counters = NewEntityCounterStore()
	session.toggles = NewOptimisticToggleController()

	session.unsubs = append(session.unsubs, session.conversations.AddChangeCallback(func() {
		self.change()
	}))
	session.unsubs = append(session.unsubs, session.notifications.AddChangeCallback(func() {
		self.change()
	}))
	session.unsubs = append(session.unsubs, session.comments.AddChangeCallback(func(postId Id) {
		self.change()
	}))
	session.unsubs = append(session.unsubs, session.presence.AddChangeCallback(func(userId Id, status PresenceStatus) {
		self.change()
	}))
	session.unsubs = append(session.unsubs, session.counters.AddChangeCallback(func(entityId Id, relation string) {
		self.change()
	}))

	sessionLog := SubLogFn(LogLevelDebug, self.log, byJwt.UserId.String())

	session.channel = NewPlatformChannel(
		sessionCtx,
		self.platformUrl,
		&ChannelAuth{ByJwt: byJwtStr},
		self.settings.ChannelSettings,
	)
	session.unsubs = append(session.unsubs, session.channel.AddStateCallback(func(state ChannelState) {
		sessionLog("channel %s", state)
		for _, callback := range self.channelStateCallbacks.Get() {
			HandleError(func() {
				callback(state)
			})
		}
	}))
	session.unsubs = append(session.unsubs, session.channel.AddMessageCallback(func(message *Message) {
		applied := session.conversations.ApplyIncomingMessage(message)
		if applied && !message.IsMine(byJwt.UserId) {
			// fire and forget
			go HandleError(func() {
				self.sideEffects.MessageTone()
			})
		}
	}))
	session.unsubs = append(session.unsubs, session.channel.AddNotificationCallback(func(notification *NotificationItem) {
		session.notifications.ApplyIncoming(notification)
	}))
	session.unsubs = append(session.unsubs, session.channel.AddPresenceSnapshotCallback(func(snapshot *PresenceSnapshotEvent) {
		session.presence.ReplaceAll(snapshot.UserIds)
	}))
	session.unsubs = append(session.unsubs, session.channel.AddPresenceDeltaCallback(func(delta *PresenceDeltaEvent) {
		session.presence.Apply(delta.UserId, delta.Status)
	}))

	self.session = session

	self.log("login %s", byJwt.UserId)
	return nil
}

func (self *FeedEngine) Logout() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.teardownSession()
	self.api.SetByJwt("")
}

// must be called with `stateLock`
func (self *FeedEngine) teardownSession() {
	if self.session == nil {
		return
	}
	for _, unsub := range self.session.unsubs {
		unsub()
	}
	self.session.channel.Close()
	self.session.cancel()
	self.session = nil
}

func (self *FeedEngine) currentSession() *feedSession {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.session
}

// pending completions check this before mutating state so a response
// that raced a logout cannot write into a torn-down session
func (self *FeedEngine) stillCurrent(session *feedSession) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.session == session
}

func (self *FeedEngine) Close() {
	self.Logout()
	self.api.Close()
	self.cancel()
}

// intents

func (self *FeedEngine) RefreshConversations() error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	return session.conversations.LoadAll()
}

func (self *FeedEngine) SendMessage(conversationId Id, content string) (*Message, error) {
	session := self.currentSession()
	if session == nil {
		return nil, NewError(CodeLoggedOut, "not logged in")
	}

	result, err := self.api.SendMessageSync(&SendMessageArgs{
		ConversationId: conversationId,
		Content:        content,
	})
	if err != nil {
		return nil, TransientNetwork("send message", err)
	}

	if !self.stillCurrent(session) {
		// the write is dropped, not the result
		self.log("send = %s", NewError(CodeStaleView, "session replaced before completion"))
		return result.Message, nil
	}

	// the channel may also echo this message; the store collapses the
	// duplicate by id
	session.conversations.ApplyIncomingMessage(result.Message)
	return result.Message, nil
}

func (self *FeedEngine) MarkConversationRead(conversationId Id) {
	session := self.currentSession()
	if session == nil {
		return
	}
	session.conversations.MarkRead(conversationId)
}

func (self *FeedEngine) RefreshNotifications(filter string) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	return session.notifications.LoadInitial(filter, self.settings.NotificationLimit)
}

func (self *FeedEngine) MarkAllNotificationsRead() error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	return session.notifications.MarkAllRead()
}

func (self *FeedEngine) FetchCommentsPage(postId Id, page int) bool {
	session := self.currentSession()
	if session == nil {
		return false
	}
	return session.comments.FetchPage(postId, page, self.settings.CommentPageSize)
}

func (self *FeedEngine) SubmitComment(postId Id, content string, attachments []*CommentAttachment) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	err := session.comments.Submit(postId, content, attachments)
	if err != nil {
		self.toast(err)
	}
	return err
}

func (self *FeedEngine) CommentScrollSignal(postId Id) bool {
	session := self.currentSession()
	if session == nil {
		return false
	}
	return session.comments.ScrollSignal(postId)
}

// feed data entry points for toggle counters

func (self *FeedEngine) SeedPostCounters(postId Id, liked bool, likeCount int, reposted bool, repostCount int) {
	session := self.currentSession()
	if session == nil {
		return
	}
	session.counters.Seed(postId, ToggleRelationLike, liked, likeCount)
	session.counters.Seed(postId, ToggleRelationRepost, reposted, repostCount)
}

func (self *FeedEngine) SeedUserFollow(userId Id, following bool, followerCount int) {
	session := self.currentSession()
	if session == nil {
		return
	}
	session.counters.Seed(userId, ToggleRelationFollow, following, followerCount)
}

func (self *FeedEngine) ToggleLike(postId Id) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	err := session.toggles.Toggle(
		postId,
		ToggleRelationLike,
		func() (ToggleState, bool) {
			return session.counters.Get(postId, ToggleRelationLike)
		},
		func(state ToggleState) {
			session.counters.set(postId, ToggleRelationLike, state)
		},
		func() (*ToggleResponse, error) {
			result, err := self.api.ToggleLikeSync(&ToggleLikeArgs{PostId: postId})
			if err != nil {
				return nil, err
			}
			return &ToggleResponse{Value: result.Liked, Count: result.LikeCount}, nil
		},
	)
	if err != nil {
		self.toast(err)
	}
	return err
}

func (self *FeedEngine) ToggleRepost(postId Id) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	err := session.toggles.Toggle(
		postId,
		ToggleRelationRepost,
		func() (ToggleState, bool) {
			return session.counters.Get(postId, ToggleRelationRepost)
		},
		func(state ToggleState) {
			session.counters.set(postId, ToggleRelationRepost, state)
		},
		func() (*ToggleResponse, error) {
			result, err := self.api.ToggleRepostSync(&ToggleRepostArgs{PostId: postId})
			if err != nil {
				return nil, err
			}
			return &ToggleResponse{Value: result.Reposted, Count: result.RepostCount}, nil
		},
	)
	if err != nil {
		self.toast(err)
	}
	return err
}

func (self *FeedEngine) ToggleFollow(userId Id) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	err := session.toggles.Toggle(
		userId,
		ToggleRelationFollow,
		func() (ToggleState, bool) {
			return session.counters.Get(userId, ToggleRelationFollow)
		},
		func(state ToggleState) {
			session.counters.set(userId, ToggleRelationFollow, state)
		},
		func() (*ToggleResponse, error) {
			result, err := self.api.ToggleFollowSync(&ToggleFollowArgs{UserId: userId})
			if err != nil {
				return nil, err
			}
			return &ToggleResponse{Value: result.Following, Count: result.FollowerCount}, nil
		},
	)
	if err != nil {
		self.toast(err)
	}
	return err
}

func (self *FeedEngine) DeletePost(postId Id) error {
	session := self.currentSession()
	if session == nil {
		return NewError(CodeLoggedOut, "not logged in")
	}
	err := session.toggles.ConfirmedRemove(
		postId,
		"delete",
		func() error {
			_, err := self.api.DeletePostSync(&DeletePostArgs{PostId: postId})
			return err
		},
		func() {
			if !self.stillCurrent(session) {
				self.log("delete %s = %s", postId, NewError(CodeStaleView, "session replaced before completion"))
				return
			}
			session.counters.Remove(postId)
			for _, callback := range self.postRemovedCallbacks.Get() {
				HandleError(func() {
					callback(postId)
				})
			}
		},
	)
	if err != nil {
		self.toast(err)
	}
	return err
}

// selectors

func (self *FeedEngine) Conversations() []*ConversationSummary {
	session := self.currentSession()
	if session == nil {
		return nil
	}
	return session.conversations.Conversations()
}

func (self *FeedEngine) ConversationMessages(conversationId Id) []*Message {
	session := self.currentSession()
	if session == nil {
		return nil
	}
	return session.conversations.Messages(conversationId)
}

func (self *FeedEngine) Notifications() []*NotificationItem {
	session := self.currentSession()
	if session == nil {
		return nil
	}
	return session.notifications.Items()
}

func (self *FeedEngine) UnreadNotificationCount() int {
	session := self.currentSession()
	if session == nil {
		return 0
	}
	return session.notifications.UnreadCount()
}

func (self *FeedEngine) IsOnline(userId Id) bool {
	session := self.currentSession()
	if session == nil {
		return false
	}
	return session.presence.IsOnline(userId)
}

func (self *FeedEngine) CommentPage(postId Id) *CommentPage {
	session := self.currentSession()
	if session == nil {
		return &CommentPage{HasMore: true}
	}
	return session.comments.Page(postId)
}

func (self *FeedEngine) ToggleState(entityId Id, relation string) (ToggleState, bool) {
	session := self.currentSession()
	if session == nil {
		return ToggleState{}, false
	}
	return session.counters.Get(entityId, relation)
}

func (self *FeedEngine) ToggleInFlight(entityId Id, relation string) bool {
	session := self.currentSession()
	if session == nil {
		return false
	}
	return session.toggles.InFlight(entityId, relation)
}

func (self *FeedEngine) SelfUserId() (Id, bool) {
	session := self.currentSession()
	if session == nil {
		return Id{}, false
	}
	return session.byJwt.UserId, true
}

func (self *FeedEngine) toast(err error) {
	go HandleError(func() {
		self.sideEffects.ErrorToast(err.Error())
	})
}

func (self *FeedEngine) change() {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback()
		})
	}
}
