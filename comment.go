package feedsync

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

type FetchCommentsFunction = func(postId Id, page int, size int) ([]*Comment, error)
type CreateCommentFunction = func(postId Id, content string, attachments []*CommentAttachment) (*Comment, error)
type CommentsChangeFunction = func(postId Id)

type CommentStoreSettings struct {
	PageSize int
	// collapses rapid infinite-scroll signals into at most one fetch
	ScrollDebounceTimeout time.Duration
}

func DefaultCommentStoreSettings() *CommentStoreSettings {
	return &CommentStoreSettings{
		PageSize:              10,
		ScrollDebounceTimeout: 300 * time.Millisecond,
	}
}

// ui-visible page state for one post
type CommentPage struct {
	Comments    []*Comment
	Page        int
	HasMore     bool
	Loading     bool
	LoadingMore bool
	Submitting  bool
	Error       string
}

type commentPageState struct {
	comments   []*Comment
	commentIds map[Id]bool
	page       int
	fetched    bool
	hasMore    bool
	// pages with a request in flight. a second fetch of the same page
	// while one is loading is a no-op.
	inFlightPages  map[int]bool
	submitting     bool
	err            string
	lastScrollTime time.Time
}

func newCommentPageState() *commentPageState {
	return &commentPageState{
		commentIds:    map[Id]bool{},
		hasMore:       true,
		inFlightPages: map[int]bool{},
	}
}

// must be called with the store's `stateLock`

func (self *commentPageState) loading() bool {
	return self.inFlightPages[0]
}

func (self *commentPageState) loadingMore() bool {
	for page := range self.inFlightPages {
		if 0 < page {
			return true
		}
	}
	return false
}

// per-post paged comment lists. page 0 fetches replace the items
// (refresh semantics), later pages extend the tail; a freshly authored
// comment is inserted at the head.
type CommentStore struct {
	fetchComments FetchCommentsFunction
	createComment CreateCommentFunction

	settings *CommentStoreSettings

	log LogFunction

	stateLock sync.Mutex
	pages     map[Id]*commentPageState

	changeCallbacks *CallbackList[CommentsChangeFunction]
}

func NewCommentStoreWithDefaults(
	fetchComments FetchCommentsFunction,
	createComment CreateCommentFunction,
) *CommentStore {
	return NewCommentStore(fetchComments, createComment, DefaultCommentStoreSettings())
}

func NewCommentStore(
	fetchComments FetchCommentsFunction,
	createComment CreateCommentFunction,
	settings *CommentStoreSettings,
) *CommentStore {
	return &CommentStore{
		fetchComments:   fetchComments,
		createComment:   createComment,
		settings:        settings,
		log:             LogFn(LogLevelDebug, "[cm]"),
		pages:           map[Id]*commentPageState{},
		changeCallbacks: NewCallbackList[CommentsChangeFunction](),
	}
}

func (self *CommentStore) AddChangeCallback(callback CommentsChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

// must be called with `stateLock`
func (self *CommentStore) pageState(postId Id) *commentPageState {
	state, ok := self.pages[postId]
	if !ok {
		state = newCommentPageState()
		self.pages[postId] = state
	}
	return state
}

// returns false when the fetch was suppressed (already in flight, or the
// thread is exhausted for page > 0)
func (self *CommentStore) FetchPage(postId Id, page int, size int) bool {
	self.stateLock.Lock()
	state := self.pageState(postId)
	if 0 < page && !state.hasMore {
		self.stateLock.Unlock()
		return false
	}
	if state.inFlightPages[page] {
		self.stateLock.Unlock()
		return false
	}
	state.inFlightPages[page] = true
	self.stateLock.Unlock()

	self.change(postId)

	comments, err := self.fetchComments(postId, page, size)

	self.stateLock.Lock()
	delete(state.inFlightPages, page)
	if err != nil {
		state.err = err.Error()
		self.stateLock.Unlock()
		glog.Infof("[cm]fetch error %s p%d = %s\n", postId, page, err)
		self.change(postId)
		return true
	}
	state.err = ""
	if page == 0 {
		state.comments = nil
		state.commentIds = map[Id]bool{}
	}
	for _, comment := range comments {
		if state.commentIds[comment.CommentId] {
			continue
		}
		state.commentIds[comment.CommentId] = true
		state.comments = append(state.comments, comment)
	}
	state.page = page
	state.fetched = true
	// the thread is exhausted only when a short page comes back
	state.hasMore = len(comments) == size
	self.stateLock.Unlock()

	self.log("fetch %s p%d n=%d", postId, page, len(comments))
	self.change(postId)
	return true
}

func (self *CommentStore) Submit(postId Id, content string, attachments []*CommentAttachment) error {
	self.stateLock.Lock()
	state := self.pageState(postId)
	if state.submitting {
		self.stateLock.Unlock()
		return ActionInFlight("comment submit already in flight")
	}
	state.submitting = true
	self.stateLock.Unlock()

	self.change(postId)

	comment, err := self.createComment(postId, content, attachments)

	self.stateLock.Lock()
	state.submitting = false
	if err != nil {
		state.err = err.Error()
		self.stateLock.Unlock()
		self.change(postId)
		return TransientNetwork("create comment", err)
	}
	state.err = ""
	if !state.commentIds[comment.CommentId] {
		state.commentIds[comment.CommentId] = true
		// authored comments go to the head, pages extend the tail
		state.comments = append([]*Comment{comment}, state.comments...)
	}
	self.stateLock.Unlock()

	self.change(postId)
	return nil
}

// infinite-scroll trigger. fires the next page fetch only when more is
// expected and nothing is loading; rapid signals inside the debounce
// window collapse to one fetch.
func (self *CommentStore) ScrollSignal(postId Id) bool {
	self.stateLock.Lock()
	state := self.pageState(postId)

	now := time.Now()
	if now.Sub(state.lastScrollTime) < self.settings.ScrollDebounceTimeout {
		self.stateLock.Unlock()
		return false
	}
	state.lastScrollTime = now

	if !state.fetched || !state.hasMore || 0 < len(state.inFlightPages) {
		self.stateLock.Unlock()
		return false
	}
	page := state.page + 1
	self.stateLock.Unlock()

	go HandleError(func() {
		self.FetchPage(postId, page, self.settings.PageSize)
	})
	return true
}

func (self *CommentStore) Page(postId Id) *CommentPage {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	state, ok := self.pages[postId]
	if !ok {
		return &CommentPage{
			HasMore: true,
		}
	}
	return &CommentPage{
		Comments:    slices.Clone(state.comments),
		Page:        state.page,
		HasMore:     state.hasMore,
		Loading:     state.loading(),
		LoadingMore: state.loadingMore(),
		Submitting:  state.submitting,
		Error:       state.err,
	}
}

func (self *CommentStore) change(postId Id) {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback(postId)
		})
	}
}
