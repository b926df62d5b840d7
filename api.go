package feedsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

type FeedApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewFeedApi(apiUrl string) *FeedApi {
	return NewFeedApiWithContext(context.Background(), apiUrl)
}

func NewFeedApiWithContext(ctx context.Context, apiUrl string) *FeedApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &FeedApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *FeedApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *FeedApi) Close() {
	self.cancel()
}

type FetchConversationsCallback apiCallback[*FetchConversationsResult]

type FetchConversationsResult struct {
	Conversations []*ConversationSummary `json:"conversations"`
}

func (self *FeedApi) FetchConversations(callback FetchConversationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/conversations", self.apiUrl),
		self.byJwt,
		&FetchConversationsResult{},
		callback,
	)
}

func (self *FeedApi) FetchConversationsSync() (*FetchConversationsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/conversations", self.apiUrl),
		self.byJwt,
		&FetchConversationsResult{},
		NewNoopApiCallback[*FetchConversationsResult](),
	)
}

type SendMessageCallback apiCallback[*SendMessageResult]

type SendMessageArgs struct {
	ConversationId Id     `json:"conversation_id"`
	Content        string `json:"content"`
}

type SendMessageResult struct {
	Message *Message `json:"message"`
}

func (self *FeedApi) SendMessage(sendMessage *SendMessageArgs, callback SendMessageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversations/messages", self.apiUrl),
		sendMessage,
		self.byJwt,
		&SendMessageResult{},
		callback,
	)
}

func (self *FeedApi) SendMessageSync(sendMessage *SendMessageArgs) (*SendMessageResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversations/messages", self.apiUrl),
		sendMessage,
		self.byJwt,
		&SendMessageResult{},
		NewNoopApiCallback[*SendMessageResult](),
	)
}

type MarkConversationReadCallback apiCallback[*MarkConversationReadResult]

type MarkConversationReadArgs struct {
	ConversationId Id `json:"conversation_id"`
}

type MarkConversationReadResult struct {
}

func (self *FeedApi) MarkConversationRead(markRead *MarkConversationReadArgs, callback MarkConversationReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversations/read", self.apiUrl),
		markRead,
		self.byJwt,
		&MarkConversationReadResult{},
		callback,
	)
}

func (self *FeedApi) MarkConversationReadSync(markRead *MarkConversationReadArgs) (*MarkConversationReadResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversations/read", self.apiUrl),
		markRead,
		self.byJwt,
		&MarkConversationReadResult{},
		NewNoopApiCallback[*MarkConversationReadResult](),
	)
}

type FetchCommentsCallback apiCallback[*FetchCommentsResult]

type FetchCommentsResult struct {
	Comments []*Comment `json:"comments"`
}

func (self *FeedApi) FetchComments(postId Id, page int, size int, callback FetchCommentsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/comments?page=%d&size=%d", self.apiUrl, postId, page, size),
		self.byJwt,
		&FetchCommentsResult{},
		callback,
	)
}

func (self *FeedApi) FetchCommentsSync(postId Id, page int, size int) (*FetchCommentsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/comments?page=%d&size=%d", self.apiUrl, postId, page, size),
		self.byJwt,
		&FetchCommentsResult{},
		NewNoopApiCallback[*FetchCommentsResult](),
	)
}

type CreateCommentCallback apiCallback[*CreateCommentResult]

type CommentAttachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type CreateCommentArgs struct {
	PostId      Id
	Content     string
	Attachments []*CommentAttachment
}

type CreateCommentResult struct {
	Comment *Comment `json:"comment"`
}

func (self *FeedApi) CreateComment(createComment *CreateCommentArgs, callback CreateCommentCallback) {
	go postCommentForm(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/comments", self.apiUrl, createComment.PostId),
		createComment,
		self.byJwt,
		callback,
	)
}

func (self *FeedApi) CreateCommentSync(createComment *CreateCommentArgs) (*CreateCommentResult, error) {
	return postCommentForm(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/comments", self.apiUrl, createComment.PostId),
		createComment,
		self.byJwt,
		NewNoopApiCallback[*CreateCommentResult](),
	)
}

type ToggleLikeCallback apiCallback[*ToggleLikeResult]

type ToggleLikeArgs struct {
	PostId Id `json:"post_id"`
}

// `Liked`/`LikeCount` are authoritative when present. an empty result means
// the optimistic values stand.
type ToggleLikeResult struct {
	Liked     *bool `json:"liked,omitempty"`
	LikeCount *int  `json:"like_count,omitempty"`
}

func (self *FeedApi) ToggleLike(toggleLike *ToggleLikeArgs, callback ToggleLikeCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/like", self.apiUrl, toggleLike.PostId),
		toggleLike,
		self.byJwt,
		&ToggleLikeResult{},
		callback,
	)
}

func (self *FeedApi) ToggleLikeSync(toggleLike *ToggleLikeArgs) (*ToggleLikeResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/like", self.apiUrl, toggleLike.PostId),
		toggleLike,
		self.byJwt,
		&ToggleLikeResult{},
		NewNoopApiCallback[*ToggleLikeResult](),
	)
}

type ToggleRepostCallback apiCallback[*ToggleRepostResult]

type ToggleRepostArgs struct {
	PostId Id `json:"post_id"`
}

type ToggleRepostResult struct {
	Reposted    *bool `json:"reposted,omitempty"`
	RepostCount *int  `json:"repost_count,omitempty"`
}

func (self *FeedApi) ToggleRepost(toggleRepost *ToggleRepostArgs, callback ToggleRepostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/repost", self.apiUrl, toggleRepost.PostId),
		toggleRepost,
		self.byJwt,
		&ToggleRepostResult{},
		callback,
	)
}

func (self *FeedApi) ToggleRepostSync(toggleRepost *ToggleRepostArgs) (*ToggleRepostResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/repost", self.apiUrl, toggleRepost.PostId),
		toggleRepost,
		self.byJwt,
		&ToggleRepostResult{},
		NewNoopApiCallback[*ToggleRepostResult](),
	)
}

type ToggleFollowCallback apiCallback[*ToggleFollowResult]

type ToggleFollowArgs struct {
	UserId Id `json:"user_id"`
}

type ToggleFollowResult struct {
	Success       bool  `json:"success"`
	Following     *bool `json:"following,omitempty"`
	FollowerCount *int  `json:"follower_count,omitempty"`
}

func (self *FeedApi) ToggleFollow(toggleFollow *ToggleFollowArgs, callback ToggleFollowCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/users/%s/follow", self.apiUrl, toggleFollow.UserId),
		toggleFollow,
		self.byJwt,
		&ToggleFollowResult{},
		callback,
	)
}

func (self *FeedApi) ToggleFollowSync(toggleFollow *ToggleFollowArgs) (*ToggleFollowResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/users/%s/follow", self.apiUrl, toggleFollow.UserId),
		toggleFollow,
		self.byJwt,
		&ToggleFollowResult{},
		NewNoopApiCallback[*ToggleFollowResult](),
	)
}

type DeletePostCallback apiCallback[*DeletePostResult]

type DeletePostArgs struct {
	PostId Id `json:"post_id"`
}

type DeletePostResult struct {
}

func (self *FeedApi) DeletePost(deletePost *DeletePostArgs, callback DeletePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/delete", self.apiUrl, deletePost.PostId),
		deletePost,
		self.byJwt,
		&DeletePostResult{},
		callback,
	)
}

func (self *FeedApi) DeletePostSync(deletePost *DeletePostArgs) (*DeletePostResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/delete", self.apiUrl, deletePost.PostId),
		deletePost,
		self.byJwt,
		&DeletePostResult{},
		NewNoopApiCallback[*DeletePostResult](),
	)
}

type FetchNotificationsCallback apiCallback[*FetchNotificationsResult]

type FetchNotificationsArgs struct {
	Filter string `json:"filter,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type FetchNotificationsResult struct {
	Activities  []*NotificationItem `json:"activities"`
	UnreadCount int                 `json:"unread_count"`
}

func (self *FeedApi) FetchNotifications(fetchNotifications *FetchNotificationsArgs, callback FetchNotificationsCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notifications", self.apiUrl),
		fetchNotifications,
		self.byJwt,
		&FetchNotificationsResult{},
		callback,
	)
}

func (self *FeedApi) FetchNotificationsSync(fetchNotifications *FetchNotificationsArgs) (*FetchNotificationsResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/notifications", self.apiUrl),
		fetchNotifications,
		self.byJwt,
		&FetchNotificationsResult{},
		NewNoopApiCallback[*FetchNotificationsResult](),
	)
}

type MarkAllNotificationsReadCallback apiCallback[*MarkAllNotificationsReadResult]

type MarkAllNotificationsReadResult struct {
}

func (self *FeedApi) MarkAllNotificationsRead(callback MarkAllNotificationsReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notifications/read-all", self.apiUrl),
		nil,
		self.byJwt,
		&MarkAllNotificationsReadResult{},
		callback,
	)
}

func (self *FeedApi) MarkAllNotificationsReadSync() (*MarkAllNotificationsReadResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/notifications/read-all", self.apiUrl),
		nil,
		self.byJwt,
		&MarkAllNotificationsReadResult{},
		NewNoopApiCallback[*MarkAllNotificationsReadResult](),
	)
}

func postCommentForm(
	ctx context.Context,
	url string,
	createComment *CreateCommentArgs,
	byJwt string,
	callback apiCallback[*CreateCommentResult],
) (*CreateCommentResult, error) {
	requestBody := &bytes.Buffer{}
	w := multipart.NewWriter(requestBody)
	if err := w.WriteField("content", createComment.Content); err != nil {
		callback.Result(nil, err)
		return nil, err
	}
	for i, attachment := range createComment.Attachments {
		part, err := w.CreateFormFile(fmt.Sprintf("attachment_%d", i), attachment.FileName)
		if err != nil {
			callback.Result(nil, err)
			return nil, err
		}
		if _, err := part.Write(attachment.Data); err != nil {
			callback.Result(nil, err)
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, requestBody)
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}
	req.Header.Add("Content-Type", w.FormDataContentType())
	if byJwt != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", byJwt))
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(nil, err)
		return nil, err
	}

	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	result := &CreateCommentResult{}
	err = json.Unmarshal(responseBodyBytes, result)
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	callback.Result(result, nil)
	return result, nil
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
