package feedsync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestFetchConversationsSync(t *testing.T) {
	c1 := NewId()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "Bearer test-jwt", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(&FetchConversationsResult{
			Conversations: []*ConversationSummary{
				{
					ConversationId:  c1,
					ParticipantName: "alice",
					LastMessageAt:   time.Now().UTC(),
				},
			},
		})
	}))
	defer server.Close()

	api := NewFeedApi(server.URL)
	api.SetByJwt("test-jwt")

	result, err := api.FetchConversationsSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, len(result.Conversations))
	assert.Equal(t, c1, result.Conversations[0].ConversationId)
	assert.Equal(t, "alice", result.Conversations[0].ParticipantName)
}

func TestToggleLikeSync(t *testing.T) {
	postId := NewId()

	liked := true
	likeCount := 12
	authoritative := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, fmt.Sprintf("/posts/%s/like", postId), r.URL.Path)

		if authoritative {
			json.NewEncoder(w).Encode(&ToggleLikeResult{
				Liked:     &liked,
				LikeCount: &likeCount,
			})
		} else {
			json.NewEncoder(w).Encode(&ToggleLikeResult{})
		}
	}))
	defer server.Close()

	api := NewFeedApi(server.URL)
	api.SetByJwt("test-jwt")

	result, err := api.ToggleLikeSync(&ToggleLikeArgs{PostId: postId})
	assert.Equal(t, err, nil)
	assert.Equal(t, true, *result.Liked)
	assert.Equal(t, 12, *result.LikeCount)

	// the response may carry no authoritative fields
	authoritative = false
	result, err = api.ToggleLikeSync(&ToggleLikeArgs{PostId: postId})
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Liked, nil)
	assert.Equal(t, result.LikeCount, nil)
}

func TestApiErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the response body is the error message
		http.Error(w, "conversation not found", http.StatusNotFound)
	}))
	defer server.Close()

	api := NewFeedApi(server.URL)

	_, err := api.SendMessageSync(&SendMessageArgs{
		ConversationId: NewId(),
		Content:        "hi",
	})
	assert.NotEqual(t, err, nil)
	assert.Equal(t, "conversation not found", err.Error())
}

func TestCreateCommentSync(t *testing.T) {
	postId := NewId()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, fmt.Sprintf("/posts/%s/comments", postId), r.URL.Path)

		err := r.ParseMultipartForm(1024 * 1024)
		assert.Equal(t, err, nil)
		assert.Equal(t, "nice post", r.FormValue("content"))

		file, header, err := r.FormFile("attachment_0")
		assert.Equal(t, err, nil)
		defer file.Close()
		assert.Equal(t, "photo.jpg", header.Filename)

		json.NewEncoder(w).Encode(&CreateCommentResult{
			Comment: &Comment{
				CommentId: NewId(),
				PostId:    postId,
				Content:   "nice post",
				CreatedAt: time.Now().UTC(),
				AuthorId:  NewId(),
			},
		})
	}))
	defer server.Close()

	api := NewFeedApi(server.URL)
	api.SetByJwt("test-jwt")

	result, err := api.CreateCommentSync(&CreateCommentArgs{
		PostId:  postId,
		Content: "nice post",
		Attachments: []*CommentAttachment{
			{
				FileName:    "photo.jpg",
				ContentType: "image/jpeg",
				Data:        []byte{0x1, 0x2, 0x3},
			},
		},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, "nice post", result.Comment.Content)
	assert.Equal(t, postId, result.Comment.PostId)
}

func TestApiAsyncCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&FetchNotificationsResult{
			Activities:  []*NotificationItem{},
			UnreadCount: 4,
		})
	}))
	defer server.Close()

	api := NewFeedApi(server.URL)

	callback, c := NewBlockingApiCallback[*FetchNotificationsResult]()
	api.FetchNotifications(&FetchNotificationsArgs{Limit: 50}, callback)

	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, 4, result.Result.UnreadCount)
}
