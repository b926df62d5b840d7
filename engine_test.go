package feedsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type testSideEffects struct {
	tones  int64
	toasts int64
}

func (self *testSideEffects) MessageTone() {
	atomic.AddInt64(&self.tones, 1)
}

func (self *testSideEffects) ErrorToast(message string) {
	atomic.AddInt64(&self.toasts, 1)
}

func TestFeedEngine(t *testing.T) {
	selfId := NewId()
	otherId := NewId()
	c1 := NewId()
	postId := NewId()
	now := time.Now().UTC()

	restServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/conversations":
			json.NewEncoder(w).Encode(&FetchConversationsResult{
				Conversations: []*ConversationSummary{
					{ConversationId: c1, ParticipantName: "alice", LastMessageAt: now.Add(-time.Hour)},
				},
			})
		case r.URL.Path == "/conversations/messages":
			var args SendMessageArgs
			json.NewDecoder(r.Body).Decode(&args)
			json.NewEncoder(w).Encode(&SendMessageResult{
				Message: &Message{
					MessageId:      NewId(),
					ConversationId: args.ConversationId,
					Content:        args.Content,
					CreatedAt:      now,
					SenderId:       selfId,
				},
			})
		case r.URL.Path == "/conversations/read":
			json.NewEncoder(w).Encode(&MarkConversationReadResult{})
		case r.URL.Path == "/notifications":
			json.NewEncoder(w).Encode(&FetchNotificationsResult{
				Activities:  []*NotificationItem{},
				UnreadCount: 0,
			})
		case strings.HasSuffix(r.URL.Path, "/like"):
			// the like backend is down for this test
			http.Error(w, "offline", http.StatusServiceUnavailable)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer restServer.Close()

	channelServer := &testChannelServer{}
	byJwtStr := testByJwt(t, selfId, "alice")
	pushServer := httptest.NewServer(channelServer.handler(t, byJwtStr))
	defer pushServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewFeedEngineWithDefaults(ctx, restServer.URL, wsUrl(pushServer.URL))
	defer engine.Close()

	sideEffects := &testSideEffects{}
	engine.SetSideEffects(sideEffects)

	assert.Equal(t, engine.Login(byJwtStr), nil)
	loggedInId, ok := engine.SelfUserId()
	assert.Equal(t, true, ok)
	assert.Equal(t, selfId, loggedInId)

	waitFor(t, 5*time.Second, func() bool {
		return channelServer.connCount() == 1
	})

	assert.Equal(t, engine.RefreshConversations(), nil)
	assert.Equal(t, 1, len(engine.Conversations()))

	// send returns the message synchronously; the channel echo collapses
	sent, err := engine.SendMessage(c1, "on my way")
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, len(engine.ConversationMessages(c1)))

	echo, _ := json.Marshal(map[string]any{
		"type": ChannelEventTypeMessage,
		"data": sent,
	})
	channelServer.send(t, string(echo))

	// a foreign message flips unread and moves the conversation to the head
	foreign := &Message{
		MessageId:      NewId(),
		ConversationId: c1,
		Content:        "hi",
		CreatedAt:      now.Add(time.Minute),
		SenderId:       otherId,
	}
	foreignPayload, _ := json.Marshal(map[string]any{
		"type": ChannelEventTypeMessage,
		"data": foreign,
	})
	channelServer.send(t, string(foreignPayload))

	waitFor(t, 5*time.Second, func() bool {
		summaries := engine.Conversations()
		return 0 < len(summaries) && summaries[0].ConversationId == c1 && summaries[0].Unread
	})
	// the echoed own message did not duplicate
	assert.Equal(t, 2, len(engine.ConversationMessages(c1)))
	// the audio cue fired for the foreign message only
	waitFor(t, 5*time.Second, func() bool {
		return atomic.LoadInt64(&sideEffects.tones) == 1
	})

	engine.MarkConversationRead(c1)
	summaries := engine.Conversations()
	assert.Equal(t, false, summaries[0].Unread)

	// presence
	snapshot, _ := json.Marshal(map[string]any{
		"type": ChannelEventTypeOnlineUsersList,
		"data": &PresenceSnapshotEvent{UserIds: []Id{otherId}},
	})
	channelServer.send(t, string(snapshot))
	waitFor(t, 5*time.Second, func() bool {
		return engine.IsOnline(otherId)
	})

	// optimistic like rolls back exactly when the backend rejects it
	engine.SeedPostCounters(postId, false, 3, false, 0)
	err = engine.ToggleLike(postId)
	assert.NotEqual(t, err, nil)
	state, ok := engine.ToggleState(postId, ToggleRelationLike)
	assert.Equal(t, true, ok)
	assert.Equal(t, ToggleState{Value: false, Count: 3}, state)
	assert.Equal(t, false, engine.ToggleInFlight(postId, ToggleRelationLike))
	waitFor(t, 5*time.Second, func() bool {
		return atomic.LoadInt64(&sideEffects.toasts) == 1
	})

	// logout tears down the session and the channel singleton
	engine.Logout()
	assert.Equal(t, 0, len(engine.Conversations()))
	_, ok = engine.SelfUserId()
	assert.Equal(t, false, ok)
	err = engine.RefreshConversations()
	assert.Equal(t, CodeLoggedOut, ErrorCode(err))

	// a second login establishes exactly one new connection
	assert.Equal(t, engine.Login(byJwtStr), nil)
	waitFor(t, 5*time.Second, func() bool {
		return channelServer.connCount() == 2
	})
}

func TestFeedEngineStaleSendCompletion(t *testing.T) {
	selfId := NewId()
	c1 := NewId()
	now := time.Now().UTC()

	release := make(chan struct{})
	var stalled int64

	restServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversations":
			json.NewEncoder(w).Encode(&FetchConversationsResult{
				Conversations: []*ConversationSummary{
					{ConversationId: c1, ParticipantName: "alice", LastMessageAt: now.Add(-time.Hour)},
				},
			})
		case "/conversations/messages":
			// hold the completion until the session is torn down
			atomic.AddInt64(&stalled, 1)
			<-release
			var args SendMessageArgs
			json.NewDecoder(r.Body).Decode(&args)
			json.NewEncoder(w).Encode(&SendMessageResult{
				Message: &Message{
					MessageId:      NewId(),
					ConversationId: args.ConversationId,
					Content:        args.Content,
					CreatedAt:      now,
					SenderId:       selfId,
				},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer restServer.Close()

	channelServer := &testChannelServer{}
	byJwtStr := testByJwt(t, selfId, "alice")
	pushServer := httptest.NewServer(channelServer.handler(t, byJwtStr))
	defer pushServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewFeedEngineWithDefaults(ctx, restServer.URL, wsUrl(pushServer.URL))
	defer engine.Close()

	assert.Equal(t, engine.Login(byJwtStr), nil)
	assert.Equal(t, engine.RefreshConversations(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := engine.SendMessage(c1, "late")
		done <- err
	}()
	waitFor(t, 5*time.Second, func() bool {
		return atomic.LoadInt64(&stalled) == 1
	})

	// the session is replaced while the send is still pending
	engine.Logout()
	assert.Equal(t, engine.Login(byJwtStr), nil)
	assert.Equal(t, engine.RefreshConversations(), nil)

	close(release)
	select {
	case err := <-done:
		// the caller still gets the result; only the store write is dropped
		assert.Equal(t, err, nil)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not complete")
	}

	// the completion raced the logout and did not leak into the new session
	assert.Equal(t, 0, len(engine.ConversationMessages(c1)))
	summaries := engine.Conversations()
	assert.Equal(t, 1, len(summaries))
	assert.Equal(t, "", summaries[0].LastMessageText)
	assert.Equal(t, false, summaries[0].Unread)
}

func TestFeedEngineLoggedOutSelectors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewFeedEngineWithDefaults(ctx, "http://127.0.0.1:0", "ws://127.0.0.1:0")
	defer engine.Close()

	assert.Equal(t, 0, len(engine.Conversations()))
	assert.Equal(t, 0, engine.UnreadNotificationCount())
	assert.Equal(t, false, engine.IsOnline(NewId()))
	assert.Equal(t, false, engine.FetchCommentsPage(NewId(), 0))

	_, err := engine.SendMessage(NewId(), "hi")
	assert.Equal(t, CodeLoggedOut, ErrorCode(err))
	assert.Equal(t, CodeLoggedOut, ErrorCode(engine.ToggleLike(NewId())))
}
