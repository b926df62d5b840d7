package feedsync

import (
	"time"
)

// data model shared by the REST client, the push channel and the stores.
// every entity is unique by its id; the stores collapse duplicate deliveries
// (REST response vs channel echo) by id.

type ConversationSummary struct {
	ConversationId       Id        `json:"conversation_id"`
	ParticipantName      string    `json:"participant_name"`
	ParticipantAvatarUrl string    `json:"participant_avatar_url,omitempty"`
	LastMessageText      string    `json:"last_message_text,omitempty"`
	LastMessageAt        time.Time `json:"last_message_at"`
	Unread               bool      `json:"unread"`
}

type Message struct {
	MessageId      Id        `json:"message_id"`
	ConversationId Id        `json:"conversation_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	SenderId       Id        `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
}

func (self *Message) IsMine(selfUserId Id) bool {
	return self.SenderId == selfUserId
}

type NotificationItem struct {
	NotificationId Id        `json:"notification_id"`
	Kind           string    `json:"kind"`
	ActorId        Id        `json:"actor_id"`
	ActorName      string    `json:"actor_name,omitempty"`
	TargetId       Id        `json:"target_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

type Comment struct {
	CommentId      Id        `json:"comment_id"`
	PostId         Id        `json:"post_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	AuthorId       Id        `json:"author_id"`
	AuthorName     string    `json:"author_name,omitempty"`
	AttachmentUrls []string  `json:"attachment_urls,omitempty"`
}
