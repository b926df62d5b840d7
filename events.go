package feedsync

import (
	"encoding/json"
	"fmt"
)

// inbound push events, normalized from the channel's json envelope.
// the closed set of kinds mirrors what the platform emits; anything
// else is dropped by the adapter.

const (
	ChannelEventTypeMessage          = "message"
	ChannelEventTypeNewNotification  = "new_notification"
	ChannelEventTypeOnlineUsersList  = "online_users_list"
	ChannelEventTypeUserStatusChange = "user_status_change"
)

type channelEventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

type PresenceSnapshotEvent struct {
	UserIds []Id `json:"user_ids"`
}

type PresenceDeltaEvent struct {
	UserId Id             `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

func parseChannelEvent(message []byte) (eventType string, event any, err error) {
	var envelope channelEventEnvelope
	if err = json.Unmarshal(message, &envelope); err != nil {
		return "", nil, MalformedPayload("event envelope", err)
	}

	switch envelope.Type {
	case ChannelEventTypeMessage:
		var messageEvent Message
		if err = json.Unmarshal(envelope.Data, &messageEvent); err != nil {
			return envelope.Type, nil, MalformedPayload("message event", err)
		}
		if (messageEvent.MessageId == Id{}) || (messageEvent.ConversationId == Id{}) {
			return envelope.Type, nil, NewError(CodeMalformedPayload, "message event missing ids")
		}
		return envelope.Type, &messageEvent, nil
	case ChannelEventTypeNewNotification:
		var notificationEvent NotificationItem
		if err = json.Unmarshal(envelope.Data, &notificationEvent); err != nil {
			return envelope.Type, nil, MalformedPayload("notification event", err)
		}
		if (notificationEvent.NotificationId == Id{}) {
			return envelope.Type, nil, NewError(CodeMalformedPayload, "notification event missing id")
		}
		return envelope.Type, &notificationEvent, nil
	case ChannelEventTypeOnlineUsersList:
		var snapshotEvent PresenceSnapshotEvent
		if err = json.Unmarshal(envelope.Data, &snapshotEvent); err != nil {
			return envelope.Type, nil, MalformedPayload("presence snapshot event", err)
		}
		return envelope.Type, &snapshotEvent, nil
	case ChannelEventTypeUserStatusChange:
		var deltaEvent PresenceDeltaEvent
		if err = json.Unmarshal(envelope.Data, &deltaEvent); err != nil {
			return envelope.Type, nil, MalformedPayload("status change event", err)
		}
		if (deltaEvent.UserId == Id{}) {
			return envelope.Type, nil, NewError(CodeMalformedPayload, "status change event missing user id")
		}
		switch deltaEvent.Status {
		case PresenceStatusOnline, PresenceStatusOffline:
		default:
			return envelope.Type, nil, NewError(CodeMalformedPayload, fmt.Sprintf("unknown presence status %s", deltaEvent.Status))
		}
		return envelope.Type, &deltaEvent, nil
	default:
		return envelope.Type, nil, NewError(CodeMalformedPayload, fmt.Sprintf("unknown event type %s", envelope.Type))
	}
}
