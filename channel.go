package feedsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

// note there is at most one live channel per authenticated session.
// the engine owns the singleton; this type only owns one connection
// and its reconnect loop.

type ChannelState string

const (
	ChannelStateConnecting   ChannelState = "connecting"
	ChannelStateConnected    ChannelState = "connected"
	ChannelStateDisconnected ChannelState = "disconnected"
)

type ChannelStateFunction = func(state ChannelState)
type MessageReceivedFunction = func(message *Message)
type NotificationReceivedFunction = func(notification *NotificationItem)
type PresenceSnapshotFunction = func(snapshot *PresenceSnapshotEvent)
type PresenceDeltaFunction = func(delta *PresenceDeltaEvent)

type PlatformChannelSettings struct {
	WsHandshakeTimeout  time.Duration
	MinReconnectTimeout time.Duration
	MaxReconnectTimeout time.Duration
	PingTimeout         time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
}

func DefaultPlatformChannelSettings() *PlatformChannelSettings {
	return &PlatformChannelSettings{
		WsHandshakeTimeout:  2 * time.Second,
		MinReconnectTimeout: 1 * time.Second,
		MaxReconnectTimeout: 60 * time.Second,
		PingTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		ReadTimeout:         30 * time.Second,
	}
}

type ChannelAuth struct {
	ByJwt string
}

type PlatformChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	platformUrl string
	auth        *ChannelAuth

	settings *PlatformChannelSettings

	stateCallbacks        *CallbackList[ChannelStateFunction]
	messageCallbacks      *CallbackList[MessageReceivedFunction]
	notificationCallbacks *CallbackList[NotificationReceivedFunction]
	snapshotCallbacks     *CallbackList[PresenceSnapshotFunction]
	deltaCallbacks        *CallbackList[PresenceDeltaFunction]
}

func NewPlatformChannelWithDefaults(
	ctx context.Context,
	platformUrl string,
	auth *ChannelAuth,
) *PlatformChannel {
	return NewPlatformChannel(ctx, platformUrl, auth, DefaultPlatformChannelSettings())
}

func NewPlatformChannel(
	ctx context.Context,
	platformUrl string,
	auth *ChannelAuth,
	settings *PlatformChannelSettings,
) *PlatformChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	channel := &PlatformChannel{
		ctx:                   cancelCtx,
		cancel:                cancel,
		platformUrl:           platformUrl,
		auth:                  auth,
		settings:              settings,
		stateCallbacks:        NewCallbackList[ChannelStateFunction](),
		messageCallbacks:      NewCallbackList[MessageReceivedFunction](),
		notificationCallbacks: NewCallbackList[NotificationReceivedFunction](),
		snapshotCallbacks:     NewCallbackList[PresenceSnapshotFunction](),
		deltaCallbacks:        NewCallbackList[PresenceDeltaFunction](),
	}
	go channel.run()
	return channel
}

func (self *PlatformChannel) AddStateCallback(callback ChannelStateFunction) func() {
	callbackId := self.stateCallbacks.Add(callback)
	return func() {
		self.stateCallbacks.Remove(callbackId)
	}
}

func (self *PlatformChannel) AddMessageCallback(callback MessageReceivedFunction) func() {
	callbackId := self.messageCallbacks.Add(callback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *PlatformChannel) AddNotificationCallback(callback NotificationReceivedFunction) func() {
	callbackId := self.notificationCallbacks.Add(callback)
	return func() {
		self.notificationCallbacks.Remove(callbackId)
	}
}

func (self *PlatformChannel) AddPresenceSnapshotCallback(callback PresenceSnapshotFunction) func() {
	callbackId := self.snapshotCallbacks.Add(callback)
	return func() {
		self.snapshotCallbacks.Remove(callbackId)
	}
}

func (self *PlatformChannel) AddPresenceDeltaCallback(callback PresenceDeltaFunction) func() {
	callbackId := self.deltaCallbacks.Add(callback)
	return func() {
		self.deltaCallbacks.Remove(callbackId)
	}
}

func (self *PlatformChannel) state(state ChannelState) {
	for _, callback := range self.stateCallbacks.Get() {
		HandleError(func() {
			callback(state)
		})
	}
}

func (self *PlatformChannel) run() {
	defer self.cancel()

	reconnect := NewReconnect(self.settings.MinReconnectTimeout, self.settings.MaxReconnectTimeout)

	for {
		self.state(ChannelStateConnecting)

		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			header := http.Header{}
			header.Add("Authorization", fmt.Sprintf("Bearer %s", self.auth.ByJwt))
			ws, _, err := dialer.DialContext(self.ctx, self.platformUrl, header)
			if err != nil {
				return nil, err
			}
			return ws, nil
		}

		ws, err := connect()
		if err != nil {
			glog.Infof("[ch]connect error = %s\n", err)
			self.state(ChannelStateDisconnected)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		self.state(ChannelStateConnected)

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			ws.SetPongHandler(func(string) error {
				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				return nil
			})

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case <-time.After(self.settings.PingTimeout):
						deadline := time.Now().Add(self.settings.WriteTimeout)
						if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
							// note that for websocket a deadline timeout cannot be recovered
							glog.Infof("[ch]ping error = %s\n", err)
							return
						}
					}
				}
			}()

			for {
				select {
				case <-handleCtx.Done():
					return
				default:
				}

				messageType, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[ch]<- error = %s\n", WrapError(CodeChannelDisconnect, "read", err))
					return
				}
				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))

				// a healthy read resets the backoff
				reconnect.Reset()

				switch messageType {
				case websocket.TextMessage, websocket.BinaryMessage:
					if 0 == len(message) {
						// keepalive
						glog.V(2).Infof("[ch]ping<-\n")
						continue
					}
					self.dispatch(message)
				default:
					glog.V(2).Infof("[ch]other=%d<-\n", messageType)
				}
			}
		}
		c()

		self.state(ChannelStateDisconnected)

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

// malformed payloads are dropped, never fatal
func (self *PlatformChannel) dispatch(message []byte) {
	eventType, event, err := parseChannelEvent(message)
	if err != nil {
		glog.Infof("[ch]drop %s = %s\n", eventType, err)
		return
	}

	switch eventType {
	case ChannelEventTypeMessage:
		messageEvent := event.(*Message)
		glog.V(2).Infof("[ch]message %s<-\n", messageEvent.MessageId)
		for _, callback := range self.messageCallbacks.Get() {
			HandleError(func() {
				callback(messageEvent)
			})
		}
	case ChannelEventTypeNewNotification:
		notificationEvent := event.(*NotificationItem)
		glog.V(2).Infof("[ch]notification %s<-\n", notificationEvent.NotificationId)
		for _, callback := range self.notificationCallbacks.Get() {
			HandleError(func() {
				callback(notificationEvent)
			})
		}
	case ChannelEventTypeOnlineUsersList:
		snapshotEvent := event.(*PresenceSnapshotEvent)
		glog.V(2).Infof("[ch]presence snapshot n=%d<-\n", len(snapshotEvent.UserIds))
		for _, callback := range self.snapshotCallbacks.Get() {
			HandleError(func() {
				callback(snapshotEvent)
			})
		}
	case ChannelEventTypeUserStatusChange:
		deltaEvent := event.(*PresenceDeltaEvent)
		glog.V(2).Infof("[ch]presence %s=%s<-\n", deltaEvent.UserId, deltaEvent.Status)
		for _, callback := range self.deltaCallbacks.Get() {
			HandleError(func() {
				callback(deltaEvent)
			})
		}
	}
}

func (self *PlatformChannel) Close() {
	self.cancel()
}
