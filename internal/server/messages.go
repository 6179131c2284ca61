package server

import (
	"time"

	"github.com/studycircle/studycircle/internal/types"
)

// CommandType enumerates every realtime command a client may send. Dispatch
// is table-driven off this closed set, so an unknown type is rejected at the
// parse boundary.
type CommandType string

const (
	CmdJoinGroup   CommandType = "join_group"
	CmdLeaveGroup  CommandType = "leave_group"
	CmdSendMessage CommandType = "send_message"
	CmdTyping      CommandType = "typing"
	CmdStopTyping  CommandType = "stop_typing"
	CmdGetMessages CommandType = "get_messages"
)

type ClientCommand struct {
	Type    CommandType `json:"type"`
	GroupId int         `json:"group_id"`
	Body    string      `json:"message,omitempty"`
	Page    int         `json:"page,omitempty"`
	Limit   int         `json:"limit,omitempty"`

	client *Client
}

type EventType string

const (
	EventJoinedGroup       EventType = "joined_group"
	EventLeftGroup         EventType = "left_group"
	EventUserJoined        EventType = "user_joined"
	EventUserLeft          EventType = "user_left"
	EventNewMessage        EventType = "new_message"
	EventTyping            EventType = "typing"
	EventStopTyping        EventType = "stop_typing"
	EventMessagesHistory   EventType = "messages_history"
	EventNotification      EventType = "notification"
	EventGroupNotification EventType = "group_notification"
	EventError             EventType = "error"
)

// ServerEvent is the envelope for every server-to-client frame. Only the
// fields relevant to the event type are populated; the rest are omitted from
// the encoded frame.
type ServerEvent struct {
	Type         EventType           `json:"type"`
	Timestamp    time.Time           `json:"timestamp"`
	GroupId      int                 `json:"group_id,omitempty"`
	UserId       int                 `json:"user_id,omitempty"`
	User         *types.User         `json:"user,omitempty"`
	Message      *types.Message      `json:"message,omitempty"`
	Messages     []types.Message     `json:"messages,omitempty"`
	Page         int                 `json:"page,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	Detail       string              `json:"detail,omitempty"`
	Notification *types.Notification `json:"notification,omitempty"`
	Error        *ErrorBody          `json:"error,omitempty"`

	// SkipClient excludes one connection from a room broadcast, typically
	// the originator of the event.
	SkipClient *Client `json:"-"`
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
