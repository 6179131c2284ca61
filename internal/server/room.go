package server

import (
	"log"
	"strings"
	"time"

	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/stats"
	"github.com/studycircle/studycircle/internal/types"
)

const (
	// How long a room with no occupants stays loaded before it asks the
	// chat server to unload it.
	idleRoomTimeout = 5 * time.Minute
	// How long a typing indicator survives without a renewal.
	typingTTL = 3 * time.Second

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Room serializes all state for one group chat through a single goroutine.
// Occupancy, typing indicators and broadcast ordering are owned here, so no
// handler ever takes a cross-room lock.
type Room struct {
	groupId int
	subject string

	cs    *ChatServer
	db    database.StudyCircleRepository
	log   *log.Logger
	stats stats.StatsProvider

	occupants map[*Client]struct{}
	typing    map[int]*typingEntry
	// typingGen is monotonic for the life of the room so an expiry queued
	// by a removed entry can never match a later one.
	typingGen uint64

	joinChan      chan *ClientCommand
	commandChan   chan *ClientCommand
	detachChan    chan *Client
	notifyChan    chan *types.Notification
	typingExpired chan typingExpiry
	exit          chan exitRequest
	done          chan struct{}

	killTimer *time.Timer
}

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

type typingExpiry struct {
	userId int
	gen    uint64
}

type exitRequest struct {
	deleted bool
	done    chan struct{}
}

func NewRoom(group database.Group, cs *ChatServer) *Room {
	return &Room{
		groupId:       group.Id,
		subject:       group.Subject,
		cs:            cs,
		db:            cs.db,
		log:           cs.log,
		stats:         cs.stats,
		occupants:     make(map[*Client]struct{}),
		typing:        make(map[int]*typingEntry),
		joinChan:      make(chan *ClientCommand, 32),
		commandChan:   make(chan *ClientCommand, 64),
		detachChan:    make(chan *Client, 32),
		notifyChan:    make(chan *types.Notification, 32),
		typingExpired: make(chan typingExpiry, 32),
		exit:          make(chan exitRequest),
		done:          make(chan struct{}),
	}
}

func (r *Room) Run() {
	r.killTimer = time.NewTimer(idleRoomTimeout)
	defer r.killTimer.Stop()

	for {
		select {
		case cmd := <-r.joinChan:
			r.dispatch(cmd, r.handleJoin)
		case cmd := <-r.commandChan:
			switch cmd.Type {
			case CmdLeaveGroup:
				r.dispatch(cmd, r.handleLeave)
			case CmdSendMessage:
				r.dispatch(cmd, r.handleSend)
			case CmdTyping:
				r.dispatch(cmd, r.handleTypingStart)
			case CmdStopTyping:
				r.dispatch(cmd, r.handleTypingStop)
			case CmdGetMessages:
				r.dispatch(cmd, r.handleHistory)
			}
		case client := <-r.detachChan:
			r.handleDetach(client)
		case notification := <-r.notifyChan:
			r.broadcast(&ServerEvent{
				Type:         EventGroupNotification,
				Timestamp:    Now(),
				GroupId:      r.groupId,
				Notification: notification,
			})
		case expiry := <-r.typingExpired:
			r.handleTypingExpiry(expiry)
		case <-r.killTimer.C:
			r.requestUnload()
		case req := <-r.exit:
			r.handleExit(req)
			close(req.done)
			return
		}
	}
}

// forward hands a command to the room loop without blocking the reader. A
// full room is reported back to the sender except for typing updates, which
// are simply dropped.
func (r *Room) forward(cmd *ClientCommand) {
	select {
	case r.commandChan <- cmd:
	case <-r.done:
	default:
		if cmd.Type != CmdTyping && cmd.Type != CmdStopTyping {
			cmd.client.queueEvent(serverBusyError(r.groupId))
		}
	}
}

// dispatch runs a command handler, containing any panic to the one command
// that caused it.
func (r *Room) dispatch(cmd *ClientCommand, handler func(*ClientCommand)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Printf("room %d: panic handling %s: %v", r.groupId, cmd.Type, rec)
			cmd.client.queueEvent(internalError(r.groupId))
		}
	}()

	handler(cmd)
}

func (r *Room) handleJoin(cmd *ClientCommand) {
	r.killTimer.Stop()
	client := cmd.client

	if _, ok := r.occupants[client]; ok {
		// Already in the room, re-acknowledge without announcing.
		client.queueEvent(r.joinedEvent())
		return
	}

	member, err := r.db.IsGroupMember(r.groupId, client.user.Id)
	if err != nil {
		r.log.Printf("room %d: membership check for user %d: %v", r.groupId, client.user.Id, err)
		client.queueEvent(persistenceError(r.groupId, "unable to verify group membership"))
		r.resetKillTimerIfEmpty()
		return
	}
	if !member {
		client.queueEvent(authorizationError(r.groupId, "you are not a member of this group"))
		r.resetKillTimerIfEmpty()
		return
	}

	// The connection may have dropped during the membership lookup.
	if client.stopped() {
		r.resetKillTimerIfEmpty()
		return
	}

	r.occupants[client] = struct{}{}
	client.addGroup(r)

	client.queueEvent(r.joinedEvent())

	user := client.user
	r.broadcast(&ServerEvent{
		Type:       EventUserJoined,
		Timestamp:  Now(),
		GroupId:    r.groupId,
		User:       &user,
		SkipClient: client,
	})
}

func (r *Room) joinedEvent() *ServerEvent {
	return &ServerEvent{
		Type:      EventJoinedGroup,
		Timestamp: Now(),
		GroupId:   r.groupId,
		Detail:    "you joined the group chat",
	}
}

func (r *Room) handleLeave(cmd *ClientCommand) {
	client := cmd.client

	client.queueEvent(&ServerEvent{
		Type:      EventLeftGroup,
		Timestamp: Now(),
		GroupId:   r.groupId,
		Detail:    "you left the group chat",
	})

	if _, ok := r.occupants[client]; !ok {
		return
	}

	r.removeOccupant(client)
}

// handleDetach is the disconnect path. Same bookkeeping as an explicit
// leave, minus the acknowledgement.
func (r *Room) handleDetach(client *Client) {
	if _, ok := r.occupants[client]; !ok {
		return
	}

	r.removeOccupant(client)
}

func (r *Room) removeOccupant(client *Client) {
	r.clearTyping(client.user.Id, true)

	delete(r.occupants, client)
	client.removeGroup(r.groupId)

	user := client.user
	r.broadcast(&ServerEvent{
		Type:       EventUserLeft,
		Timestamp:  Now(),
		GroupId:    r.groupId,
		User:       &user,
		SkipClient: client,
	})

	r.resetKillTimerIfEmpty()
}

func (r *Room) handleSend(cmd *ClientCommand) {
	client := cmd.client

	if _, ok := r.occupants[client]; !ok {
		client.queueEvent(authorizationError(r.groupId, "you have not joined this group chat"))
		return
	}

	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		client.queueEvent(validationError(r.groupId, "message cannot be empty"))
		return
	}

	msg, err := r.db.CreateMessage(database.CreateMessageParams{
		GroupId: r.groupId,
		UserId:  client.user.Id,
		Body:    body,
	})
	if err != nil {
		r.log.Printf("room %d: create message: %v", r.groupId, err)
		client.queueEvent(persistenceError(r.groupId, "unable to save message"))
		return
	}

	r.stats.Incr("MessagesSent")

	// The stored row carries the author's current name and avatar, which may
	// be newer than the snapshot taken when the client connected.
	user := client.user
	if stored, err := r.db.GetMessageById(msg.Id); err != nil {
		r.log.Printf("room %d: fetch message %d: %v", r.groupId, msg.Id, err)
	} else {
		user.Name = stored.UserName
		user.Avatar = stored.UserAvatar
	}

	r.broadcast(&ServerEvent{
		Type:      EventNewMessage,
		Timestamp: Now(),
		GroupId:   r.groupId,
		Message: &types.Message{
			Id:        msg.Id,
			GroupId:   msg.GroupId,
			UserId:    msg.UserId,
			Body:      msg.Body,
			User:      &user,
			Timestamp: msg.CreatedAt,
		},
	})

	r.notifyOfflineMembers(client, msg)
}

func (r *Room) handleTypingStart(cmd *ClientCommand) {
	client := cmd.client
	if _, ok := r.occupants[client]; !ok {
		return
	}

	userId := client.user.Id
	entry, ok := r.typing[userId]
	if ok {
		// Renewal restarts the countdown. The old timer may already have
		// fired, which is why expiries carry a generation.
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		r.typing[userId] = entry
	}
	r.typingGen++
	entry.gen = r.typingGen
	entry.timer = r.scheduleTypingExpiry(userId, entry.gen)

	user := client.user
	r.broadcast(&ServerEvent{
		Type:       EventTyping,
		Timestamp:  Now(),
		GroupId:    r.groupId,
		User:       &user,
		SkipClient: client,
	})
}

func (r *Room) handleTypingStop(cmd *ClientCommand) {
	r.clearTyping(cmd.client.user.Id, true)
}

func (r *Room) handleTypingExpiry(expiry typingExpiry) {
	entry, ok := r.typing[expiry.userId]
	if !ok || entry.gen != expiry.gen {
		// A renewal or stop beat the timer, nothing to do.
		return
	}

	delete(r.typing, expiry.userId)
	r.broadcastStopTyping(expiry.userId)
}

func (r *Room) scheduleTypingExpiry(userId int, gen uint64) *time.Timer {
	return time.AfterFunc(typingTTL, func() {
		select {
		case r.typingExpired <- typingExpiry{userId: userId, gen: gen}:
		case <-r.done:
		}
	})
}

// clearTyping removes the user's typing entry if present. Removal always
// announces stop_typing to the rest of the room when broadcast is set, no
// matter how the entry was created.
func (r *Room) clearTyping(userId int, broadcast bool) {
	entry, ok := r.typing[userId]
	if !ok {
		return
	}

	entry.timer.Stop()
	delete(r.typing, userId)

	if broadcast {
		r.broadcastStopTyping(userId)
	}
}

func (r *Room) broadcastStopTyping(userId int) {
	event := &ServerEvent{
		Type:      EventStopTyping,
		Timestamp: Now(),
		GroupId:   r.groupId,
		UserId:    userId,
	}

	for client := range r.occupants {
		if client.user.Id == userId {
			continue
		}
		client.queueEvent(event)
	}
}

func (r *Room) handleHistory(cmd *ClientCommand) {
	client := cmd.client

	if _, ok := r.occupants[client]; !ok {
		client.queueEvent(authorizationError(r.groupId, "you have not joined this group chat"))
		return
	}

	page := cmd.Page
	if page < 1 {
		page = 1
	}
	limit := cmd.Limit
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := r.db.GetGroupMessages(r.groupId, page, limit)
	if err != nil {
		r.log.Printf("room %d: fetch messages: %v", r.groupId, err)
		client.queueEvent(persistenceError(r.groupId, "unable to load messages"))
		return
	}

	// The query returns newest first so pagination walks backwards, but
	// each page is delivered oldest first for display.
	history := make([]types.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		history = append(history, types.Message{
			Id:      msg.Id,
			GroupId: msg.GroupId,
			UserId:  msg.UserId,
			Body:    msg.Body,
			User: &types.User{
				Id:     msg.UserId,
				Name:   msg.UserName,
				Avatar: msg.UserAvatar,
			},
			Timestamp: msg.CreatedAt,
		})
	}

	client.queueEvent(&ServerEvent{
		Type:      EventMessagesHistory,
		Timestamp: Now(),
		GroupId:   r.groupId,
		Messages:  history,
		Page:      page,
		Limit:     limit,
	})
}

func (r *Room) broadcast(event *ServerEvent) {
	for client := range r.occupants {
		if client == event.SkipClient {
			continue
		}
		client.queueEvent(event)
	}
}

func (r *Room) resetKillTimerIfEmpty() {
	if len(r.occupants) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// requestUnload asks the chat server to drop this room. If the server loop
// is busy the room stays loaded and the idle countdown restarts.
func (r *Room) requestUnload() {
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{groupId: r.groupId}:
	default:
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleExit(req exitRequest) {
	close(r.done)

	for _, entry := range r.typing {
		entry.timer.Stop()
	}
	r.typing = make(map[int]*typingEntry)

	if req.deleted {
		r.broadcast(&ServerEvent{
			Type:      EventGroupNotification,
			Timestamp: Now(),
			GroupId:   r.groupId,
			Notification: &types.Notification{
				Type:    "group_deleted",
				Message: "group " + r.subject + " has been deleted",
			},
		})
	}

	for client := range r.occupants {
		client.removeGroup(r.groupId)
		delete(r.occupants, client)
	}
}
