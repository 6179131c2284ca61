package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/stats"
	"github.com/studycircle/studycircle/internal/types"
)

// ChatServer owns the realtime layer: the presence registry mapping each
// account to its single live connection, and the set of loaded rooms. Rooms
// are loaded lazily on the first join and unloaded once idle.
type ChatServer struct {
	log   *log.Logger
	db    database.StudyCircleRepository
	stats stats.StatsProvider

	sessionsLock sync.RWMutex
	sessions     map[int]*Client

	rooms map[int]*Room

	joinChan        chan *ClientCommand
	unloadRoomChan  chan unloadRoomRequest
	groupNotifyChan chan groupNotification

	stop chan struct{}
	done chan struct{}
}

type unloadRoomRequest struct {
	groupId int
	deleted bool
}

type groupNotification struct {
	groupId      int
	notification *types.Notification
}

func NewChatServer(logger *log.Logger, db database.StudyCircleRepository, statsUpdater stats.StatsProvider) *ChatServer {
	statsUpdater.RegisterMetric("Connections")
	statsUpdater.RegisterMetric("ActiveGroups")
	statsUpdater.RegisterMetric("MessagesSent")
	statsUpdater.RegisterMetric("NotificationsCreated")

	return &ChatServer{
		log:             logger,
		db:              db,
		stats:           statsUpdater,
		sessions:        make(map[int]*Client),
		rooms:           make(map[int]*Room),
		joinChan:        make(chan *ClientCommand, 64),
		unloadRoomChan:  make(chan unloadRoomRequest, 16),
		groupNotifyChan: make(chan groupNotification, 64),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case cmd := <-cs.joinChan:
			cs.handleJoin(cmd)
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req)
		case gn := <-cs.groupNotifyChan:
			if room, ok := cs.rooms[gn.groupId]; ok {
				select {
				case room.notifyChan <- gn.notification:
				default:
					cs.log.Printf("room %d: notify channel full, dropping group notification", gn.groupId)
				}
			}
		case <-cs.stop:
			for groupId := range cs.rooms {
				cs.unloadRoom(unloadRoomRequest{groupId: groupId})
			}
			close(cs.done)
			return
		}
	}
}

// handleJoin routes a join to the group's room, loading it first if needed.
func (cs *ChatServer) handleJoin(cmd *ClientCommand) {
	room, ok := cs.rooms[cmd.GroupId]
	if !ok {
		group, err := cs.db.GetGroupById(cmd.GroupId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				cmd.client.queueEvent(validationError(cmd.GroupId, "group does not exist"))
			} else {
				cs.log.Printf("load group %d: %v", cmd.GroupId, err)
				cmd.client.queueEvent(persistenceError(cmd.GroupId, "unable to load group"))
			}
			return
		}

		room = NewRoom(group, cs)
		cs.rooms[cmd.GroupId] = room
		cs.stats.Incr("ActiveGroups")
		go room.Run()
	}

	select {
	case room.joinChan <- cmd:
	default:
		cmd.client.queueEvent(serverBusyError(cmd.GroupId))
	}
}

func (cs *ChatServer) unloadRoom(req unloadRoomRequest) {
	room, ok := cs.rooms[req.groupId]
	if !ok {
		return
	}

	delete(cs.rooms, req.groupId)
	cs.stats.Decr("ActiveGroups")

	done := make(chan struct{})
	room.exit <- exitRequest{deleted: req.deleted, done: done}
	<-done
}

// RegisterClient records the connection as the account's live session. An
// account holds one session at a time, so any previous connection for the
// same account is stopped.
func (cs *ChatServer) RegisterClient(client *Client) {
	cs.sessionsLock.Lock()
	prev := cs.sessions[client.user.Id]
	cs.sessions[client.user.Id] = client
	cs.sessionsLock.Unlock()

	if prev != nil {
		cs.log.Printf("user %d reconnected, stopping session %s", client.user.Id, prev.id)
		prev.stopClient()
	}

	cs.stats.Incr("Connections")
}

// deregisterClient clears the presence entry, but only if it still belongs
// to this connection. A replaced session must not evict its successor.
func (cs *ChatServer) deregisterClient(client *Client) {
	cs.sessionsLock.Lock()
	if cs.sessions[client.user.Id] == client {
		delete(cs.sessions, client.user.Id)
	}
	cs.sessionsLock.Unlock()

	cs.stats.Decr("Connections")
}

func (cs *ChatServer) IsOnline(userId int) bool {
	cs.sessionsLock.RLock()
	defer cs.sessionsLock.RUnlock()
	_, ok := cs.sessions[userId]
	return ok
}

// OnlineAmong reports which of the given accounts currently hold a live
// connection.
func (cs *ChatServer) OnlineAmong(userIds []int) map[int]bool {
	online := make(map[int]bool, len(userIds))

	cs.sessionsLock.RLock()
	defer cs.sessionsLock.RUnlock()
	for _, userId := range userIds {
		if _, ok := cs.sessions[userId]; ok {
			online[userId] = true
		}
	}

	return online
}

// NotifyUser pushes a notification event to the account's live connection,
// if any. Returns whether the account was connected.
func (cs *ChatServer) NotifyUser(userId int, notification *types.Notification) bool {
	cs.sessionsLock.RLock()
	client := cs.sessions[userId]
	cs.sessionsLock.RUnlock()

	if client == nil {
		return false
	}

	return client.queueEvent(&ServerEvent{
		Type:         EventNotification,
		Timestamp:    Now(),
		Notification: notification,
	})
}

// NotifyGroup broadcasts a notification to every connection currently in the
// group's room. A room that is not loaded has no occupants to notify.
func (cs *ChatServer) NotifyGroup(ctx context.Context, groupId int, notification *types.Notification) error {
	select {
	case cs.groupNotifyChan <- groupNotification{groupId: groupId, notification: notification}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnloadGroup tears down the group's room, used when a group is deleted.
func (cs *ChatServer) UnloadGroup(ctx context.Context, groupId int, deleted bool) error {
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{groupId: groupId, deleted: deleted}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every connected client and waits for the room and server
// loops to drain.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.sessionsLock.RLock()
	clients := make([]*Client, 0, len(cs.sessions))
	for _, client := range cs.sessions {
		clients = append(clients, client)
	}
	cs.sessionsLock.RUnlock()

	for _, client := range clients {
		client.stopClient()
	}

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
