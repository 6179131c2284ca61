package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/studycircle/studycircle/internal/stats"
	"github.com/studycircle/studycircle/internal/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingInterval = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
	// Outbound event buffer per connection.
	sendQueueSize = 256
)

// Client is a single websocket connection bound to an authenticated account.
// An account can hold at most one live client at a time; registering a new
// one stops the previous connection.
type Client struct {
	id    uuid.UUID
	user  types.User
	conn  *websocket.Conn
	cs    *ChatServer
	log   *log.Logger
	stats stats.StatsProvider

	send chan *ServerEvent

	groupsLock sync.RWMutex
	groups     map[int]*Room

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, logger *log.Logger, statsUpdater stats.StatsProvider) *Client {
	return &Client{
		id:     uuid.New(),
		user:   user,
		conn:   conn,
		cs:     cs,
		log:    logger,
		stats:  statsUpdater,
		send:   make(chan *ServerEvent, sendQueueSize),
		groups: make(map[int]*Room),
		stop:   make(chan struct{}),
	}
}

func (c *Client) User() types.User {
	return c.user
}

// commandHandlers is the dispatch table for inbound commands. Anything not
// listed here is rejected before it reaches a room.
var commandHandlers = map[CommandType]func(*Client, *ClientCommand){
	CmdJoinGroup:   (*Client).handleJoinGroup,
	CmdLeaveGroup:  (*Client).handleLeaveGroup,
	CmdSendMessage: (*Client).handleRoomCommand,
	CmdGetMessages: (*Client).handleRoomCommand,
	CmdTyping:      (*Client).handleTypingCommand,
	CmdStopTyping:  (*Client).handleTypingCommand,
}

// ReadLoop reads commands off the socket until the connection drops or the
// client is stopped, then detaches from all joined rooms and deregisters.
func (c *Client) ReadLoop() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("client %s: read: %v", c.id, err)
			}
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.queueEvent(validationError(0, "malformed command"))
			continue
		}
		cmd.client = c

		c.dispatch(&cmd)
	}
}

func (c *Client) dispatch(cmd *ClientCommand) {
	handler, ok := commandHandlers[cmd.Type]
	if !ok {
		c.queueEvent(validationError(cmd.GroupId, "unknown command type"))
		return
	}
	handler(c, cmd)
}

func (c *Client) handleJoinGroup(cmd *ClientCommand) {
	if cmd.GroupId <= 0 {
		c.queueEvent(validationError(cmd.GroupId, "group id is required"))
		return
	}

	select {
	case c.cs.joinChan <- cmd:
	default:
		c.queueEvent(serverBusyError(cmd.GroupId))
	}
}

func (c *Client) handleLeaveGroup(cmd *ClientCommand) {
	if cmd.GroupId <= 0 {
		c.queueEvent(validationError(cmd.GroupId, "group id is required"))
		return
	}

	room := c.getGroup(cmd.GroupId)
	if room == nil {
		// Leaving a group you never joined is acknowledged but changes
		// nothing.
		c.queueEvent(&ServerEvent{
			Type:      EventLeftGroup,
			Timestamp: Now(),
			GroupId:   cmd.GroupId,
			Detail:    "you left the group chat",
		})
		return
	}

	room.forward(cmd)
}

func (c *Client) handleRoomCommand(cmd *ClientCommand) {
	if cmd.GroupId <= 0 {
		c.queueEvent(validationError(cmd.GroupId, "group id is required"))
		return
	}

	room := c.getGroup(cmd.GroupId)
	if room == nil {
		c.queueEvent(authorizationError(cmd.GroupId, "you have not joined this group chat"))
		return
	}

	room.forward(cmd)
}

// handleTypingCommand forwards typing state changes. Unlike messages they
// are best effort, so bad or stale ones are dropped without an error event.
func (c *Client) handleTypingCommand(cmd *ClientCommand) {
	if cmd.GroupId <= 0 {
		return
	}

	room := c.getGroup(cmd.GroupId)
	if room == nil {
		return
	}

	room.forward(cmd)
}

// WriteLoop serializes queued events onto the socket and keeps the
// connection alive with periodic pings.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				c.log.Printf("client %s: marshal event: %v", c.id, err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Printf("client %s: write: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closed connection"))
			return
		}
	}
}

// queueEvent enqueues an event for delivery. Events are dropped when the
// client's buffer is full rather than blocking the sender.
func (c *Client) queueEvent(event *ServerEvent) bool {
	select {
	case c.send <- event:
		return true
	default:
		c.log.Printf("client %s: send queue full, dropping %s event", c.id, event.Type)
		return false
	}
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Client) cleanup() {
	c.stopClient()
	c.cs.deregisterClient(c)
	c.detachAllGroups()
}

// detachAllGroups hands the connection back to every joined room so each can
// purge typing state and announce the departure.
func (c *Client) detachAllGroups() {
	c.groupsLock.RLock()
	rooms := make([]*Room, 0, len(c.groups))
	for _, room := range c.groups {
		rooms = append(rooms, room)
	}
	c.groupsLock.RUnlock()

	for _, room := range rooms {
		select {
		case room.detachChan <- c:
		case <-room.done:
		}
	}
}

func (c *Client) getGroup(groupId int) *Room {
	c.groupsLock.RLock()
	defer c.groupsLock.RUnlock()
	return c.groups[groupId]
}

func (c *Client) addGroup(room *Room) {
	c.groupsLock.Lock()
	defer c.groupsLock.Unlock()
	c.groups[room.groupId] = room
}

func (c *Client) removeGroup(groupId int) {
	c.groupsLock.Lock()
	defer c.groupsLock.Unlock()
	delete(c.groups, groupId)
}
