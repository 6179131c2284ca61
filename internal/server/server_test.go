package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/stats"
	"github.com/studycircle/studycircle/internal/testutil"
	"github.com/studycircle/studycircle/internal/types"
)

// newTestChatServer creates a ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.StudyCircleRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(4)

	logger := testutil.TestLogger(t)
	return NewChatServer(logger, db, su)
}

func newTestClient(t *testing.T, cs *ChatServer, user types.User) *Client {
	return NewClient(user, nil, cs, testutil.TestLogger(t), cs.stats)
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockStudyCircleRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(4)

	cs := NewChatServer(testutil.TestLogger(t), db, su)
	assert.NotNil(t, cs)
	assert.Empty(t, cs.sessions)
	assert.Empty(t, cs.rooms)
}

func TestRegisterClient(t *testing.T) {
	t.Run("registers new session", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
		su.On("Incr", "Connections").Once()

		c := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		cs.RegisterClient(c)

		assert.Same(t, c, cs.sessions[1], "expected session for user 1")
		su.AssertExpectations(t)
	})

	t.Run("second connection replaces and stops the first", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
		su.On("Incr", "Connections").Twice()

		first := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		second := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})

		cs.RegisterClient(first)
		cs.RegisterClient(second)

		assert.Same(t, second, cs.sessions[1], "expected newest connection to own the session")
		assert.True(t, first.stopped(), "expected replaced connection to be stopped")
		assert.False(t, second.stopped())
		assert.Len(t, cs.sessions, 1)
	})
}

func Test_deregisterClient(t *testing.T) {
	t.Run("removes own session entry", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
		su.On("Incr", "Connections").Once()
		su.On("Decr", "Connections").Once()

		c := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		cs.RegisterClient(c)
		cs.deregisterClient(c)

		assert.NotContains(t, cs.sessions, 1)
	})

	t.Run("replaced session does not evict its successor", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
		su.On("Incr", "Connections").Twice()
		su.On("Decr", "Connections").Once()

		first := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		second := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		cs.RegisterClient(first)
		cs.RegisterClient(second)

		cs.deregisterClient(first)
		assert.Same(t, second, cs.sessions[1], "expected successor session to survive")
	})
}

func TestOnlineAmong(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
	su.On("Incr", "Connections").Twice()

	cs.RegisterClient(newTestClient(t, cs, types.User{Id: 1}))
	cs.RegisterClient(newTestClient(t, cs, types.User{Id: 3}))

	online := cs.OnlineAmong([]int{1, 2, 3, 4})
	assert.True(t, online[1])
	assert.True(t, online[3])
	assert.False(t, online[2])
	assert.False(t, online[4])

	assert.True(t, cs.IsOnline(1))
	assert.False(t, cs.IsOnline(2))
}

func TestNotifyUser(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
	su.On("Incr", "Connections").Once()

	c := newTestClient(t, cs, types.User{Id: 1})
	cs.RegisterClient(c)

	n := &types.Notification{Type: "member_joined", Message: "ada joined \"algebra\""}
	assert.True(t, cs.NotifyUser(1, n), "expected delivery to connected user")

	select {
	case ev := <-c.send:
		assert.Equal(t, EventNotification, ev.Type)
		assert.Equal(t, n, ev.Notification)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout: notification event not queued")
	}

	assert.False(t, cs.NotifyUser(2, n), "expected no delivery for offline user")
}

func Test_handleJoin_server(t *testing.T) {
	t.Run("loads room on first join", func(t *testing.T) {
		db := &database.MockStudyCircleRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		su.On("Incr", "ActiveGroups").Once()
		su.On("Decr", "ActiveGroups").Once()

		db.On("GetGroupById", 1).Return(database.Group{Id: 1, Subject: "algebra"}, nil).Once()
		db.On("IsGroupMember", 1, 1).Return(true, nil).Once()

		c := newTestClient(t, cs, types.User{Id: 1, Name: "ada"})
		cs.handleJoin(&ClientCommand{Type: CmdJoinGroup, GroupId: 1, client: c})

		assert.Contains(t, cs.rooms, 1, "expected room to be loaded")

		select {
		case ev := <-c.send:
			assert.Equal(t, EventJoinedGroup, ev.Type)
			assert.Equal(t, 1, ev.GroupId)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout: join was not acknowledged")
		}

		cs.unloadRoom(unloadRoomRequest{groupId: 1})
	})

	t.Run("unknown group", func(t *testing.T) {
		db := &database.MockStudyCircleRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)

		db.On("GetGroupById", 99).Return(database.Group{}, sql.ErrNoRows).Once()

		c := newTestClient(t, cs, types.User{Id: 1})
		cs.handleJoin(&ClientCommand{Type: CmdJoinGroup, GroupId: 99, client: c})

		assert.NotContains(t, cs.rooms, 99)
		select {
		case ev := <-c.send:
			assert.Equal(t, EventError, ev.Type)
			assert.Equal(t, CodeValidationError, ev.Error.Code)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout: expected error event")
		}
	})

	t.Run("database failure", func(t *testing.T) {
		db := &database.MockStudyCircleRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)

		db.On("GetGroupById", 1).Return(database.Group{}, assert.AnError).Once()

		c := newTestClient(t, cs, types.User{Id: 1})
		cs.handleJoin(&ClientCommand{Type: CmdJoinGroup, GroupId: 1, client: c})

		select {
		case ev := <-c.send:
			assert.Equal(t, EventError, ev.Type)
			assert.Equal(t, CodePersistenceError, ev.Error.Code)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout: expected error event")
		}
	})
}

func TestUnloadGroup(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := cs.UnloadGroup(ctx, 1, true)
	assert.NoError(t, err)

	select {
	case req := <-cs.unloadRoomChan:
		assert.Equal(t, 1, req.groupId)
		assert.True(t, req.deleted)
	default:
		t.Fatal("expected unload request on channel")
	}
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("stops clients and drains the run loop", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)
		su.On("Incr", "Connections").Once()

		c := newTestClient(t, cs, types.User{Id: 1})
		cs.RegisterClient(c)

		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, cs.Shutdown(ctx))
		assert.True(t, c.stopped(), "expected client to be stopped on shutdown")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStudyCircleRepository{}, su)

		// Run loop never started, so done is never closed.
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, cs.Shutdown(ctx), context.DeadlineExceeded)
	})
}
