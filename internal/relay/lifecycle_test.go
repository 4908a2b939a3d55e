package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

func TestConnectAnnouncesUserOnline(t *testing.T) {
	rg := newRig(t)
	u1 := rg.connect("u1", "client")

	u2 := rg.connect("u2", "project_manager")

	got := u1.eventsNamed(t, EvtUserOnline)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", payloadField(t, got[0], "userId"))
	assert.Equal(t, "project_manager", payloadField(t, got[0], "role"))
	assert.Empty(t, u2.eventsNamed(t, EvtUserOnline), "a connection is not told about its own arrival")
}

func TestDisconnectAnnouncesOfflineAndLeavesRooms(t *testing.T) {
	rg := newRig(t)
	u1 := rg.connect("u1", "client")
	u2 := rg.connect("u2", "client")
	rg.join(u1, "alpha")
	rg.join(u1, "beta")
	rg.join(u2, "alpha")
	rg.join(u2, "beta")
	rg.resetAll()

	u1.Close(errors.New("tab closed"))
	rg.drain()

	left := u2.eventsNamed(t, EvtUserLeftProject)
	require.Len(t, left, 2, "one user_left_project per shared room")
	projects := map[string]bool{}
	for _, env := range left {
		assert.Equal(t, "u1", payloadField(t, env, "userId"))
		projects[payloadField(t, env, "projectId")] = true
	}
	assert.True(t, projects["alpha"] && projects["beta"])

	require.Len(t, u2.eventsNamed(t, EvtUserOffline), 1)
	assert.False(t, rg.state.IsOnline("u1"))

	for _, room := range []string{"project:alpha", "project:beta"} {
		for _, member := range rg.state.MembersOf(room) {
			assert.NotEqual(t, "u1", member)
		}
	}
}

func TestDuplicateDisconnectIsNoOp(t *testing.T) {
	rg := newRig(t)
	u1 := rg.connect("u1", "client")
	u2 := rg.connect("u2", "client")
	rg.resetAll()

	u1.Close(errors.New("gone"))
	rg.drain()
	// Simulate a second disconnect signal for the same dead connection.
	rg.relay.Disconnect(&state.Connection{ID: u1.ID(), UserID: "u1", Transport: u1}, errors.New("gone again"))
	rg.drain()

	assert.Len(t, u2.eventsNamed(t, EvtUserOffline), 1, "a duplicate disconnect must not re-announce")
}

func TestReconnectSupersedesAndSurvivesStaleDisconnect(t *testing.T) {
	rg := newRig(t)
	connA := rg.connect("u1", "client")
	require.False(t, connA.isClosed())

	// Reconnect: B takes the registry slot and A is force-closed.
	connB := rg.connect("u1", "client")
	rg.drain()

	assert.True(t, connA.isClosed(), "superseded connection must be closed explicitly")
	active, ok := rg.state.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, connB.ID(), active.ID)

	// A's close already queued its disconnect; whatever order it lands in,
	// B must still be the registered connection.
	rg.drain()
	active, ok = rg.state.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, connB.ID(), active.ID, "stale disconnect must not evict the newer connection")
	assert.True(t, rg.state.IsOnline("u1"))
}

func TestSupersededConnectionEmitsNoOfflineBroadcast(t *testing.T) {
	rg := newRig(t)
	observer := rg.connect("watcher", "client")
	rg.connect("u1", "client")
	rg.resetAll()

	rg.connect("u1", "client") // supersedes
	rg.drain()

	assert.Empty(t, observer.eventsNamed(t, EvtUserOffline),
		"a superseded connection's close must not announce the user offline")
	require.Len(t, observer.eventsNamed(t, EvtUserOnline), 1)
}

func TestSweepTreatsIdleConnectionsAsDisconnects(t *testing.T) {
	rg := newRig(t)
	base := time.Now()
	rg.relay.now = func() time.Time { return base }

	u1 := rg.connect("u1", "client")
	u2 := rg.connect("u2", "client")
	rg.join(u1, "alpha")
	rg.join(u2, "alpha")
	rg.resetAll()

	// u2 stays active, u1 goes idle past the threshold.
	rg.relay.now = func() time.Time { return base.Add(5 * time.Minute) }
	rg.state.Touch("u2", base.Add(5*time.Minute))

	rg.relay.sweepStale()
	rg.drain()

	assert.True(t, u1.isClosed())
	assert.False(t, u2.isClosed())
	assert.False(t, rg.state.IsOnline("u1"))
	require.Len(t, u2.eventsNamed(t, EvtUserOffline), 1, "sweep must follow the normal disconnect path")
	require.Len(t, u2.eventsNamed(t, EvtUserLeftProject), 1)
}

func TestCloseAllShutsEveryConnection(t *testing.T) {
	rg := newRig(t)
	u1 := rg.connect("u1", "client")
	u2 := rg.connect("u2", "client")

	rg.relay.CloseAll(errors.New("graceful shutdown"))
	rg.drain()

	assert.True(t, u1.isClosed())
	assert.True(t, u2.isClosed())
	assert.Equal(t, 0, rg.state.ConnectionCount())
}
