package client_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/warefront/presence/client"
	"github.com/warefront/presence/internal/adapters/gateway"
	router "github.com/warefront/presence/internal/adapters/http"
	"github.com/warefront/presence/internal/auth"
	"github.com/warefront/presence/internal/config"
	"github.com/warefront/presence/internal/presence"
)

func newPresenceServer(t *testing.T) (wsBase string, reg *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:           "release",
		DefaultRoom:    "dashboard",
		ReadLimit:      4096,
		SendBuffer:     8,
		WriteTimeout:   2 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
		Secret:         "test-secret",
	}
	reg = presence.NewRegistry(nil)
	gw := gateway.NewGateway(reg, cfg)
	tokens := auth.NewManager(cfg.Secret, time.Hour)

	srv := httptest.NewServer(router.SetupRouter(cfg, gw, tokens))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws", reg
}

// rawPeer is a second tab implemented directly on the wire.
func rawPeer(t *testing.T, wsBase, room, clientID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsBase+"?roomID="+room+"&clientID="+clientID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManagerConnectsAndTracksOccupancy(t *testing.T) {
	wsBase, _ := newPresenceServer(t)

	m := client.NewManager(wsBase, "u1")
	if err := m.Navigate("/products"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	waitFor(t, func() bool {
		snap := m.Store().Snapshot()
		return snap.Connected && snap.RoomID == "products" && snap.Occupancy == 1
	}, "store never saw the initial occupancy")

	rawPeer(t, wsBase, "products", "u2")
	waitFor(t, func() bool { return m.Store().Snapshot().Occupancy == 2 },
		"store never saw the second member")

	if m.Status() != client.Open {
		t.Fatalf("status = %v, want Open", m.Status())
	}
}

func TestNavigateSwitchesRoomInBand(t *testing.T) {
	wsBase, reg := newPresenceServer(t)

	peer := rawPeer(t, wsBase, "products", "u2")
	_ = peer

	m := client.NewManager(wsBase, "u1")
	if err := m.Navigate("/products"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	waitFor(t, func() bool { return m.Store().Snapshot().Occupancy == 2 },
		"manager never joined products")

	if err := m.Navigate("/inventory/7"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	waitFor(t, func() bool {
		snap := m.Store().Snapshot()
		return snap.RoomID == "inventory" && snap.Occupancy == 1
	}, "store never reflected the inventory room")

	waitFor(t, func() bool {
		return reg.OccupancyOf("products") == 1 && reg.OccupancyOf("inventory") == 1
	}, "registry counts wrong after in-band move")

	// The room change reused the socket.
	if m.Status() != client.Open {
		t.Fatalf("status = %v, want Open", m.Status())
	}
}

func TestCloseSendsBestEffortLeave(t *testing.T) {
	wsBase, reg := newPresenceServer(t)

	m := client.NewManager(wsBase, "u1")
	if err := m.Navigate("/products"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	waitFor(t, func() bool { return m.Store().Snapshot().Connected }, "manager never connected")

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitFor(t, func() bool { return reg.OccupancyOf("products") == 0 },
		"server kept the session after close")
	if snap := m.Store().Snapshot(); snap.Connected {
		t.Fatalf("store still connected after close: %+v", snap)
	}
	if m.Status() != client.Disconnected {
		t.Fatalf("status = %v, want Disconnected", m.Status())
	}
}

func TestDialFailureStaysDisconnected(t *testing.T) {
	// Nothing listens here.
	m := client.NewManager("ws://127.0.0.1:1/api/ws", "u1")
	if err := m.Navigate("/products"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	waitFor(t, func() bool { return m.Status() == client.Disconnected },
		"manager never settled back to Disconnected")
	if snap := m.Store().Snapshot(); snap.Connected || snap.Occupancy != 0 {
		t.Fatalf("failed dial mutated store: %+v", snap)
	}
}

// Client IDs are not unique across tabs: each open socket counts on its own.
func TestOccupancyCountsSessionsNotUsers(t *testing.T) {
	wsBase, reg := newPresenceServer(t)

	m := client.NewManager(wsBase, "u1")
	if err := m.Navigate("/products"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	waitFor(t, func() bool { return reg.OccupancyOf("products") == 1 }, "server never saw the session")

	rawPeer(t, wsBase, "products", "u1")
	waitFor(t, func() bool { return m.Store().Snapshot().Occupancy == 2 }, "second tab never counted")

	m2 := client.NewManager(wsBase, "u1")
	_ = m2.Navigate("/products")
	waitFor(t, func() bool { return m.Store().Snapshot().Occupancy == 3 }, "third tab never counted")
	_ = m2.Close()
	waitFor(t, func() bool { return m.Store().Snapshot().Occupancy == 2 }, "closed tab still counted")
}

// Hammer close/reconnect cycles: the torn-down socket's read loop races the
// replacement dial, and the store must always agree with the manager. An
// Open manager whose store reads disconnected means a superseded callback
// published after its replacement.
func TestReconnectCyclesKeepStoreConsistent(t *testing.T) {
	wsBase, _ := newPresenceServer(t)

	m := client.NewManager(wsBase, "u1")
	check := func() {
		t.Helper()
		if m.Status() == client.Open && !m.Store().Snapshot().Connected {
			t.Fatal("manager Open but store reads disconnected")
		}
	}

	for i := 0; i < 50; i++ {
		_ = m.Navigate("/products")
		waitFor(t, func() bool { return m.Store().Snapshot().Connected },
			"manager never connected")
		check()
		_ = m.Close()
		check()
	}

	_ = m.Navigate("/products")
	waitFor(t, func() bool {
		snap := m.Store().Snapshot()
		return snap.Connected && snap.RoomID == "products"
	}, "store inconsistent after reconnect churn")
	check()
}

func TestDisconnectedNavigateReconnects(t *testing.T) {
	wsBase, reg := newPresenceServer(t)

	m := client.NewManager(wsBase, "u1")
	_ = m.Navigate("/products")
	waitFor(t, func() bool { return m.Store().Snapshot().Connected }, "manager never connected")
	_ = m.Close()
	waitFor(t, func() bool { return reg.OccupancyOf("products") == 0 }, "server kept the session")

	// A later navigation re-triggers Connecting, as a render cycle would.
	_ = m.Navigate("/warehouse")
	waitFor(t, func() bool {
		snap := m.Store().Snapshot()
		return snap.Connected && snap.RoomID == "warehouse" && snap.Occupancy == 1
	}, "manager never reconnected after close")
}
