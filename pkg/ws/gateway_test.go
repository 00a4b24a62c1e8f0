package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/pkg/auth"
	"chatcore/pkg/fanout"
	"chatcore/pkg/models"
	"chatcore/pkg/presence"
	"chatcore/pkg/store"
	"chatcore/pkg/threads"
	"chatcore/pkg/typing"
)

type testGateway struct {
	gw       *Gateway
	svc      *threads.Service
	tracker  *presence.Tracker
	registry *typing.Registry
	srv      *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	d := fanout.NewDispatcher(64)
	tracker := presence.NewTracker(time.Minute, d)
	registry := typing.NewRegistry(time.Minute, d)
	svc := threads.NewService(d, tracker, nil)
	gw := NewGateway(svc, d, tracker, registry)

	// stand-in for the auth middleware: the user arrives via query param
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.URL.Query().Get("user"); user != "" {
			r = r.WithContext(auth.WithUserID(r.Context(), user))
		}
		gw.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(gw.CloseAll)

	return &testGateway{gw: gw, svc: svc, tracker: tracker, registry: registry, srv: srv}
}

func (g *testGateway) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent blocks until the next event of the wanted type arrives,
// skipping unrelated ones.
func readEvent(t *testing.T, conn *websocket.Conn, want models.EventType) models.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event %q: %v", data, err)
		}
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no %s event arrived", want)
	return models.Event{}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUpgradeRequiresUser(t *testing.T) {
	g := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("anonymous upgrade must be refused")
	}
}

func TestSessionReceivesThreadEvents(t *testing.T) {
	g := newTestGateway(t)
	th, err := g.svc.CreateThread(models.Thread{Participants: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	conn := g.dial(t, "bob")
	waitFor(t, "bob online", func() bool { return g.tracker.IsOnline("bob") })

	m, err := g.svc.Append(threads.AppendInput{Thread: th.ID, Sender: "alice", Content: "hi bob"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	ev := readEvent(t, conn, models.EventMessageCreated)
	if ev.Thread != th.ID || ev.Message == nil || ev.Message.ID != m.ID {
		t.Fatalf("wrong event: %+v", ev)
	}
	if ev.TS != m.TS {
		t.Fatal("event must carry the server ordering timestamp")
	}
}

func TestMarkSeenOp(t *testing.T) {
	g := newTestGateway(t)
	th, err := g.svc.CreateThread(models.Thread{Participants: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	m, err := g.svc.Append(threads.AppendInput{Thread: th.ID, Sender: "alice", Content: "unread"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	conn := g.dial(t, "bob")
	frame, _ := json.Marshal(clientOp{Op: "mark_seen", Thread: th.ID, UpTo: m.TS})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write op: %v", err)
	}

	waitFor(t, "unread to reach zero", func() bool {
		got, err := g.svc.GetThread(th.ID)
		return err == nil && got.Unread["bob"] == 0
	})
}

func TestTypingOps(t *testing.T) {
	g := newTestGateway(t)
	th, err := g.svc.CreateThread(models.Thread{Participants: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	conn := g.dial(t, "alice")
	start, _ := json.Marshal(clientOp{Op: "typing_start", Thread: th.ID})
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		t.Fatalf("write start: %v", err)
	}
	waitFor(t, "alice typing", func() bool {
		states := g.registry.Typing(th.ID)
		return len(states) == 1 && states[0].User == "alice"
	})

	stop, _ := json.Marshal(clientOp{Op: "typing_stop", Thread: th.ID})
	if err := conn.WriteMessage(websocket.TextMessage, stop); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	waitFor(t, "typing cleared", func() bool {
		return len(g.registry.Typing(th.ID)) == 0
	})
}

func TestCoParticipantSeesPresence(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.svc.CreateThread(models.Thread{Participants: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("create thread: %v", err)
	}

	// bob connects first and must observe alice's transitions
	bobConn := g.dial(t, "bob")
	waitFor(t, "bob online", func() bool { return g.tracker.IsOnline("bob") })

	aliceConn := g.dial(t, "alice")
	ev := readEvent(t, bobConn, models.EventPresence)
	if ev.User != "alice" || ev.Presence == nil || ev.Presence.Status != models.PresenceOnline {
		t.Fatalf("expected alice online, got %+v", ev)
	}

	aliceConn.Close()
	ev = readEvent(t, bobConn, models.EventPresence)
	if ev.User != "alice" || ev.Presence == nil || ev.Presence.Status != models.PresenceOffline {
		t.Fatalf("expected alice offline, got %+v", ev)
	}
}

func TestTeardownOnDisconnect(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.svc.CreateThread(models.Thread{Participants: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("create thread: %v", err)
	}

	conn := g.dial(t, "alice")
	waitFor(t, "alice online", func() bool { return g.tracker.IsOnline("alice") })

	conn.Close()
	waitFor(t, "alice offline after disconnect", func() bool { return !g.tracker.IsOnline("alice") })

	g.gw.mu.Lock()
	n := len(g.gw.clients)
	g.gw.mu.Unlock()
	if n != 0 {
		t.Fatalf("session not removed: %d remain", n)
	}
}
