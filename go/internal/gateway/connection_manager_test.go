package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitdev14/workgp/go/internal/bus"
)

func newTestGateway(t *testing.T) (*ConnectionManager, *bus.InProcBus, string) {
	t.Helper()
	b := bus.NewInProcBus()
	cm := NewConnectionManager(b, DefaultConnectionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		b.Close()
	})
	return cm, b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL, username string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?username="+username, nil)
	require.NoError(t, err)
	return conn
}

func waitForEvent(t *testing.T, events <-chan bus.Event, eventType bus.EventType) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == eventType {
				return e
			}
		case <-deadline:
			t.Fatalf("never saw %s on the bus", eventType)
		}
	}
}

func TestPresenceFollowsSocketLifecycle(t *testing.T) {
	cm, b, wsURL := newTestGateway(t)

	events := make(chan bus.Event, 16)
	require.NoError(t, b.Subscribe(context.Background(), func(e bus.Event) { events <- e }))

	first := dial(t, wsURL, "alice")
	e := waitForEvent(t, events, bus.EventTypeOnline)
	payload, err := bus.ParseEventPayload(e)
	require.NoError(t, err)
	assert.Equal(t, bus.PresencePayload{Username: "alice"}, payload)

	// A second socket for the same racer announces nothing.
	second := dial(t, wsURL, "alice")
	assert.Eventually(t, func() bool {
		total, racers := cm.GetConnectionStats()
		return total == 2 && racers == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, cm.OnlineUsers())

	second.Close()
	assert.Eventually(t, func() bool {
		total, _ := cm.GetConnectionStats()
		return total == 1
	}, 2*time.Second, 10*time.Millisecond)

	first.Close()
	e = waitForEvent(t, events, bus.EventTypeOffline)
	payload, err = bus.ParseEventPayload(e)
	require.NoError(t, err)
	assert.Equal(t, bus.PresencePayload{Username: "alice"}, payload)
}

func TestAddressedEventReachesOnlyItsRacer(t *testing.T) {
	cm, b, wsURL := newTestGateway(t)

	alice := dial(t, wsURL, "alice")
	defer alice.Close()
	bob := dial(t, wsURL, "bob")
	defer bob.Close()

	require.Eventually(t, func() bool {
		_, racers := cm.GetConnectionStats()
		return racers == 2
	}, 2*time.Second, 10*time.Millisecond)

	event, err := bus.NewEvent(bus.EventTypeRaceInvite, "bob", bus.RaceInvitePayload{From: "alice", To: "bob"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), event))

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := bob.ReadMessage()
	require.NoError(t, err)

	var received bus.Event
	require.NoError(t, json.Unmarshal(frame, &received))
	assert.Equal(t, bus.EventTypeRaceInvite, received.Type)
	assert.Equal(t, "bob", received.Username)

	// Alice sees nothing: the invite was addressed to bob only.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = alice.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastReachesEveryone(t *testing.T) {
	cm, b, wsURL := newTestGateway(t)

	alice := dial(t, wsURL, "alice")
	defer alice.Close()
	bob := dial(t, wsURL, "bob")
	defer bob.Close()

	require.Eventually(t, func() bool {
		_, racers := cm.GetConnectionStats()
		return racers == 2
	}, 2*time.Second, 10*time.Millisecond)

	event, err := bus.NewEvent(bus.EventTypeSectorStarted, "", bus.SectorStartedPayload{Sector: 1, StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), event))

	for _, conn := range []*websocket.Conn{alice, bob} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)

		var received bus.Event
		require.NoError(t, json.Unmarshal(frame, &received))
		assert.Equal(t, bus.EventTypeSectorStarted, received.Type)
	}
}

// Broadcasting while sockets connect and disconnect must never hit a
// connection whose send channel was already closed by its pump teardown.
func TestBroadcastDuringConnectionChurn(t *testing.T) {
	cm, b, wsURL := newTestGateway(t)
	ctx := context.Background()

	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for {
			select {
			case <-stop:
				return
			default:
			}
			event, err := bus.NewEvent(bus.EventTypeSectorStarted, "", bus.SectorStartedPayload{Sector: 1, StartedAt: time.Now()})
			if err != nil {
				return
			}
			b.Publish(ctx, event)
		}
	}()

	for i := 0; i < 20; i++ {
		conn := dial(t, wsURL, "alice")
		require.Eventually(t, func() bool {
			total, _ := cm.GetConnectionStats()
			return total == 1
		}, 2*time.Second, time.Millisecond)
		conn.Close()
		require.Eventually(t, func() bool {
			total, _ := cm.GetConnectionStats()
			return total == 0
		}, 2*time.Second, time.Millisecond)
	}
	close(stop)
	<-published

	// The dispatch loop survived the churn: an addressed event still
	// reaches a fresh socket.
	bob := dial(t, wsURL, "bob")
	defer bob.Close()
	require.Eventually(t, func() bool {
		_, racers := cm.GetConnectionStats()
		return racers == 1
	}, 2*time.Second, 10*time.Millisecond)

	event, err := bus.NewEvent(bus.EventTypeRaceInvite, "bob", bus.RaceInvitePayload{From: "alice", To: "bob"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, event))

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := bob.ReadMessage()
		require.NoError(t, err)
		var received bus.Event
		require.NoError(t, json.Unmarshal(frame, &received))
		if received.Type == bus.EventTypeRaceInvite {
			assert.Equal(t, "bob", received.Username)
			break
		}
	}
}
