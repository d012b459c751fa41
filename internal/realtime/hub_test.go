package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientWantsFiltering(t *testing.T) {
	event := &Event{Kind: "escrow.settled", BookingID: "bkg_1"}

	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"all events", Subscription{AllEvents: true}, true},
		{"matching kind", Subscription{Kinds: []string{"escrow.settled"}}, true},
		{"other kind", Subscription{Kinds: []string{"dispute.filed"}}, false},
		{"matching booking", Subscription{BookingIDs: []string{"bkg_1"}}, true},
		{"other booking", Subscription{BookingIDs: []string{"bkg_2"}}, false},
		{"kind and booking both match", Subscription{Kinds: []string{"escrow.settled"}, BookingIDs: []string{"bkg_1"}}, true},
		{"kind matches, booking does not", Subscription{Kinds: []string{"escrow.settled"}, BookingIDs: []string{"bkg_2"}}, false},
		{"no filters", Subscription{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Client{sub: tc.sub}
			assert.Equal(t, tc.want, c.wants(event))
		})
	}
}

func TestHubEndToEnd(t *testing.T) {
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for registration before publishing.
	require.Eventually(t, func() bool {
		return hub.Stats()["connectedClients"].(int) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish("dispute.filed", "bkg_1", map[string]string{"disputeId": "dsp_1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(message, &event))
	assert.Equal(t, "dispute.filed", event.Kind)
	assert.Equal(t, "bkg_1", event.BookingID)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(testLogger())
	// Run is not started, so the broadcast channel backs up.
	for i := 0; i < 300; i++ {
		hub.Publish("escrow.settled", "bkg_1", nil)
	}
	// Must not block or panic.
}
