package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"restopos/internal/logger"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, tenant int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=" + strconv.Itoa(tenant)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The hello frame is written only after registration.
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != "hello" {
		t.Fatalf("first frame = %+v, %v; want hello", ev, err)
	}
	return conn
}

func TestHubPublishesPerTenant(t *testing.T) {
	hub := NewHub(logger.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := strconv.Atoi(r.URL.Query().Get("tenant"))
		if err := hub.Serve(w, r, uint(tenant), 1); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}))
	defer srv.Close()

	a := dial(t, srv, 1)
	b := dial(t, srv, 2)

	hub.Publish(1, "order.created", map[string]int{"id": 42})

	var ev Event
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := a.ReadJSON(&ev); err != nil {
		t.Fatalf("tenant 1 read: %v", err)
	}
	if ev.Type != "order.created" {
		t.Errorf("type = %q, want order.created", ev.Type)
	}
	var payload map[string]int
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload["id"] != 42 {
		t.Errorf("payload = %s", ev.Payload)
	}

	_ = b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := b.ReadJSON(&ev); err == nil {
		t.Errorf("tenant 2 received %q, want nothing", ev.Type)
	}
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(logger.Discard(), []string{"https://pos.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://pos.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := hub.upgrader.CheckOrigin(r); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
