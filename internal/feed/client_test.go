package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"agent-roster-lab/internal/storage/memory"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedServer serves one WebSocket connection and pushes the given frames.
func feedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}

		// Keep connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestClient_Connect(t *testing.T) {
	server := feedServer(t, nil)
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), memory.NewBalanceStore(), memory.NewTradeStore(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestClient_PersistsFrames(t *testing.T) {
	server := feedServer(t, []string{
		`{"type":"balance","agent_id":"a1","date":"2025-06-10","balance":10000}`,
		`{"type":"trade","agent_id":"a1","date":"2025-06-10","symbol":"BTC","pnl":42.5}`,
		`{"type":"trade","agent_id":"a1","date":"2025-06-10","symbol":"ETH","pnl":-10}`,
	})
	defer server.Close()

	balances := memory.NewBalanceStore()
	trades := memory.NewTradeStore()

	client, err := NewClient(context.Background(), wsURL(server), balances, trades, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool {
		fills, _ := trades.GetByAgentDate(ctx, "a1", "2025-06-10")
		return len(fills) == 2
	})

	snapshot, err := balances.GetByAgentDate(ctx, "a1", "2025-06-10")
	if err != nil {
		t.Fatalf("balance not stored: %v", err)
	}
	if snapshot.Balance != 10000 {
		t.Errorf("Balance: got %f", snapshot.Balance)
	}

	fills, err := trades.GetByAgentDate(ctx, "a1", "2025-06-10")
	if err != nil {
		t.Fatalf("trades not stored: %v", err)
	}
	if fills[0].Symbol != "BTC" || fills[0].PnL != 42.5 {
		t.Errorf("First fill: %+v", fills[0])
	}
}

func TestClient_TolerantOfBadFrames(t *testing.T) {
	server := feedServer(t, []string{
		`not json at all`,
		`{"type":"balance","agent_id":"a1","date":"10/06/2025","balance":1}`,
		`{"type":"mystery","agent_id":"a1","date":"2025-06-10"}`,
		`{"type":"balance","agent_id":"a1","date":"2025-06-10","balance":500}`,
	})
	defer server.Close()

	balances := memory.NewBalanceStore()
	client, err := NewClient(context.Background(), wsURL(server), balances, memory.NewTradeStore(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	// The garbage frames are dropped; the valid one still lands.
	waitFor(t, 2*time.Second, func() bool {
		_, err := balances.GetByAgentDate(context.Background(), "a1", "2025-06-10")
		return err == nil
	})
}

func TestClient_DuplicateBalanceReplay(t *testing.T) {
	frame := `{"type":"balance","agent_id":"a1","date":"2025-06-10","balance":10000}`
	server := feedServer(t, []string{frame, frame})
	defer server.Close()

	balances := memory.NewBalanceStore()
	client, err := NewClient(context.Background(), wsURL(server), balances, memory.NewTradeStore(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	waitFor(t, 2*time.Second, func() bool {
		_, err := balances.GetByAgentDate(context.Background(), "a1", "2025-06-10")
		return err == nil
	})
	// No error surfaces and the stored value is from the first frame.
	snapshot, err := balances.GetByAgentDate(context.Background(), "a1", "2025-06-10")
	if err != nil {
		t.Fatalf("GetByAgentDate: %v", err)
	}
	if snapshot.Balance != 10000 {
		t.Errorf("Balance: got %f", snapshot.Balance)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	server := feedServer(t, nil)
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), memory.NewBalanceStore(), memory.NewTradeStore(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
