package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solswap/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// notifyServer upgrades, verifies the signatureSubscribe request and replies
// with a subscription confirmation followed by a signature notification
// carrying chainErr.
func notifyServer(t *testing.T, wantSig, wantCommitment string, chainErr interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != wantSig {
			t.Errorf("unexpected params: %v", req.Params)
		}
		if opts, ok := req.Params[1].(map[string]interface{}); !ok || opts["commitment"] != wantCommitment {
			t.Errorf("expected commitment %s, got %v", wantCommitment, req.Params[1])
		}

		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(7041),
		})

		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "signatureNotification",
			"params": map[string]interface{}{
				"subscription": int64(7041),
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": uint64(5208469)},
					"value":   map[string]interface{}{"err": chainErr},
				},
			},
		})

		// Hold the connection until the client closes it.
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

func TestWSConfirmer_WaitForConfirmation(t *testing.T) {
	server := notifyServer(t, "sig123", CommitmentConfirmed, nil)
	defer server.Close()

	c := NewWSConfirmer(wsURL(server), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.WaitForConfirmation(ctx, "sig123", CommitmentConfirmed); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
}

func TestWSConfirmer_ChainError(t *testing.T) {
	chainErr := map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	server := notifyServer(t, "sig123", CommitmentFinalized, chainErr)
	defer server.Close()

	c := NewWSConfirmer(wsURL(server), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.WaitForConfirmation(ctx, "sig123", CommitmentFinalized)
	if err == nil {
		t.Fatal("expected on-chain failure error")
	}
	if errors.Is(err, domain.ErrConfirmationTimeout) {
		t.Errorf("on-chain failure must not look like a timeout: %v", err)
	}
}

func TestWSConfirmer_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Confirm the subscription but never notify.
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(1),
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	c := NewWSConfirmer(wsURL(server), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.WaitForConfirmation(ctx, "sig", CommitmentConfirmed)
	if !errors.Is(err, domain.ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
}

func TestWSConfirmer_SubscribeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "invalid signature"},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	c := NewWSConfirmer(wsURL(server), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.WaitForConfirmation(ctx, "not-a-signature", CommitmentConfirmed)
	if err == nil || !strings.Contains(err.Error(), "invalid signature") {
		t.Fatalf("expected subscribe error, got %v", err)
	}
}
