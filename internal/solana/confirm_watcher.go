package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solswap/internal/domain"
)

// WSConfirmerConfig configures the WebSocket confirmation watcher.
type WSConfirmerConfig struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout is timeout for writing the subscribe request.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames while waiting.
	PingInterval time.Duration
}

// DefaultWSConfirmerConfig returns default watcher configuration.
func DefaultWSConfirmerConfig() WSConfirmerConfig {
	return WSConfirmerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// WSConfirmer waits for transaction confirmations over a WebSocket
// signatureSubscribe. The subscription is one-shot: the node fires a single
// notification once the signature reaches the requested commitment and then
// cancels the subscription itself, so each wait gets its own connection
// instead of a shared reconnecting client.
type WSConfirmer struct {
	endpoint  string
	config    WSConfirmerConfig
	logger    zerolog.Logger
	requestID atomic.Uint64
}

var _ Confirmer = (*WSConfirmer)(nil)

// NewWSConfirmer creates a confirmation watcher for a ws:// or wss:// endpoint.
func NewWSConfirmer(endpoint string, config *WSConfirmerConfig, logger zerolog.Logger) *WSConfirmer {
	cfg := DefaultWSConfirmerConfig()
	if config != nil {
		cfg = *config
	}
	return &WSConfirmer{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.With().Str("component", "ws_confirmer").Logger(),
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsSignatureNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context *struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// WaitForConfirmation subscribes to the signature and blocks until the node
// reports it at the wanted commitment or ctx expires. Expiry is
// domain.ErrConfirmationTimeout; the transaction may still land later.
func (c *WSConfirmer) WaitForConfirmation(ctx context.Context, signature, commitment string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": commitment},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	// Unblock ReadMessage when ctx expires and keep the connection alive
	// with pings while the wait runs.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return domain.ErrConfirmationTimeout
			}
			return fmt.Errorf("websocket read: %w", err)
		}

		var resp wsSubscribeResponse
		if err := json.Unmarshal(message, &resp); err == nil && resp.ID == reqID {
			if resp.Error != nil {
				return fmt.Errorf("signatureSubscribe error %d: %s", resp.Error.Code, resp.Error.Message)
			}
			c.logger.Debug().
				Str("signature", signature).
				Int64("subscription", resp.Result).
				Msg("signature subscription confirmed")
			continue
		}

		var notif wsSignatureNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "signatureNotification" || notif.Params == nil {
			continue
		}

		if notif.Params.Result.Value.Err != nil {
			return fmt.Errorf("transaction failed on chain: %v", notif.Params.Result.Value.Err)
		}
		return nil
	}
}
