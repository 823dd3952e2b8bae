package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig controls how a service connection is established.
type DialConfig struct {
	// URL is the logical service endpoint, e.g. "wss://rpc.example.network/polkadot".
	URL string

	// ResolveTo, when set, is the IP address the endpoint host is dialed at
	// instead of its DNS answer. TLS verification and the Host header still
	// use the logical hostname, so the target serves the expected vhost.
	ResolveTo string

	// ConnectTimeout bounds the transport connect plus websocket handshake.
	ConnectTimeout time.Duration

	// CallTimeout bounds each individual RPC call. Zero means 30s.
	CallTimeout time.Duration
}

// Client is a synchronous JSON-RPC client over a websocket connection.
// One call is in flight at a time; the checker's probe sequence is serial.
type Client struct {
	conn        *websocket.Conn
	callTimeout time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	nextID uint64
}

// Dial opens a service connection. When cfg.ResolveTo is set the underlying
// TCP connection goes to that address directly, bypassing DNS for the
// endpoint host.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, NewTransientError("InvalidEndpoint", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}

	if cfg.ResolveTo != "" {
		port := u.Port()
		if port == "" {
			if u.Scheme == "wss" {
				port = "443"
			} else {
				port = "80"
			}
		}
		target := net.JoinHostPort(cfg.ResolveTo, port)
		netDialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
		dialer.NetDialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
			return netDialer.DialContext(ctx, network, target)
		}
	}

	dialCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, _, err := dialer.DialContext(dialCtx, cfg.URL, nil)
	if err != nil {
		return nil, NewTransientError("ConnectFailed", err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 30 * time.Second
	}

	return &Client{
		conn:        conn,
		callTimeout: callTimeout,
		log:         slog.Default(),
	}, nil
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call performs one JSON-RPC call and decodes the result into out. A nil out
// discards the result. Connectivity faults come back as KindTransient, RPC
// error responses as KindRejection.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := request{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	deadline := time.Now().Add(c.callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return NewTransientError("WriteDeadline", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return NewTransientError("WriteFailed", err)
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return NewTransientError("ReadDeadline", err)
	}

	// Read until the matching response ID; subscriptions and stale replies
	// on the wire are skipped.
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			return NewTransientError("ReadFailed", err)
		}
		if resp.ID != req.ID {
			c.log.Debug("skipping unmatched rpc message", "id", resp.ID, "want", req.ID)
			continue
		}
		if resp.Error != nil {
			return NewRejectionError(resp.Error.Code, resp.Error.Message)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return NewTransientError("DecodeFailed", fmt.Errorf("decode %s result: %w", method, err))
		}
		return nil
	}
}

// Ready performs the protocol handshake: one lightweight call that confirms
// the service answers RPC after the transport connected.
func (c *Client) Ready(ctx context.Context) error {
	return c.Call(ctx, "system_health", nil, nil)
}

// Close tears the connection down. Safe on both success and failure paths.
func (c *Client) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
