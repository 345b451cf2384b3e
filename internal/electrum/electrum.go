// Package electrum is a narrow client for the Electrum protocol's
// block-header subscription, used only by cmd/engine's optional header
// subscription when ELECTRUM_URL is configured (§6, SUPPLEMENTED FEATURES
// "Electrum-path stub surface"). It mirrors the existence of the original's
// dashboard/backend/src/handlers/electrum.rs (which only manages Electrs/
// Fulcrum containers) without importing its docker-orchestration
// implementation; the actual wire protocol is grounded on
// _examples/Klingon-tech-klingdex/internal/backend/electrum.go, the one
// real Electrum JSON-RPC-over-TCP client in the retrieved pack.
package electrum

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Header is a subscribed tip notification: Electrum's
// blockchain.headers.subscribe reports the new height and raw header hex
// every time the server's view of the chain advances.
type Header struct {
	Height int64
	Hex    string
}

// Client is a minimal Electrum JSON-RPC client scoped to header
// subscription; it does not implement scripthash queries or broadcasting —
// those stay on the Bitcoin Core RPC path (internal/bitcoin).
type Client struct {
	addr    string
	useTLS  bool
	timeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	requestID atomic.Uint64

	headers chan Header
}

// New constructs a disconnected Client for addr ("host:port").
func New(addr string, useTLS bool) *Client {
	return &Client{
		addr:    addr,
		useTLS:  useTLS,
		timeout: 15 * time.Second,
		headers: make(chan Header, 16),
	}
}

// Connect dials the Electrum server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	var conn net.Conn
	var err error
	if c.useTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return fmt.Errorf("electrum: dial %s: %w", c.addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	log.Printf("[electrum] connected to %s", c.addr)
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubscribeHeaders sends blockchain.headers.subscribe, returning the
// server's current tip, and starts a background reader forwarding every
// subsequent push notification to the channel returned by Headers().
func (c *Client) SubscribeHeaders() (Header, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return Header{}, fmt.Errorf("electrum: not connected")
	}
	conn := c.conn
	reader := c.reader
	c.mu.Unlock()

	raw, err := c.call("blockchain.headers.subscribe", nil)
	if err != nil {
		return Header{}, err
	}
	initial, err := parseHeaderPayload(raw)
	if err != nil {
		return Header{}, err
	}

	go c.readLoop(conn, reader)

	return initial, nil
}

// Headers returns the channel header-subscribe notifications arrive on.
func (c *Client) Headers() <-chan Header {
	return c.headers
}

func (c *Client) readLoop(conn net.Conn, reader *bufio.Reader) {
	for {
		conn.SetReadDeadline(time.Time{})
		line, err := reader.ReadBytes('\n')
		if err != nil {
			log.Printf("[electrum] read loop exiting: %v", err)
			close(c.headers)
			return
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			log.Printf("[electrum] malformed notification: %v", err)
			continue
		}
		if resp.ID != nil || resp.Method != "blockchain.headers.subscribe" {
			continue
		}

		hdr, err := parseHeaderPayload(resp.Params)
		if err != nil {
			log.Printf("[electrum] malformed header notification: %v", err)
			continue
		}
		c.headers <- hdr
	}
}

// parseHeaderPayload unwraps either a bare {"height":..,"hex":..} result
// object (the initial subscribe reply) or a one-element array wrapping the
// same object (the push-notification "params" shape).
func parseHeaderPayload(raw json.RawMessage) (Header, error) {
	var obj struct {
		Height int64  `json:"height"`
		Hex    string `json:"hex"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Hex != "" {
		return Header{Height: obj.Height, Hex: obj.Hex}, nil
	}

	var wrapped []struct {
		Height int64  `json:"height"`
		Hex    string `json:"hex"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped) == 1 {
		return Header{Height: wrapped[0].Height, Hex: wrapped[0].Hex}, nil
	}

	return Header{}, fmt.Errorf("electrum: unexpected header payload %s", string(raw))
}

func (c *Client) call(method string, params []interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("electrum: not connected")
	}

	id := c.requestID.Add(1)
	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("electrum: write: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("electrum: read: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("electrum: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("electrum: %s error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// DecodeHeaderHash computes a block hash (double-SHA256, byte-reversed)
// from an 80-byte raw header, the way block explorers derive it from
// blockchain.block.header's hex payload.
func DecodeHeaderHash(headerHex string) (string, error) {
	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return "", fmt.Errorf("electrum: invalid header hex: %w", err)
	}
	if len(raw) != 80 {
		return "", fmt.Errorf("electrum: expected 80-byte header, got %d", len(raw))
	}
	return hex.EncodeToString(reverseBytes(doubleSHA256(raw))), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
