// Package testutil provides helpers for driving the game server over real
// sockets in tests.
package testutil

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// Frame is any frame received from the server: a reply carries Ack, a push
// carries Event.
type Frame struct {
	Event string          `json:"event,omitempty"`
	Ack   json.RawMessage `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// IsReply reports whether f answers a request.
func (f Frame) IsReply() bool {
	return f.Event == ""
}

// FrameClient is a line-framed JSON test client.
type FrameClient struct {
	conn    net.Conn
	reader  *bufio.Reader
	t       *testing.T
	nextAck int
	pending []Frame
}

// NewFrameClient dials addr and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected FrameClient or fails the test.
func NewFrameClient(t *testing.T, addr string) *FrameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("frame client connected to %s [%s]", addr, time.Since(start))
	return &FrameClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// Send writes one request frame and returns its ack number.
func (c *FrameClient) Send(event string, data any) int {
	c.t.Helper()
	c.nextAck++
	frame, err := json.Marshal(map[string]any{"event": event, "ack": c.nextAck, "data": data})
	if err != nil {
		c.t.Fatalf("encoding %s: %v", event, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(append(frame, '\r', '\n')); err != nil {
		c.t.Fatalf("sending %s: %v", event, err)
	}
	return c.nextAck
}

// Request sends event and waits for its reply. Pushes received meanwhile are
// kept for Next.
func (c *FrameClient) Request(event string, data any) Frame {
	c.t.Helper()
	ack := c.Send(event, data)
	for {
		f := c.read()
		if f.IsReply() && string(f.Ack) == jsonInt(ack) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

// NextEvent returns the next push named event, waiting for it if needed.
func (c *FrameClient) NextEvent(event string) Frame {
	c.t.Helper()
	for i, f := range c.pending {
		if f.Event == event {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}
	for {
		f := c.read()
		if f.Event == event {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *FrameClient) read() Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("reading frame: got %q, error: %v", line, err)
	}
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		c.t.Fatalf("decoding frame %q: %v", line, err)
	}
	return f
}

// Close closes the underlying connection.
func (c *FrameClient) Close() {
	c.conn.Close()
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
