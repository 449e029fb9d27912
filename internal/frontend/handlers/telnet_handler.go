package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/cory-johannsen/scrabble/internal/frontend/telnet"
)

// TelnetHandler serves JSON frames, one per line, over telnet connections.
type TelnetHandler struct {
	adapter *Adapter
}

var _ telnet.SessionHandler = (*TelnetHandler)(nil)

// NewTelnetHandler creates a TelnetHandler backed by adapter.
//
// Precondition: adapter must be non-nil.
func NewTelnetHandler(adapter *Adapter) *TelnetHandler {
	return &TelnetHandler{adapter: adapter}
}

// HandleSession runs the frame loop for one telnet connection. Blank lines
// are skipped.
func (h *TelnetHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	return h.adapter.Serve(ctx, lineTransport{conn: conn}, "telnet", conn.RemoteAddr().String(), uuid.Nil)
}

type lineTransport struct {
	conn *telnet.Conn
}

func (t lineTransport) ReadFrame() ([]byte, error) {
	for {
		line, err := t.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line != "" {
			return []byte(line), nil
		}
	}
}

func (t lineTransport) WriteFrame(frame []byte) error {
	return t.conn.WriteLine(string(frame))
}

func (t lineTransport) Close() error {
	return t.conn.Close()
}
