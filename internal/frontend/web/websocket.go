package web

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// maxFrameSize bounds a single inbound websocket frame.
const maxFrameSize = 64 * 1024

// wsTransport carries one frame per websocket text message. Writes from the
// outbox pump and control-frame replies from the reader share one lock so
// frames never interleave on the wire.
type wsTransport struct {
	conn net.Conn
	mu   sync.Mutex
}

func newWSTransport(conn net.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	rd := wsutil.Reader{
		Source:         t.conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		MaxFrameSize:   maxFrameSize,
		OnIntermediate: t.control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := t.control(hdr, &rd); err != nil {
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					return nil, io.EOF
				}
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&rd)
	}
}

// control answers pings and close frames. A close frame yields a
// wsutil.ClosedError.
func (t *wsTransport) control(hdr ws.Header, r io.Reader) error {
	var buf bytes.Buffer
	err := wsutil.ControlFrameHandler(&buf, ws.StateServerSide)(hdr, r)
	if buf.Len() > 0 {
		t.mu.Lock()
		_, werr := t.conn.Write(buf.Bytes())
		t.mu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wsutil.WriteServerText(t.conn, frame)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
