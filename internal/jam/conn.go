package jam

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
)

const (
	// How long a silent connection is left alone before a probe goes out,
	// and how long before the reader gives up without a pong.
	pingInterval = 30 * time.Second
	readWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// participant is one live connection inside a jam. The name, join time
// and heartbeat fields are guarded by the owning session's mutex; the
// write mutex only serializes frames on the underlying socket.
type participant struct {
	conn          *websocket.Conn
	name          string
	joinedAt      time.Time
	lastHeartbeat time.Time

	writeMu sync.Mutex
}

// sendCompressed marshals v to JSON, zlib-compresses it and writes it as
// a single binary frame. Clients inflate before parsing.
func (p *participant) sendCompressed(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

// ping probes a silent peer. WriteControl is safe to call concurrently
// with WriteMessage, so this does not take the write mutex.
func (p *participant) ping() error {
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// closeWith sends a close frame with the given code and reason, then
// drops the connection.
func (p *participant) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = p.conn.Close()
}

// closeConn rejects a connection that never became a participant.
func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
