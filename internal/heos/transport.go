package heos

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the fixed CLI port every HEOS device listens on.
const DefaultPort = 1255

// maxFrameBytes bounds buffering of a single frame. Real frames top out
// around tens of KB (large browse results); anything past this limit means
// the stream is corrupt and the connection must go.
const maxFrameBytes = 1 << 20

// transport owns one TCP connection and frames the byte stream into CRLF
// delimited messages. It is single-reader: only the session's read loop calls
// readFrame. Sends may come from any goroutine. Closing the transport
// unblocks a blocked readFrame with an error.
type transport struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// dialTransport opens the TCP stream to the device endpoint. A bare host gets
// the default CLI port appended.
func dialTransport(ctx context.Context, endpoint string, timeout time.Duration) (*transport, error) {
	addr := endpoint
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Endpoint: addr, Err: err}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetKeepAlive(true)
		tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	return &transport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 16*1024),
	}, nil
}

// send writes one already-encoded frame. Concurrent senders are serialized so
// frames never interleave on the wire.
func (t *transport) send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.conn.Write(frame); err != nil {
		return err
	}
	return nil
}

// readFrame blocks until one full CRLF-terminated frame is available and
// returns it without the terminator. A frame exceeding maxFrameBytes is a
// protocol error; the caller is expected to drop the connection. Returns the
// connection error once the stream ends.
func (t *transport) readFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			frame = append(frame, chunk...)
			if len(frame) > maxFrameBytes {
				return nil, &ProtocolError{Reason: "frame exceeds " + strconv.Itoa(maxFrameBytes) + " bytes"}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		frame = append(frame, chunk...)
		if len(frame) > maxFrameBytes {
			return nil, &ProtocolError{Reason: "frame exceeds " + strconv.Itoa(maxFrameBytes) + " bytes"}
		}
		return bytes.TrimRight(frame, "\r\n"), nil
	}
}

// close shuts the connection down. Safe to call from any goroutine and more
// than once; the read loop wakes up with an error either way.
func (t *transport) close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *transport) remoteAddr() string {
	return t.conn.RemoteAddr().String()
}
