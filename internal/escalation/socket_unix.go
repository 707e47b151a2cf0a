//go:build !windows

package escalation

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// maxFrameBytes bounds a single protocol message. An oversized frame is a
// protocol error, which the caller treats as deny.
const maxFrameBytes = 8 << 20

// Conn frames JSON messages over a Unix stream socket with optional file
// descriptor passing via SCM_RIGHTS. Each frame is a 4-byte big-endian
// length followed by the JSON payload.
type Conn struct {
	uc *net.UnixConn
}

// NewConn wraps an established Unix socket connection.
func NewConn(uc *net.UnixConn) *Conn { return &Conn{uc: uc} }

// wrapConn adapts a connection accepted from Listen. The listener is always
// a Unix socket here, so the assertion cannot fail in practice.
func wrapConn(nc net.Conn) *Conn {
	return &Conn{uc: nc.(*net.UnixConn)}
}

// Dial connects to the escalate socket at addr within the given timeout.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("unix", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("escalation: dial %s: %w", addr, err)
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		nc.Close()
		return nil, fmt.Errorf("escalation: unexpected connection type %T", nc)
	}
	return &Conn{uc: uc}, nil
}

// Listen creates the per-session escalate socket at path.
func Listen(path string) (net.Listener, error) {
	return net.Listen("unix", path)
}

// SetDeadline bounds all pending and future I/O on the connection.
func (c *Conn) SetDeadline(t time.Time) error { return c.uc.SetDeadline(t) }

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.uc.Close() }

// Send writes one framed JSON message.
func (c *Conn) Send(v any) error {
	return c.sendFrame(v, nil)
}

// SendWithFDs writes one framed JSON message with file descriptors attached
// to the first segment via SCM_RIGHTS.
func (c *Conn) SendWithFDs(v any, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	return c.sendFrame(v, oob)
}

func (c *Conn) sendFrame(v any, oob []byte) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("escalation: encode message: %w", err)
	}
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("escalation: message of %d bytes exceeds frame limit", len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if oob == nil {
		_, err = c.uc.Write(frame)
	} else {
		_, _, err = c.uc.WriteMsgUnix(frame, oob, nil)
	}
	if err != nil {
		return fmt.Errorf("escalation: write message: %w", err)
	}
	return nil
}

// Receive reads one framed JSON message into v.
func (c *Conn) Receive(v any) error {
	_, err := c.receiveFrame(v, false)
	return err
}

// ReceiveWithFDs reads one framed JSON message into v and returns any file
// descriptors that rode along in control messages. The caller owns the
// returned descriptors.
func (c *Conn) ReceiveWithFDs(v any) ([]int, error) {
	return c.receiveFrame(v, true)
}

func (c *Conn) receiveFrame(v any, wantFDs bool) ([]int, error) {
	var oob []byte
	header := make([]byte, 4)
	if err := c.readFull(header, &oob); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxFrameBytes {
		return nil, fmt.Errorf("escalation: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if err := c.readFull(payload, &oob); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("escalation: decode message: %w", err)
	}
	fds, err := parseRights(oob)
	if err != nil {
		return nil, err
	}
	if !wantFDs && len(fds) > 0 {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, fmt.Errorf("escalation: unexpected file descriptors in message")
	}
	return fds, nil
}

// readFull fills buf, accumulating any SCM_RIGHTS control data seen along
// the way into *oob.
func (c *Conn) readFull(buf []byte, oob *[]byte) error {
	read := 0
	oobBuf := make([]byte, 128)
	for read < len(buf) {
		n, oobn, _, _, err := c.uc.ReadMsgUnix(buf[read:], oobBuf)
		if err != nil {
			return fmt.Errorf("escalation: read message: %w", err)
		}
		if n == 0 && oobn == 0 {
			return fmt.Errorf("escalation: connection closed mid-message")
		}
		read += n
		*oob = append(*oob, oobBuf[:oobn]...)
	}
	return nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("escalation: parse control message: %w", err)
	}
	var fds []int
	for _, msg := range msgs {
		got, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}
