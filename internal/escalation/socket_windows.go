//go:build windows

package escalation

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const maxFrameBytes = 8 << 20

// Conn frames JSON messages over a named pipe. Windows has no SCM_RIGHTS;
// escalated stdio is wired through per-request pipe names instead, so the
// fd-passing entry points refuse rather than pretend.
type Conn struct {
	nc net.Conn
}

// NewPipeConn wraps an established named-pipe connection.
func NewPipeConn(nc net.Conn) *Conn { return &Conn{nc: nc} }

// wrapConn adapts a connection accepted from Listen.
func wrapConn(nc net.Conn) *Conn { return &Conn{nc: nc} }

// Dial connects to the escalate pipe at addr within the given timeout.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	nc, err := winio.DialPipe(addr, &timeout)
	if err != nil {
		return nil, fmt.Errorf("escalation: dial %s: %w", addr, err)
	}
	return &Conn{nc: nc}, nil
}

// Listen creates the per-session escalate pipe at path.
func Listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

// SetDeadline bounds all pending and future I/O on the connection.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// Close closes the underlying pipe.
func (c *Conn) Close() error { return c.nc.Close() }

// Send writes one framed JSON message.
func (c *Conn) Send(v any) error {
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
	if _, err := c.nc.Write(frame); err != nil {
		return fmt.Errorf("escalation: write message: %w", err)
	}
	return nil
}

// SendWithFDs is unsupported on Windows.
func (c *Conn) SendWithFDs(v any, fds []int) error {
	return fmt.Errorf("escalation: fd passing is not supported on windows")
}

// Receive reads one framed JSON message into v.
func (c *Conn) Receive(v any) error {
	header := make([]byte, 4)
	if err := readFull(c.nc, header); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxFrameBytes {
		return fmt.Errorf("escalation: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if err := readFull(c.nc, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("escalation: decode message: %w", err)
	}
	return nil
}

// ReceiveWithFDs is unsupported on Windows.
func (c *Conn) ReceiveWithFDs(v any) ([]int, error) {
	return nil, fmt.Errorf("escalation: fd passing is not supported on windows")
}

func readFull(nc net.Conn, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := nc.Read(buf[read:])
		if err != nil {
			return fmt.Errorf("escalation: read message: %w", err)
		}
		read += n
	}
	return nil
}
