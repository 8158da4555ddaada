// Package frame implements the length-prefixed duplex framing (§4.2) that
// every Pane connection speaks: a 4-byte big-endian length, a 1-byte format
// tag, then length-1 bytes of payload in either JSON or the compact binary
// encoding from internal/wire.
package frame

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/migueldeicaza/Pane/internal/wire"
)

const headerLength = 4

// maxFrameLength bounds a single frame's payload so a corrupt or hostile
// peer cannot force an unbounded allocation from the length prefix.
const maxFrameLength = 64 * 1024 * 1024

// Conn wraps one byte-stream connection (typically a unix socket) with the
// framing contract: serialized writes, single-consumer reads, idempotent
// close.
type Conn struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New wraps rw in a framed connection.
func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw, r: bufio.NewReader(rw)}
}

// Send writes msg as a JSON frame.
func (c *Conn) Send(msg wire.WireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("frame: marshal json: %w", err)
	}
	return c.writeFrame(wire.FormatJSON, payload)
}

// SendBinary writes msg as a binary frame (snapshot, delta, input, or
// resize only).
func (c *Conn) SendBinary(msg wire.WireMessage) error {
	payload, err := wire.EncodeBinary(msg)
	if err != nil {
		return fmt.Errorf("frame: encode binary: %w", err)
	}
	return c.writeFrame(wire.FormatBinary, payload)
}

// writeFrame serializes writes per connection: the whole frame is built in
// one buffer and written with a single underlying Write call while holding
// writeMu, so concurrent senders never interleave bytes.
func (c *Conn) writeFrame(formatTag byte, payload []byte) error {
	frame := make([]byte, headerLength+1+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)+1))
	frame[headerLength] = formatTag
	copy(frame[headerLength+1:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rw.Write(frame); err != nil {
		return fmt.Errorf("frame: write: %w", err)
	}
	return nil
}

// ReadMessage reads and decodes the next frame. It is single-consumer: the
// caller must call it from exactly one goroutine. It returns io.EOF on
// clean connection close.
func (c *Conn) ReadMessage() (wire.WireMessage, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return wire.WireMessage{}, io.EOF
		}
		return wire.WireMessage{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return wire.WireMessage{}, fmt.Errorf("frame: %w", wire.ErrUnexpectedEnd)
	}
	if length > maxFrameLength {
		return wire.WireMessage{}, fmt.Errorf("frame: frame of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return wire.WireMessage{}, io.ErrUnexpectedEOF
		}
		return wire.WireMessage{}, err
	}

	formatTag := body[0]
	payload := body[1:]
	switch formatTag {
	case wire.FormatJSON:
		var msg wire.WireMessage
		if len(payload) == 0 {
			return msg, nil
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return wire.WireMessage{}, fmt.Errorf("frame: unmarshal json: %w", err)
		}
		return msg, nil
	case wire.FormatBinary:
		msg, err := wire.DecodeBinary(payload)
		if err != nil {
			return wire.WireMessage{}, err
		}
		return msg, nil
	default:
		return wire.WireMessage{}, wire.ErrInvalidTag
	}
}

// Close closes the underlying connection. It is idempotent; after Close,
// Send/SendBinary fail and ReadMessage returns an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}
