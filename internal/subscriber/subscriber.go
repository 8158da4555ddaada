// Package subscriber implements the per-attached-client adapter (C5): one
// framed connection, a serialized send queue, and a receive loop that
// dispatches input and resize messages to the target session.
package subscriber

import (
	"sync"
	"sync/atomic"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/wire"
)

// sendQueueCapacity bounds how far a subscriber's outbound deltas can lag
// before it is treated as stalled and dropped.
const sendQueueCapacity = 256

// SessionTarget is the subset of a session a subscriber dispatches received
// input/resize messages onto.
type SessionTarget interface {
	SendInput(data []byte) error
	Resize(cols, rows uint16) error
}

// Subscriber owns one framed connection, a send queue drained by a
// dedicated writer goroutine, and the receive loop that the connection's
// single consumer runs.
type Subscriber struct {
	id      string
	conn    *frame.Conn
	session SessionTarget
	onClose func(id string)

	sendQ   chan wire.WireMessage
	stopped chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// New constructs a subscriber around conn. onClose is invoked exactly once
// when the subscriber closes for any reason (send failure, receive
// failure, or an explicit Close call).
func New(id string, conn *frame.Conn, session SessionTarget, onClose func(id string)) *Subscriber {
	s := &Subscriber{
		id:      id,
		conn:    conn,
		session: session,
		onClose: onClose,
		sendQ:   make(chan wire.WireMessage, sendQueueCapacity),
		stopped: make(chan struct{}),
	}
	go s.sendLoop()
	return s
}

// ID returns the subscriber's connection-scoped id.
func (s *Subscriber) ID() string { return s.id }

// SendSnapshot enqueues a snapshot for delivery. It never blocks: a full
// queue or a closed subscriber both report false, matching pane.Subscriber.
func (s *Subscriber) SendSnapshot(snap wire.Snapshot) bool {
	return s.enqueue(wire.NewSnapshotMessage(snap))
}

// SendDelta enqueues a delta for delivery.
func (s *Subscriber) SendDelta(delta wire.Delta) bool {
	return s.enqueue(wire.NewDeltaMessage(delta))
}

func (s *Subscriber) enqueue(msg wire.WireMessage) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.sendQ <- msg:
		return true
	case <-s.stopped:
		return false
	default:
		// Queue full: the client isn't draining fast enough. Drop the
		// subscriber rather than let the session's fan-out block.
		s.Close()
		return false
	}
}

func (s *Subscriber) sendLoop() {
	for {
		select {
		case msg := <-s.sendQ:
			if err := s.conn.SendBinary(msg); err != nil {
				s.Close()
				return
			}
		case <-s.stopped:
			return
		}
	}
}

// Receive runs the subscriber's receive loop until EOF or a read error,
// dispatching input and resize messages to the session and ignoring any
// other message type. The caller must run this from exactly one goroutine.
func (s *Subscriber) Receive() {
	defer s.Close()
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Type {
		case wire.TypeInput:
			if msg.Input != nil {
				_ = s.session.SendInput([]byte(msg.Input.Data))
			}
		case wire.TypeResize:
			if msg.Resize != nil {
				_ = s.session.Resize(msg.Resize.Cols, msg.Resize.Rows)
			}
		default:
			// Unknown types are tolerated for forward-compatibility.
		}
	}
}

// Close closes the connection and stops the send loop, invoking onClose
// exactly once. Idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopped)
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
}
