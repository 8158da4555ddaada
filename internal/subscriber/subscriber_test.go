package subscriber

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/wire"
)

type fakeSession struct {
	mu     sync.Mutex
	input  []byte
	cols   uint16
	rows   uint16
	resize int32
}

func (f *fakeSession) SendInput(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, data...)
	return nil
}

func (f *fakeSession) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
	atomic.AddInt32(&f.resize, 1)
	return nil
}

func pipePair(t *testing.T) (*frame.Conn, *frame.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return frame.New(a), frame.New(b)
}

func TestReceiveDispatchesInputAndResize(t *testing.T) {
	server, client := pipePair(t)
	session := &fakeSession{}
	closed := make(chan string, 1)

	sub := New("sub-1", server, session, func(id string) { closed <- id })
	go sub.Receive()

	require.NoError(t, client.Send(wire.WireMessage{
		Type:  wire.TypeInput,
		Input: &wire.InputPayload{Data: "hello"},
	}))
	require.NoError(t, client.Send(wire.WireMessage{
		Type:   wire.TypeResize,
		Resize: &wire.ResizePayload{Cols: 100, Rows: 40},
	}))

	require.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return string(session.input) == "hello" && session.cols == 100 && session.rows == 40
	}, time.Second, 10*time.Millisecond)

	client.Close()
	select {
	case id := <-closed:
		require.Equal(t, "sub-1", id)
	case <-time.After(time.Second):
		t.Fatal("onClose was not invoked after peer close")
	}
}

func TestReceiveIgnoresUnknownMessageTypes(t *testing.T) {
	server, client := pipePair(t)
	session := &fakeSession{}

	sub := New("sub-2", server, session, func(string) {})
	go sub.Receive()

	require.NoError(t, client.Send(wire.WireMessage{Type: wire.TypeResponse}))
	require.NoError(t, client.Send(wire.WireMessage{
		Type:  wire.TypeInput,
		Input: &wire.InputPayload{Data: "x"},
	}))

	require.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return string(session.input) == "x"
	}, time.Second, 10*time.Millisecond)

	sub.Close()
	client.Close()
}

func TestSendSnapshotAndDeltaDeliverOverTheWire(t *testing.T) {
	server, client := pipePair(t)
	session := &fakeSession{}

	sub := New("sub-3", server, session, func(string) {})
	defer sub.Close()

	require.True(t, sub.SendSnapshot(wire.Snapshot{Cols: 10, Rows: 5}))
	require.True(t, sub.SendDelta(wire.Delta{StartY: 0, EndY: 1}))

	msg1, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.TypeSnapshot, msg1.Type)
	snap, ok := msg1.Snapshot()
	require.True(t, ok)
	require.Equal(t, uint16(10), snap.Cols)

	msg2, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.TypeDelta, msg2.Type)
	delta, ok := msg2.Delta()
	require.True(t, ok)
	require.Equal(t, uint16(1), delta.EndY)

	client.Close()
}

func TestEnqueueAfterCloseReturnsFalse(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()
	session := &fakeSession{}

	sub := New("sub-4", server, session, func(string) {})
	sub.Close()

	require.False(t, sub.SendSnapshot(wire.Snapshot{}))
	require.False(t, sub.SendDelta(wire.Delta{}))
}

func TestCloseInvokesOnCloseExactlyOnce(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()
	session := &fakeSession{}

	var calls int32
	sub := New("sub-5", server, session, func(string) { atomic.AddInt32(&calls, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
