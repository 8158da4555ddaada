package frame

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/migueldeicaza/Pane/internal/wire"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return New(a), New(b)
}

func TestSendReceiveJSON(t *testing.T) {
	client, server := pipePair(t)

	msg := wire.WireMessage{Type: wire.TypeRequest, Request: &wire.Request{Command: wire.CommandPing}}
	done := make(chan error, 1)
	go func() { done <- client.Send(msg) }()

	got, err := server.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, wire.TypeRequest, got.Type)
	require.Equal(t, wire.CommandPing, got.Request.Command)
}

func TestSendReceiveBinary(t *testing.T) {
	client, server := pipePair(t)

	msg := wire.WireMessage{Type: wire.TypeResize, Resize: &wire.ResizePayload{Cols: 80, Rows: 24}}
	done := make(chan error, 1)
	go func() { done <- client.SendBinary(msg) }()

	got, err := server.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, uint16(80), got.Resize.Cols)
}

func TestFramingPreservesOrderAcrossNFrames(t *testing.T) {
	client, server := pipePair(t)

	const n = 20
	go func() {
		for i := 0; i < n; i++ {
			_ = client.Send(wire.WireMessage{Type: wire.TypeRequest, Request: &wire.Request{Command: wire.CommandPing, SessionID: string(rune('a' + i))}})
		}
	}()

	for i := 0; i < n; i++ {
		got, err := server.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, string(rune('a'+i)), got.Request.SessionID)
	}
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	client, server := pipePair(t)

	const perWriter = 25
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			_ = client.Send(wire.WireMessage{Type: wire.TypeRequest, Request: &wire.Request{Command: wire.CommandPing, Name: "writer-a"}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			_ = client.Send(wire.WireMessage{Type: wire.TypeRequest, Request: &wire.Request{Command: wire.CommandPing, Name: "writer-b"}})
		}
	}()

	counts := map[string]int{}
	for i := 0; i < perWriter*2; i++ {
		got, err := server.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, wire.CommandPing, got.Request.Command)
		counts[got.Request.Name]++
	}
	wg.Wait()
	require.Equal(t, perWriter, counts["writer-a"])
	require.Equal(t, perWriter, counts["writer-b"])
}

func TestReadMessageReturnsEOFOnClose(t *testing.T) {
	client, server := pipePair(t)
	require.NoError(t, client.Close())

	_, err := server.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, _ := pipePair(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
