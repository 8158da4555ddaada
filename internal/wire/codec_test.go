package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleCell(char string) Cell {
	return Cell{
		Char:  char,
		Width: 1,
		Attribute: Attribute{
			Foreground: AnsiColor(3),
			Background: DefaultColor,
			Style:      StyleBold | StyleUnderline,
		},
	}
}

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	snap := Snapshot{
		Cols:        3,
		Rows:        2,
		CursorX:     1,
		CursorY:     0,
		IsAlternate: false,
		Lines: [][]Cell{
			{sampleCell("a"), sampleCell("b"), sampleCell(" ")},
			{sampleCell("日"), {Char: "", Width: 0, Attribute: Attribute{}}, sampleCell("c")},
		},
	}
	encoded, err := EncodeBinary(NewSnapshotMessage(snap))
	require.NoError(t, err)

	decoded, err := DecodeBinary(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeSnapshot, decoded.Type)

	got, ok := decoded.Snapshot()
	require.True(t, ok)
	require.Equal(t, snap, got)
}

func TestDeltaBinaryRoundTrip(t *testing.T) {
	delta := Delta{
		StartY:  2,
		EndY:    2,
		CursorX: 5,
		CursorY: 2,
		Lines: [][]Cell{
			{sampleCell("x")},
		},
	}
	encoded, err := EncodeBinary(NewDeltaMessage(delta))
	require.NoError(t, err)

	decoded, err := DecodeBinary(encoded)
	require.NoError(t, err)
	got, ok := decoded.Delta()
	require.True(t, ok)
	require.Equal(t, delta, got)
}

func TestInputBinaryRoundTrip(t *testing.T) {
	msg := WireMessage{Type: TypeInput, Input: &InputPayload{Data: "ls -la\r"}}
	encoded, err := EncodeBinary(msg)
	require.NoError(t, err)
	require.Equal(t, TagInput, encoded[0])

	decoded, err := DecodeBinary(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.Input.Data, decoded.Input.Data)
}

func TestResizeBinaryRoundTrip(t *testing.T) {
	msg := WireMessage{Type: TypeResize, Resize: &ResizePayload{Cols: 100, Rows: 30}}
	encoded, err := EncodeBinary(msg)
	require.NoError(t, err)

	decoded, err := DecodeBinary(encoded)
	require.NoError(t, err)
	require.Equal(t, uint16(100), decoded.Resize.Cols)
	require.Equal(t, uint16(30), decoded.Resize.Rows)
}

func TestDecodeBinaryShortBufferIsUnexpectedEnd(t *testing.T) {
	_, err := DecodeBinary([]byte{TagResize, 0x00})
	require.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestDecodeBinaryUnknownTagIsInvalidTag(t *testing.T) {
	_, err := DecodeBinary([]byte{0xFF})
	require.ErrorIs(t, err, ErrInvalidTag)
}

func TestRequestResponseJSONRoundTrip(t *testing.T) {
	original := WireMessage{
		Type: TypeRequest,
		Request: &Request{
			Command:   CommandAttachSession,
			SessionID: "abc-123",
			Cols:      80,
			Rows:      24,
		},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded WireMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original.Type, decoded.Type)
	require.Equal(t, *original.Request, *decoded.Request)
}

func TestResponseJSONRoundTripWithServerInfo(t *testing.T) {
	original := WireMessage{
		Type: TypeResponse,
		Response: &Response{
			OK:      true,
			Message: "pong",
			Server: &ServerInfo{
				PID:        1234,
				StartedAt:  TimestampNow(),
				SocketPath: "/tmp/pane-0/default",
			},
		},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded WireMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, *original.Response, *decoded.Response)
}

func TestEncodeCellRejectsInvalidUTF8(t *testing.T) {
	msg := NewSnapshotMessage(Snapshot{
		Cols: 1,
		Rows: 1,
		Lines: [][]Cell{
			{{Char: string([]byte{0xff, 0xfe}), Width: 1}},
		},
	})
	_, err := EncodeBinary(msg)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}
