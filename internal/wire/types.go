// Package wire implements the Pane duplex protocol: the JSON control-plane
// message shapes and the compact binary encoding used for high-frequency
// screen traffic, as described in the component design for the wire codec.
package wire

// MessageType discriminates the JSON envelope (WireMessage.Type) and,
// numerically, the leading tag byte of a binary-encoded message.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypeSnapshot MessageType = "snapshot"
	TypeDelta    MessageType = "delta"
	TypeInput    MessageType = "input"
	TypeResize   MessageType = "resize"
)

// Binary message tags. Request/response must never be sent in binary form.
const (
	TagRequest  byte = 0
	TagResponse byte = 1
	TagSnapshot byte = 2
	TagDelta    byte = 3
	TagInput    byte = 4
	TagResize   byte = 5
)

// Frame format tags (the byte following the 4-byte length on every frame).
const (
	FormatJSON   byte = 0
	FormatBinary byte = 1
)

// Request commands.
const (
	CommandPing           = "ping"
	CommandCreateSession  = "createSession"
	CommandListSessions   = "listSessions"
	CommandDestroySession = "destroySession"
	CommandAttachSession  = "attachSession"
)

// WireMessage is the JSON envelope exchanged on the control plane. Exactly
// one of the payload fields is populated, selected by Type.
type WireMessage struct {
	Type     MessageType    `json:"type"`
	Request  *Request       `json:"request,omitempty"`
	Response *Response      `json:"response,omitempty"`
	Input    *InputPayload  `json:"input,omitempty"`
	Resize   *ResizePayload `json:"resize,omitempty"`

	// snapshot and delta are binary-only (§4.1 selection rule) and never
	// appear in the JSON envelope; access them via Snapshot()/Delta().
	snapshot *Snapshot
	delta    *Delta
}

// Request is the body of a type=request message.
type Request struct {
	Command     string   `json:"command"`
	SessionID   string   `json:"sessionID,omitempty"`
	Name        string   `json:"name,omitempty"`
	CommandLine []string `json:"commandLine,omitempty"`
	Cols        uint16   `json:"cols,omitempty"`
	Rows        uint16   `json:"rows,omitempty"`
}

// Response is the body of a type=response message. Every response leaving
// the server carries a populated Server block.
type Response struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message,omitempty"`
	Session  *SessionInfo  `json:"session,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Server   *ServerInfo   `json:"server,omitempty"`
}

// SessionInfo is the JSON-facing description of one session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	IsRunning bool      `json:"isRunning"`
	ProcessID int       `json:"processID,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
}

// ServerInfo identifies the responding server; it decorates every response.
type ServerInfo struct {
	PID        int       `json:"pid"`
	StartedAt  Timestamp `json:"startedAt"`
	SocketPath string    `json:"socketPath"`
}

// InputPayload is the body of a type=input message (JSON form). Binary
// input carries the same bytes with a u32 length prefix instead.
type InputPayload struct {
	Data string `json:"data"`
}

// ResizePayload is the body of a type=resize message (JSON form).
type ResizePayload struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ColorVariant selects which fields of Color are meaningful.
type ColorVariant uint8

const (
	ColorDefault         ColorVariant = 0
	ColorDefaultInverted ColorVariant = 1
	ColorANSI            ColorVariant = 2
	ColorTrueColor        ColorVariant = 3
)

// Color is a tagged value; only the fields matching Variant are meaningful.
type Color struct {
	Variant ColorVariant `json:"variant"`
	Index   uint8        `json:"index,omitempty"`
	R       uint8        `json:"r,omitempty"`
	G       uint8        `json:"g,omitempty"`
	B       uint8        `json:"b,omitempty"`
}

// DefaultColor and DefaultInvertedColor are the two default-variant colors.
var (
	DefaultColor         = Color{Variant: ColorDefault}
	DefaultInvertedColor = Color{Variant: ColorDefaultInverted}
)

// AnsiColor constructs an ansi(index) color.
func AnsiColor(index uint8) Color {
	return Color{Variant: ColorANSI, Index: index}
}

// TrueColor constructs a trueColor(r,g,b) color.
func TrueColor(r, g, b uint8) Color {
	return Color{Variant: ColorTrueColor, R: r, G: g, B: b}
}

// Style is a bitmask over the glyph attributes. Bits 1/2/4/8/32 are
// contractually fixed by the wire format; decoders must tolerate unknown
// bits (the remaining bits here are this implementation's choice, not part
// of the wire contract).
type Style uint8

const (
	StyleBold       Style = 1
	StyleUnderline  Style = 2
	StyleBlink      Style = 4
	StyleInvert     Style = 8
	StyleItalic     Style = 16
	StyleDim        Style = 32
	StyleCrossedOut Style = 64
	StyleInvisible  Style = 128
)

// Attribute is the per-cell styling: two colors, a style bitmask, and an
// optional underline color.
type Attribute struct {
	Foreground     Color `json:"foreground"`
	Background     Color `json:"background"`
	Style          Style `json:"style"`
	UnderlineColor *Color `json:"underlineColor,omitempty"`
}

// Cell is one screen position: a displayed grapheme, its east-asian width
// (0, 1, or 2 cells), and its attribute.
type Cell struct {
	Char      string    `json:"char"`
	Width     int8      `json:"width"`
	Attribute Attribute `json:"attribute"`
}

// Snapshot is a full-screen capture, sent once at attach.
type Snapshot struct {
	Cols        uint16   `json:"cols"`
	Rows        uint16   `json:"rows"`
	CursorX     uint16   `json:"cursorX"`
	CursorY     uint16   `json:"cursorY"`
	IsAlternate bool     `json:"isAlternate"`
	Lines       [][]Cell `json:"lines"`
}

// Delta is a contiguous run of changed rows, inclusive of both ends.
type Delta struct {
	StartY  uint16   `json:"startY"`
	EndY    uint16   `json:"endY"`
	CursorX uint16   `json:"cursorX"`
	CursorY uint16   `json:"cursorY"`
	Lines   [][]Cell `json:"lines"`
}
