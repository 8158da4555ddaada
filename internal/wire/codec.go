package wire

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

// EncodeBinary encodes msg's payload (selected by msg.Type) as a binary
// message: a one-byte tag followed by the type's body. Request and
// response messages cannot be encoded this way.
func EncodeBinary(msg WireMessage) ([]byte, error) {
	var buf bytes.Buffer
	switch msg.Type {
	case TypeSnapshot:
		buf.WriteByte(TagSnapshot)
		if msg.snapshot == nil {
			return nil, ErrInvalidTag
		}
		if err := encodeSnapshotBody(&buf, *msg.snapshot); err != nil {
			return nil, err
		}
	case TypeDelta:
		buf.WriteByte(TagDelta)
		if msg.delta == nil {
			return nil, ErrInvalidTag
		}
		if err := encodeDeltaBody(&buf, *msg.delta); err != nil {
			return nil, err
		}
	case TypeInput:
		buf.WriteByte(TagInput)
		if msg.Input == nil {
			return nil, ErrInvalidTag
		}
		encodeInputBody(&buf, []byte(msg.Input.Data))
	case TypeResize:
		buf.WriteByte(TagResize)
		if msg.Resize == nil {
			return nil, ErrInvalidTag
		}
		encodeResizeBody(&buf, msg.Resize.Cols, msg.Resize.Rows)
	default:
		return nil, ErrInvalidTag
	}
	return buf.Bytes(), nil
}

// DecodeBinary parses a binary message (tag byte plus body) into a
// WireMessage with the appropriate payload populated.
func DecodeBinary(data []byte) (WireMessage, error) {
	r := &reader{buf: data}
	tag, err := r.readU8()
	if err != nil {
		return WireMessage{}, err
	}
	switch tag {
	case TagSnapshot:
		snap, err := decodeSnapshotBody(r)
		if err != nil {
			return WireMessage{}, err
		}
		return WireMessage{Type: TypeSnapshot, snapshot: &snap}, nil
	case TagDelta:
		delta, err := decodeDeltaBody(r)
		if err != nil {
			return WireMessage{}, err
		}
		return WireMessage{Type: TypeDelta, delta: &delta}, nil
	case TagInput:
		data, err := decodeInputBody(r)
		if err != nil {
			return WireMessage{}, err
		}
		return WireMessage{Type: TypeInput, Input: &InputPayload{Data: string(data)}}, nil
	case TagResize:
		cols, rows, err := decodeResizeBody(r)
		if err != nil {
			return WireMessage{}, err
		}
		return WireMessage{Type: TypeResize, Resize: &ResizePayload{Cols: cols, Rows: rows}}, nil
	default:
		return WireMessage{}, ErrInvalidTag
	}
}

// Snapshot/Delta accessors. The JSON struct tags on WireMessage cover only
// the request/response/input/resize fields (§4.1 selection rule: snapshot
// and delta never travel as JSON), so these live behind unexported fields
// populated exclusively by the binary codec.
func (m WireMessage) Snapshot() (Snapshot, bool) {
	if m.snapshot == nil {
		return Snapshot{}, false
	}
	return *m.snapshot, true
}

func (m WireMessage) Delta() (Delta, bool) {
	if m.delta == nil {
		return Delta{}, false
	}
	return *m.delta, true
}

// NewSnapshotMessage builds a binary-only snapshot WireMessage.
func NewSnapshotMessage(s Snapshot) WireMessage {
	return WireMessage{Type: TypeSnapshot, snapshot: &s}
}

// NewDeltaMessage builds a binary-only delta WireMessage.
func NewDeltaMessage(d Delta) WireMessage {
	return WireMessage{Type: TypeDelta, delta: &d}
}

func encodeSnapshotBody(buf *bytes.Buffer, s Snapshot) error {
	writeU16(buf, s.Cols)
	writeU16(buf, s.Rows)
	writeU16(buf, s.CursorX)
	writeU16(buf, s.CursorY)
	writeBool(buf, s.IsAlternate)
	writeU16(buf, uint16(len(s.Lines)))
	for _, row := range s.Lines {
		if err := encodeRow(buf, row); err != nil {
			return err
		}
	}
	return nil
}

func decodeSnapshotBody(r *reader) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Cols, err = r.readU16(); err != nil {
		return s, err
	}
	if s.Rows, err = r.readU16(); err != nil {
		return s, err
	}
	if s.CursorX, err = r.readU16(); err != nil {
		return s, err
	}
	if s.CursorY, err = r.readU16(); err != nil {
		return s, err
	}
	isAlt, err := r.readU8()
	if err != nil {
		return s, err
	}
	s.IsAlternate = isAlt != 0
	lineCount, err := r.readU16()
	if err != nil {
		return s, err
	}
	s.Lines = make([][]Cell, lineCount)
	for i := range s.Lines {
		row, err := decodeRow(r)
		if err != nil {
			return s, err
		}
		s.Lines[i] = row
	}
	return s, nil
}

func encodeDeltaBody(buf *bytes.Buffer, d Delta) error {
	writeU16(buf, d.StartY)
	writeU16(buf, d.EndY)
	writeU16(buf, d.CursorX)
	writeU16(buf, d.CursorY)
	writeU16(buf, uint16(len(d.Lines)))
	for _, row := range d.Lines {
		if err := encodeRow(buf, row); err != nil {
			return err
		}
	}
	return nil
}

func decodeDeltaBody(r *reader) (Delta, error) {
	var d Delta
	var err error
	if d.StartY, err = r.readU16(); err != nil {
		return d, err
	}
	if d.EndY, err = r.readU16(); err != nil {
		return d, err
	}
	if d.CursorX, err = r.readU16(); err != nil {
		return d, err
	}
	if d.CursorY, err = r.readU16(); err != nil {
		return d, err
	}
	lineCount, err := r.readU16()
	if err != nil {
		return d, err
	}
	d.Lines = make([][]Cell, lineCount)
	for i := range d.Lines {
		row, err := decodeRow(r)
		if err != nil {
			return d, err
		}
		d.Lines[i] = row
	}
	return d, nil
}

func encodeInputBody(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func decodeInputBody(r *reader) ([]byte, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return r.readBytes(int(n))
}

func encodeResizeBody(buf *bytes.Buffer, cols, rows uint16) {
	writeU16(buf, cols)
	writeU16(buf, rows)
}

func decodeResizeBody(r *reader) (cols, rows uint16, err error) {
	if cols, err = r.readU16(); err != nil {
		return 0, 0, err
	}
	if rows, err = r.readU16(); err != nil {
		return 0, 0, err
	}
	return cols, rows, nil
}

func encodeRow(buf *bytes.Buffer, row []Cell) error {
	writeU16(buf, uint16(len(row)))
	for _, cell := range row {
		if err := encodeCell(buf, cell); err != nil {
			return err
		}
	}
	return nil
}

func decodeRow(r *reader) ([]Cell, error) {
	cellCount, err := r.readU16()
	if err != nil {
		return nil, err
	}
	row := make([]Cell, cellCount)
	for i := range row {
		cell, err := decodeCell(r)
		if err != nil {
			return nil, err
		}
		row[i] = cell
	}
	return row, nil
}

func encodeCell(buf *bytes.Buffer, cell Cell) error {
	if !utf8.ValidString(cell.Char) {
		return ErrInvalidUTF8
	}
	charBytes := []byte(cell.Char)
	if len(charBytes) > 255 {
		return ErrInvalidUTF8
	}
	buf.WriteByte(byte(len(charBytes)))
	buf.Write(charBytes)
	buf.WriteByte(byte(int8(cell.Width)))
	return encodeAttribute(buf, cell.Attribute)
}

func decodeCell(r *reader) (Cell, error) {
	charLen, err := r.readU8()
	if err != nil {
		return Cell{}, err
	}
	charBytes, err := r.readBytes(int(charLen))
	if err != nil {
		return Cell{}, err
	}
	if !utf8.Valid(charBytes) {
		return Cell{}, ErrInvalidUTF8
	}
	widthByte, err := r.readU8()
	if err != nil {
		return Cell{}, err
	}
	attr, err := decodeAttribute(r)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Char: string(charBytes), Width: int8(widthByte), Attribute: attr}, nil
}

func encodeAttribute(buf *bytes.Buffer, attr Attribute) error {
	if err := encodeColor(buf, attr.Foreground); err != nil {
		return err
	}
	if err := encodeColor(buf, attr.Background); err != nil {
		return err
	}
	buf.WriteByte(byte(attr.Style))
	if attr.UnderlineColor != nil {
		buf.WriteByte(1)
		return encodeColor(buf, *attr.UnderlineColor)
	}
	buf.WriteByte(0)
	return nil
}

func decodeAttribute(r *reader) (Attribute, error) {
	var attr Attribute
	var err error
	if attr.Foreground, err = decodeColor(r); err != nil {
		return attr, err
	}
	if attr.Background, err = decodeColor(r); err != nil {
		return attr, err
	}
	styleByte, err := r.readU8()
	if err != nil {
		return attr, err
	}
	attr.Style = Style(styleByte)
	hasUnderline, err := r.readU8()
	if err != nil {
		return attr, err
	}
	if hasUnderline != 0 {
		color, err := decodeColor(r)
		if err != nil {
			return attr, err
		}
		attr.UnderlineColor = &color
	}
	return attr, nil
}

func encodeColor(buf *bytes.Buffer, c Color) error {
	buf.WriteByte(byte(c.Variant))
	switch c.Variant {
	case ColorDefault, ColorDefaultInverted:
	case ColorANSI:
		buf.WriteByte(c.Index)
	case ColorTrueColor:
		buf.WriteByte(c.R)
		buf.WriteByte(c.G)
		buf.WriteByte(c.B)
	default:
		return ErrInvalidTag
	}
	return nil
}

func decodeColor(r *reader) (Color, error) {
	variant, err := r.readU8()
	if err != nil {
		return Color{}, err
	}
	switch ColorVariant(variant) {
	case ColorDefault, ColorDefaultInverted:
		return Color{Variant: ColorVariant(variant)}, nil
	case ColorANSI:
		idx, err := r.readU8()
		if err != nil {
			return Color{}, err
		}
		return AnsiColor(idx), nil
	case ColorTrueColor:
		rb, err := r.readU8()
		if err != nil {
			return Color{}, err
		}
		gb, err := r.readU8()
		if err != nil {
			return Color{}, err
		}
		bb, err := r.readU8()
		if err != nil {
			return Color{}, err
		}
		return TrueColor(rb, gb, bb), nil
	default:
		return Color{}, ErrInvalidTag
	}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
		return
	}
	buf.WriteByte(0)
}

// reader is a cursor over an in-memory binary message body. Every read
// checks bounds up front so a short buffer never partial-applies state.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) readU8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrUnexpectedEnd
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) readU16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, ErrUnexpectedEnd
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) readU32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrUnexpectedEnd
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrUnexpectedEnd
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return append([]byte(nil), v...), nil
}
