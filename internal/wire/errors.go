package wire

import "errors"

// Protocol error kinds (§7): codec failures that are fatal to the
// connection and never retried.
var (
	ErrUnexpectedEnd = errors.New("wire: unexpected end of buffer")
	ErrInvalidTag    = errors.New("wire: invalid message tag")
	ErrInvalidUTF8   = errors.New("wire: invalid utf-8 in string field")
)
