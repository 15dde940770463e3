package protocol

// Element is a single frame of the wire protocol. Exactly one concrete type
// exists per frame variant; consumers dispatch with a type switch.
type Element interface {
	element()
}

// SimpleString is a single-line status reply: +<text>\r\n
type SimpleString string

// BulkString is a length-prefixed opaque byte payload: $<len>\r\n<bytes>\r\n
type BulkString []byte

// NullBulkString is the absence sentinel: $-1\r\n
type NullBulkString struct{}

// Integer is a signed numeric reply: :<n>\r\n
type Integer int64

// Error is an error reply: -<text>\r\n
type Error string

// Array is an ordered sequence of sub-elements: *<count>\r\n<elements...>
type Array []Element

// SnapshotBlob is the initial replica snapshot frame. It is framed like a
// bulk string but carries no trailing CRLF. Never produced by the
// client-facing decoder.
type SnapshotBlob []byte

// Concatenation directs the encoder to emit the contained frames
// back-to-back with no additional framing. Encoder-only; it must never
// appear as decoder output.
type Concatenation []Element

func (SimpleString) element()   {}
func (BulkString) element()     {}
func (NullBulkString) element() {}
func (Integer) element()        {}
func (Error) element()          {}
func (Array) element()          {}
func (SnapshotBlob) element()   {}
func (Concatenation) element()  {}
