package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

// EncodeElement renders a frame to its wire bytes.
func EncodeElement(el Element) []byte {
	var buf bytes.Buffer
	encodeElement(&buf, el)
	return buf.Bytes()
}

func encodeElement(buf *bytes.Buffer, el Element) {
	switch e := el.(type) {
	case SimpleString:
		fmt.Fprintf(buf, "+%s\r\n", string(e))

	case BulkString:
		fmt.Fprintf(buf, "$%d\r\n", len(e))
		buf.Write(e)
		buf.WriteString("\r\n")

	case NullBulkString:
		buf.WriteString("$-1\r\n")

	case Integer:
		fmt.Fprintf(buf, ":%d\r\n", int64(e))

	case Error:
		fmt.Fprintf(buf, "-%s\r\n", string(e))

	case Array:
		fmt.Fprintf(buf, "*%d\r\n", len(e))
		for _, sub := range e {
			encodeElement(buf, sub)
		}

	case SnapshotBlob:
		// Framed like a bulk string but with no trailing CRLF. The raw
		// snapshot bytes follow the FULLRESYNC line directly.
		fmt.Fprintf(buf, "$%d\r\n", len(e))
		buf.Write(e)

	case Concatenation:
		for _, sub := range e {
			encodeElement(buf, sub)
		}

	default:
		panic(fmt.Sprintf("protocol: unhandled element type %T", el))
	}
}

// EncodeCommand renders a command as an array of bulk strings. Only the
// outbound bootstrap vocabulary is encodable; a replica never sends anything
// else to its primary.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case Ping:
		parts := []string{"PING"}
		if c.Message != nil {
			parts = append(parts, *c.Message)
		}
		return encodeStringArray(parts), nil

	case Echo:
		return encodeStringArray([]string{"ECHO", c.Message}), nil

	case ReplConf:
		switch opt := c.Option.(type) {
		case ListeningPort:
			return encodeStringArray([]string{"REPLCONF", "listening-port", strconv.Itoa(int(opt))}), nil
		case Capability:
			return encodeStringArray([]string{"REPLCONF", "capa", "psync2"}), nil
		default:
			return nil, fmt.Errorf("unhandled replconf option %T", c.Option)
		}

	case Psync:
		id := "?"
		if c.ReplicationID != nil {
			id = *c.ReplicationID
		}
		offset := "-1"
		if c.Offset != nil {
			offset = strconv.FormatInt(*c.Offset, 10)
		}
		return encodeStringArray([]string{"PSYNC", id, offset}), nil

	default:
		return nil, fmt.Errorf("command %T is not encodable on the outbound path", cmd)
	}
}

func encodeStringArray(parts []string) []byte {
	elements := make(Array, len(parts))
	for i, part := range parts {
		elements[i] = BulkString(part)
	}
	return EncodeElement(elements)
}
