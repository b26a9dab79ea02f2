package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame (tag + payload). A length prefix
// beyond this is treated as a framing error, which callers surface as a
// connection loss rather than attempting to resynchronize.
const MaxFrameSize = 64 << 20 // 64 MiB

// headerSize is the length prefix plus the type tag.
const headerSize = 5

// EncodeFrame serializes msg into a complete wire frame.
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	if 1+len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("encode %s: frame exceeds %d bytes", msg.Kind(), MaxFrameSize)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = byte(msg.Kind())
	copy(buf[headerSize:], payload)
	return buf, nil
}

// WriteFrame writes one framed message to w.
func WriteFrame(w io.Writer, msg Message) error {
	buf, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame from r and returns its tag and raw payload.
// A zero or oversized length prefix is a framing error.
func ReadFrame(r io.Reader) (Type, []byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameSize {
		return 0, nil, fmt.Errorf("invalid frame length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return Type(body[0]), body[1:], nil
}

// ReadMessage reads and decodes one complete message from r.
func ReadMessage(r io.Reader) (Message, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(tag, payload)
}
