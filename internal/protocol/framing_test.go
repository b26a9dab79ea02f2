package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
	}{
		{
			name: "pairing request",
			msg:  &PairingRequest{ClientID: "c-1", ClientName: "laptop", Pin: "042917"},
		},
		{
			name: "full screen frame",
			msg: &ScreenFrame{
				ID:        7,
				Timestamp: time.Unix(1700000000, 250000000).UTC(),
				Data:      []byte{0x00, 0x01, 0xFE, 0xFF},
				Width:     2,
				Height:    1,
				Format:    FormatRaw,
			},
		},
		{
			name: "delta screen frame",
			msg: &ScreenFrame{
				ID:          8,
				Timestamp:   time.Unix(1700000001, 16666667).UTC(),
				IsDelta:     true,
				ReferenceID: 7,
				Data:        []byte{1, 2, 3, 4},
				Width:       64,
				Height:      64,
				Format:      FormatRaw,
				Regions: []DeltaRegion{
					{X: 0, Y: 0, Width: 1, Height: 1, Offset: 0, Length: 4},
				},
			},
		},
		{
			name: "input event",
			msg:  &InputEvent{Device: "mouse", Action: "move", X: 100, Y: 250},
		},
		{
			name: "frame ack",
			msg:  &FrameAck{FrameID: 7, ReceivedAt: time.Unix(1700000000, 123456789).UTC()},
		},
		{
			name: "clipboard with binary payload",
			msg:  &ClipboardData{Format: "image/png", Data: []byte{0x89, 0x50, 0x4E, 0x47}},
		},
		{
			name: "audio chunk",
			msg:  &AudioChunk{Sequence: 3, SampleRate: 48000, Channels: 2, Data: make([]byte, 960)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tc.msg); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := ReadMessage(&buf)
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if got.Kind() != tc.msg.Kind() {
				t.Fatalf("Kind: got %v, want %v", got.Kind(), tc.msg.Kind())
			}
			if !reflect.DeepEqual(got, tc.msg) {
				t.Errorf("decoded message differs:\n got %+v\nwant %+v", got, tc.msg)
			}
		})
	}
}

// Latency is derived from message timestamps, so sub-second precision
// must survive transit. The deterministic CBOR defaults would round
// timestamps to whole seconds.
func TestTimestampNanosecondsSurviveTransit(t *testing.T) {
	sent := time.Unix(1700000000, 123456789).UTC()

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &FrameAck{FrameID: 9, ReceivedAt: sent}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	ack := got.(*FrameAck)
	if !ack.ReceivedAt.Equal(sent) {
		t.Fatalf("timestamp lossy: sent %v, got %v (lost %v)",
			sent, ack.ReceivedAt, sent.Sub(ack.ReceivedAt))
	}
}

// Raw pixel data must survive the codec byte for byte; a lossy or
// re-encoding transport would corrupt delta reconstruction.
func TestScreenFramePayloadLossless(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 31)
	}
	frame := &ScreenFrame{ID: 1, Data: data, Width: 32, Height: 32, Format: FormatRaw}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	decoded := got.(*ScreenFrame)
	if !bytes.Equal(decoded.Data, data) {
		t.Fatal("pixel data corrupted in transit")
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)
	header[4] = byte(TypeScreenFrame)

	_, _, err := ReadFrame(bytes.NewReader(header))
	if err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	header := []byte{0, 0, 0, 0}
	_, _, err := ReadFrame(bytes.NewReader(header))
	if err == nil {
		t.Fatal("expected error for zero frame length")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &ChatMessage{From: "a", Text: "hello"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	_, _, err := ReadFrame(bytes.NewReader(truncated))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode(Type(0xEE), []byte{0xA0}); err == nil {
		t.Fatal("expected error for unknown message tag")
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	// 0xFF is not a valid CBOR document for a struct.
	if _, err := Decode(TypeChatMessage, []byte{0xFF}); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
