// Package protocol defines the message kinds carried over a session
// channel and their wire framing. Every message is one frame:
//
//	[4-byte big-endian length][1-byte type tag][CBOR payload]
//
// where length counts the tag byte plus the payload. The payload
// encoding is CBOR so that raw byte fields (image, audio, file data)
// round-trip without text-encoding corruption.
package protocol

import "time"

// Type tags one message kind on the wire.
type Type uint8

const (
	TypeScreenFrame          Type = 0x01
	TypeInputEvent           Type = 0x02
	TypePairingRequest       Type = 0x03
	TypePairingResponse      Type = 0x04
	TypeQualityReport        Type = 0x05
	TypeFrameAck             Type = 0x06
	TypeClipboardData        Type = 0x07
	TypeFileTransferRequest  Type = 0x08
	TypeFileChunk            Type = 0x09
	TypeFileTransferResponse Type = 0x0A
	TypeFileTransferComplete Type = 0x0B
	TypeAudioChunk           Type = 0x0C
	TypeChatMessage          Type = 0x0D
)

// String returns the wire name of the type tag.
func (t Type) String() string {
	switch t {
	case TypeScreenFrame:
		return "screen_frame"
	case TypeInputEvent:
		return "input_event"
	case TypePairingRequest:
		return "pairing_request"
	case TypePairingResponse:
		return "pairing_response"
	case TypeQualityReport:
		return "quality_report"
	case TypeFrameAck:
		return "frame_ack"
	case TypeClipboardData:
		return "clipboard_data"
	case TypeFileTransferRequest:
		return "file_transfer_request"
	case TypeFileChunk:
		return "file_chunk"
	case TypeFileTransferResponse:
		return "file_transfer_response"
	case TypeFileTransferComplete:
		return "file_transfer_complete"
	case TypeAudioChunk:
		return "audio_chunk"
	case TypeChatMessage:
		return "chat_message"
	}
	return "unknown"
}

// Message is implemented by every payload struct the channel carries.
type Message interface {
	Kind() Type
}

// PixelFormat identifies the encoding of a ScreenFrame payload.
type PixelFormat uint8

const (
	FormatJPEG PixelFormat = iota
	FormatPNG
	FormatRaw // 32-bit RGBA, row-major
)

func (f PixelFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatRaw:
		return "raw"
	}
	return "unknown"
}

// DeltaRegion describes one changed rectangle of a delta frame. Offset
// and Length locate the region's pixel bytes inside the packed frame
// payload.
type DeltaRegion struct {
	X      int `cbor:"x"`
	Y      int `cbor:"y"`
	Width  int `cbor:"w"`
	Height int `cbor:"h"`
	Offset int `cbor:"off"`
	Length int `cbor:"len"`
}

// ScreenFrame is one encoded screen update. For a full frame IsDelta is
// false and ReferenceID/Regions are unset; for a delta frame both are
// set and Regions are sorted, non-overlapping, with byte ranges inside
// Data.
type ScreenFrame struct {
	ID          uint64        `cbor:"id"`
	Timestamp   time.Time     `cbor:"ts"`
	Data        []byte        `cbor:"data"`
	Width       int           `cbor:"w"`
	Height      int           `cbor:"h"`
	Format      PixelFormat   `cbor:"fmt"`
	Quality     int           `cbor:"q"` // compression quality 0-100
	IsDelta     bool          `cbor:"delta"`
	ReferenceID uint64        `cbor:"ref,omitempty"`
	Regions     []DeltaRegion `cbor:"regions,omitempty"`
}

func (*ScreenFrame) Kind() Type { return TypeScreenFrame }

// InputEvent is a mouse or keyboard event destined for the host's
// input-injection collaborator.
type InputEvent struct {
	Device string `cbor:"device"` // "mouse" or "key"
	Action string `cbor:"action"` // "move", "down", "up", "click", ...
	X      int    `cbor:"x,omitempty"`
	Y      int    `cbor:"y,omitempty"`
	Button int    `cbor:"button,omitempty"`
	Key    string `cbor:"key,omitempty"`
	Code   int    `cbor:"code,omitempty"`
}

func (*InputEvent) Kind() Type { return TypeInputEvent }

// PairingRequest carries the client's PIN attempt.
type PairingRequest struct {
	ClientID   string `cbor:"client_id"`
	ClientName string `cbor:"client_name"`
	Pin        string `cbor:"pin"`
}

func (*PairingRequest) Kind() Type { return TypePairingRequest }

// PairingResponse reports the host's verdict on a PairingRequest. On
// acceptance SessionID identifies the session the channel now carries.
type PairingResponse struct {
	Accepted          bool   `cbor:"accepted"`
	Reason            string `cbor:"reason,omitempty"`
	SessionID         string `cbor:"session_id,omitempty"`
	HostID            string `cbor:"host_id,omitempty"`
	HostName          string `cbor:"host_name,omitempty"`
	AttemptsRemaining int    `cbor:"attempts_remaining"`
}

func (*PairingResponse) Kind() Type { return TypePairingResponse }

// QualityReport is the client's periodic view of stream quality.
type QualityReport struct {
	FPS          float64   `cbor:"fps"`
	BandwidthBps float64   `cbor:"bw"`
	LatencyMs    float64   `cbor:"lat"`
	Timestamp    time.Time `cbor:"ts"`
}

func (*QualityReport) Kind() Type { return TypeQualityReport }

// FrameAck acknowledges receipt of one screen frame. The host derives
// round-trip latency from its recorded send time for FrameID.
type FrameAck struct {
	FrameID    uint64    `cbor:"frame_id"`
	ReceivedAt time.Time `cbor:"received_at"`
}

func (*FrameAck) Kind() Type { return TypeFrameAck }

// ClipboardData is a clipboard payload routed between peers unmodified.
type ClipboardData struct {
	Format string `cbor:"format"` // "text", "image/png", ...
	Data   []byte `cbor:"data"`
}

func (*ClipboardData) Kind() Type { return TypeClipboardData }

// FileTransferRequest announces an incoming file.
type FileTransferRequest struct {
	TransferID string `cbor:"transfer_id"`
	Name       string `cbor:"name"`
	Size       int64  `cbor:"size"`
}

func (*FileTransferRequest) Kind() Type { return TypeFileTransferRequest }

// FileChunk is one piece of a file transfer, delivered in Index order
// per transfer.
type FileChunk struct {
	TransferID string `cbor:"transfer_id"`
	Index      int    `cbor:"index"`
	Data       []byte `cbor:"data"`
}

func (*FileChunk) Kind() Type { return TypeFileChunk }

// FileTransferResponse accepts or declines a FileTransferRequest.
type FileTransferResponse struct {
	TransferID string `cbor:"transfer_id"`
	Accepted   bool   `cbor:"accepted"`
	Reason     string `cbor:"reason,omitempty"`
}

func (*FileTransferResponse) Kind() Type { return TypeFileTransferResponse }

// FileTransferComplete marks the end of a transfer.
type FileTransferComplete struct {
	TransferID string `cbor:"transfer_id"`
	Checksum   string `cbor:"checksum,omitempty"` // SHA-256 hex of the whole file
}

func (*FileTransferComplete) Kind() Type { return TypeFileTransferComplete }

// AudioChunk is one captured audio buffer.
type AudioChunk struct {
	Sequence   uint64 `cbor:"seq"`
	SampleRate int    `cbor:"rate"`
	Channels   int    `cbor:"channels"`
	Data       []byte `cbor:"data"`
}

func (*AudioChunk) Kind() Type { return TypeAudioChunk }

// ChatMessage is a text message between the two peers.
type ChatMessage struct {
	From   string    `cbor:"from"`
	Text   string    `cbor:"text"`
	SentAt time.Time `cbor:"sent_at"`
}

func (*ChatMessage) Kind() Type { return TypeChatMessage }
