package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. Timestamps keep nanosecond precision;
// the deterministic defaults would round them to whole seconds.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so newer
// peers can add fields without breaking older ones.
var decMode cbor.DecMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a message payload to CBOR.
func Marshal(msg Message) ([]byte, error) {
	return encMode.Marshal(msg)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode constructs the concrete message for tag and decodes payload
// into it. An unknown tag is a protocol error.
func Decode(tag Type, payload []byte) (Message, error) {
	var msg Message
	switch tag {
	case TypeScreenFrame:
		msg = &ScreenFrame{}
	case TypeInputEvent:
		msg = &InputEvent{}
	case TypePairingRequest:
		msg = &PairingRequest{}
	case TypePairingResponse:
		msg = &PairingResponse{}
	case TypeQualityReport:
		msg = &QualityReport{}
	case TypeFrameAck:
		msg = &FrameAck{}
	case TypeClipboardData:
		msg = &ClipboardData{}
	case TypeFileTransferRequest:
		msg = &FileTransferRequest{}
	case TypeFileChunk:
		msg = &FileChunk{}
	case TypeFileTransferResponse:
		msg = &FileTransferResponse{}
	case TypeFileTransferComplete:
		msg = &FileTransferComplete{}
	case TypeAudioChunk:
		msg = &AudioChunk{}
	case TypeChatMessage:
		msg = &ChatMessage{}
	default:
		return nil, fmt.Errorf("unknown message tag 0x%02X", uint8(tag))
	}
	if err := decMode.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", tag, err)
	}
	return msg, nil
}
