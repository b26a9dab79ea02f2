package protocol

import "time"

// DeviceKind distinguishes the two peer classes discovery reports.
type DeviceKind uint8

const (
	DeviceDesktop DeviceKind = iota
	DeviceMobile
)

func (k DeviceKind) String() string {
	if k == DeviceMobile {
		return "mobile"
	}
	return "desktop"
}

// DeviceInfo describes a peer found on the local network. It is
// produced by the discovery collaborator and read-only to this module;
// only ID, Name, Address, Port and Kind are consumed here.
type DeviceInfo struct {
	ID       string     `cbor:"id"`
	Name     string     `cbor:"name"`
	Address  string     `cbor:"address"`
	Port     int        `cbor:"port"`
	Kind     DeviceKind `cbor:"kind"`
	LastSeen time.Time  `cbor:"last_seen"`
	Online   bool       `cbor:"online"`
}
