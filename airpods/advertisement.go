package airpods

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Broadcast is a raw advertisement record as delivered by the ingestion
// transport. The address is a random non-resolvable one and may rotate
// over time; ManufacturerData is keyed by the vendor (company) id.
type Broadcast struct {
	Address          string
	RSSI             int16
	Timestamp        time.Time
	ManufacturerData map[uint16][]byte
}

// IsDesiredBroadcast reports whether the record carries a well-formed
// proximity-pairing payload under the Apple vendor id. It must be checked
// before constructing an Advertisement.
func IsDesiredBroadcast(b Broadcast) bool {
	payload, ok := b.ManufacturerData[VendorID]
	return ok && isValidPayload(payload)
}

// Advertisement is a decoded broadcast packet together with its transport
// metadata. Immutable once constructed.
type Advertisement struct {
	state   AdvState
	address string
	rssi    int16
	ts      time.Time
	payload []byte
}

// NewAdvertisement decodes a recognized broadcast. Passing a record for
// which IsDesiredBroadcast does not hold is a caller bug and panics.
func NewAdvertisement(b Broadcast) Advertisement {
	if !IsDesiredBroadcast(b) {
		panic("airpods: NewAdvertisement called with an unrecognized broadcast")
	}

	payload := make([]byte, payloadSize)
	copy(payload, b.ManufacturerData[VendorID])

	return Advertisement{
		state:   parseAdvState(payload),
		address: b.Address,
		rssi:    b.RSSI,
		ts:      b.Timestamp,
		payload: payload,
	}
}

// State returns the decoded status snapshot.
func (a Advertisement) State() AdvState { return a.state }

// Address returns the (possibly rotated) broadcast address.
func (a Advertisement) Address() string { return a.address }

// RSSI returns the received signal strength in dBm.
func (a Advertisement) RSSI() int16 { return a.rssi }

// Timestamp returns the transport receipt time.
func (a Advertisement) Timestamp() time.Time { return a.ts }

// Redacted returns a copy of the payload with device-identifying bytes
// cleared. Safe for logging, never used for control decisions.
func (a Advertisement) Redacted() []byte {
	return redactPayload(a.payload)
}

// addressHash is a log-safe stand-in for the broadcast address.
func addressHash(address string) string {
	h := fnv.New32a()
	h.Write([]byte(address))
	return fmt.Sprintf("%08x", h.Sum32())
}
