package testutils

import (
	"time"

	"github.com/srg/podwatch/airpods"
)

// BroadcastBuilder builds raw accessory broadcast records for testing.
// It provides a fluent API that starts from typed status fields and encodes
// them into the proximity-pairing wire payload, so tests never hand-write
// payload bytes.
type BroadcastBuilder struct {
	address string
	rssi    int16
	ts      time.Time

	vendorID uint16
	modelID  uint16
	side     airpods.Side

	// batteries in wire units: 0-10 steps, -1 = unavailable
	leftBattery  int
	rightBattery int
	caseBattery  int

	leftCharging, rightCharging, caseCharging bool
	leftInEar, rightInEar                     bool
	bothInCase, lidOpened                     bool

	rawPayload []byte // overrides encoding entirely when set
}

// NewBroadcastBuilder creates a builder with a plausible default record:
// an AirPods Pro left-pod broadcast with all batteries unavailable.
func NewBroadcastBuilder() *BroadcastBuilder {
	return &BroadcastBuilder{
		address:      "11:22:33:44:55:66",
		rssi:         -50,
		ts:           time.Now(),
		vendorID:     airpods.VendorID,
		modelID:      0x0E20,
		side:         airpods.SideLeft,
		leftBattery:  -1,
		rightBattery: -1,
		caseBattery:  -1,
	}
}

func (b *BroadcastBuilder) WithAddress(addr string) *BroadcastBuilder {
	b.address = addr
	return b
}

func (b *BroadcastBuilder) WithRSSI(rssi int16) *BroadcastBuilder {
	b.rssi = rssi
	return b
}

func (b *BroadcastBuilder) WithTimestamp(ts time.Time) *BroadcastBuilder {
	b.ts = ts
	return b
}

// WithVendorID overrides the manufacturer-data map key. Used to build
// records that must not be recognized.
func (b *BroadcastBuilder) WithVendorID(id uint16) *BroadcastBuilder {
	b.vendorID = id
	return b
}

// WithModelID sets the 2-byte wire model id.
func (b *BroadcastBuilder) WithModelID(id uint16) *BroadcastBuilder {
	b.modelID = id
	return b
}

// WithSide sets which pod broadcasts the record.
func (b *BroadcastBuilder) WithSide(side airpods.Side) *BroadcastBuilder {
	b.side = side
	return b
}

// WithLeftBattery sets the left pod battery in wire steps (0-10); -1 means
// unavailable.
func (b *BroadcastBuilder) WithLeftBattery(steps int) *BroadcastBuilder {
	b.leftBattery = steps
	return b
}

// WithRightBattery sets the right pod battery in wire steps (0-10).
func (b *BroadcastBuilder) WithRightBattery(steps int) *BroadcastBuilder {
	b.rightBattery = steps
	return b
}

// WithCaseBattery sets the case battery in wire steps (0-10).
func (b *BroadcastBuilder) WithCaseBattery(steps int) *BroadcastBuilder {
	b.caseBattery = steps
	return b
}

func (b *BroadcastBuilder) WithCharging(left, right, caseBox bool) *BroadcastBuilder {
	b.leftCharging, b.rightCharging, b.caseCharging = left, right, caseBox
	return b
}

func (b *BroadcastBuilder) WithInEar(left, right bool) *BroadcastBuilder {
	b.leftInEar, b.rightInEar = left, right
	return b
}

func (b *BroadcastBuilder) WithBothInCase(v bool) *BroadcastBuilder {
	b.bothInCase = v
	return b
}

func (b *BroadcastBuilder) WithLidOpened(v bool) *BroadcastBuilder {
	b.lidOpened = v
	return b
}

// WithRawPayload bypasses encoding and uses the given bytes as the vendor
// payload verbatim.
func (b *BroadcastBuilder) WithRawPayload(p []byte) *BroadcastBuilder {
	b.rawPayload = p
	return b
}

// Build encodes the configured fields into a broadcast record.
func (b *BroadcastBuilder) Build() airpods.Broadcast {
	payload := b.rawPayload
	if payload == nil {
		payload = b.encodePayload()
	}

	return airpods.Broadcast{
		Address:          b.address,
		RSSI:             b.rssi,
		Timestamp:        b.ts,
		ManufacturerData: map[uint16][]byte{b.vendorID: payload},
	}
}

// BuildAdvertisement is a shortcut for decoding the built record.
func (b *BroadcastBuilder) BuildAdvertisement() airpods.Advertisement {
	return airpods.NewAdvertisement(b.Build())
}

func (b *BroadcastBuilder) encodePayload() []byte {
	p := make([]byte, 27)
	p[0] = 0x07 // proximity pairing
	p[1] = 0x19
	p[2] = 0x01
	p[3] = byte(b.modelID >> 8)
	p[4] = byte(b.modelID)

	// The wire layout is relative to the broadcasting pod.
	bcBattery, otherBattery := b.leftBattery, b.rightBattery
	bcCharging, otherCharging := b.leftCharging, b.rightCharging
	bcInEar, otherInEar := b.leftInEar, b.rightInEar
	if b.side == airpods.SideRight {
		bcBattery, otherBattery = otherBattery, bcBattery
		bcCharging, otherCharging = otherCharging, bcCharging
		bcInEar, otherInEar = otherInEar, bcInEar
	}

	var status byte
	if b.side == airpods.SideLeft {
		status |= 1 << 5
	}
	if b.bothInCase {
		status |= 1 << 4
	}
	if bcInEar {
		status |= 1 << 1
	}
	if otherInEar {
		status |= 1 << 3
	}
	p[5] = status

	p[6] = batteryNibble(bcBattery)<<4 | batteryNibble(otherBattery)

	var charge byte
	if bcCharging {
		charge |= 1 << 0
	}
	if otherCharging {
		charge |= 1 << 1
	}
	if b.caseCharging {
		charge |= 1 << 2
	}
	p[7] = charge<<4 | batteryNibble(b.caseBattery)

	if b.lidOpened {
		p[8] = 1 << 3
	}

	// [9] color, [10] zero, [11:27] encrypted blob: arbitrary bytes so
	// redaction behavior is observable in tests.
	p[9] = 0x02
	for i := 11; i < 27; i++ {
		p[i] = byte(i)
	}
	return p
}

func batteryNibble(steps int) byte {
	if steps < 0 || steps > 10 {
		return 0x0F
	}
	return byte(steps)
}
