package airpods

import "encoding/binary"

// VendorID is the Bluetooth SIG company identifier for Apple.
// Only manufacturer-data entries under this id are inspected.
const VendorID uint16 = 0x004C

const (
	// Proximity-pairing message framing inside the Apple manufacturer payload.
	proximityPairingType   = 0x07
	proximityPairingLength = 0x19 // remaining bytes after the 2-byte header
	proximityPairingPrefix = 0x01
	payloadSize            = 27

	// Battery nibbles use 0-10 (10% steps); anything above is "unavailable".
	batteryNibbleMax = 10
)

// Payload byte offsets (company id already stripped by the map key).
const (
	offMessageType = 0
	offLength      = 1
	offPrefix      = 2
	offModelID     = 3
	offStatus      = 5
	offPodBattery  = 6
	offChargeCase  = 7
	offLid         = 8
	offEncrypted   = 11
)

// Status byte bits. The "broadcaster" pod is the one transmitting this
// packet; the battery and flag nibbles are laid out relative to it.
const (
	statusBroadcasterInEar = 1 << 1
	statusOtherInEar       = 1 << 3
	statusBothPodsInCase   = 1 << 4
	statusBroadcastLeft    = 1 << 5
)

// Charge nibble bits (high nibble of the charge/case byte).
const (
	chargeBroadcaster = 1 << 0
	chargeOther       = 1 << 1
	chargeCase        = 1 << 2
)

const lidOpenedBit = 1 << 3

// wireModels maps the 2-byte big-endian model id carried in the broadcast.
var wireModels = map[uint16]Model{
	0x0220: ModelAirPods1,
	0x0F20: ModelAirPods2,
	0x1320: ModelAirPods3,
	0x0E20: ModelAirPodsPro,
	0x1420: ModelAirPodsPro2,
	0x0A20: ModelAirPodsMax,
	0x0B20: ModelPowerbeatsPro,
}

// productModels maps classic-pairing product ids (as enumerated by the
// device directory) to models. Used only by the accessory filter.
var productModels = map[uint16]Model{
	0x2002: ModelAirPods1,
	0x200F: ModelAirPods2,
	0x2013: ModelAirPods3,
	0x200E: ModelAirPodsPro,
	0x2014: ModelAirPodsPro2,
	0x200A: ModelAirPodsMax,
	0x200B: ModelPowerbeatsPro,
}

// ModelFromProductID resolves a paired device's product id to a model.
// Returns ModelUnknown for anything that is not a known accessory.
func ModelFromProductID(productID uint16) Model {
	return productModels[productID]
}

// isValidPayload checks the fixed layout of a proximity-pairing payload.
func isValidPayload(p []byte) bool {
	return len(p) == payloadSize &&
		p[offMessageType] == proximityPairingType &&
		p[offLength] == proximityPairingLength &&
		p[offPrefix] == proximityPairingPrefix
}

// nibbleBattery converts a raw 0-10 battery nibble into a percentage,
// mapping the reserved sentinel range to "unavailable".
func nibbleBattery(nibble uint8) Battery {
	if nibble > batteryNibbleMax {
		return Battery{}
	}
	return BatteryOf(nibble * 10)
}

// parseAdvState decodes a validated proximity-pairing payload.
// Callers must check isValidPayload first.
func parseAdvState(p []byte) AdvState {
	status := p[offStatus]

	broadcaster := Pod{
		Battery:    nibbleBattery(p[offPodBattery] >> 4),
		IsCharging: p[offChargeCase]>>4&chargeBroadcaster != 0,
		IsInEar:    status&statusBroadcasterInEar != 0,
	}
	other := Pod{
		Battery:    nibbleBattery(p[offPodBattery] & 0x0F),
		IsCharging: p[offChargeCase]>>4&chargeOther != 0,
		IsInEar:    status&statusOtherInEar != 0,
	}

	state := AdvState{
		Model: wireModels[binary.BigEndian.Uint16(p[offModelID:])],
		CaseBox: CaseBox{
			Battery:          nibbleBattery(p[offChargeCase] & 0x0F),
			IsCharging:       p[offChargeCase]>>4&chargeCase != 0,
			IsBothPodsInCase: status&statusBothPodsInCase != 0,
			IsLidOpened:      p[offLid]&lidOpenedBit != 0,
		},
	}

	if status&statusBroadcastLeft != 0 {
		state.Side = SideLeft
		state.Pods = Pods{Left: broadcaster, Right: other}
	} else {
		state.Side = SideRight
		state.Pods = Pods{Left: other, Right: broadcaster}
	}
	return state
}

// redactPayload returns a copy with the per-rotation encrypted blob zeroed,
// keeping only the status fields that are safe to log.
func redactPayload(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p[:offEncrypted])
	return out
}
