package device

import "encoding/binary"

// SplitManufacturerData splits a raw manufacturer-data block into a map
// keyed by company id. Per the BLE convention the first two bytes are the
// little-endian company identifier; the rest is the vendor payload.
//
// Blocks too short to carry a company id yield an empty map. A single
// advertisement carries at most one manufacturer-data entry, so the map
// has zero or one keys; the map shape matches how platform watchers hand
// the data to consumers.
func SplitManufacturerData(raw []byte) map[uint16][]byte {
	if len(raw) < 2 {
		return map[uint16][]byte{}
	}

	companyID := binary.LittleEndian.Uint16(raw[0:2])
	payload := make([]byte, len(raw)-2)
	copy(payload, raw[2:])

	return map[uint16][]byte{companyID: payload}
}
