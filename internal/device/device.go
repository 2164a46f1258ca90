// Package device is the transport seam between the BLE stack and the rest
// of the application. Only the scanning surface is abstracted here; this
// program never establishes connections.
package device

import (
	"context"
	"fmt"
)

// NotFoundError represents a failed lookup of a BLE resource.
type NotFoundError struct {
	Resource string // "device", "scanner"
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Advertisement is the scanning-side view of a received BLE advertisement.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	RSSI() int
	Addr() string
}

// Scanner represents a BLE device capable of scanning for advertisements.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}
