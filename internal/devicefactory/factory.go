package devicefactory

import (
	"github.com/srg/podwatch/internal/device"
	goble "github.com/srg/podwatch/internal/device/go-ble"
)

// NewScanner creates a device.Scanner for broadcast watching.
// This is a variable so that it can be overridden in tests.
var NewScanner = func() (device.Scanner, error) {
	return goble.NewScanner()
}
