package airpods

import "fmt"

// Battery is an optional battery percentage. The zero value is "unavailable",
// which is distinct from a reported 0%: the protocol only includes a battery
// field when the broadcasting pod actually knows it.
type Battery struct {
	value     uint8
	available bool
}

// BatteryOf returns an available battery at the given percentage.
func BatteryOf(percent uint8) Battery {
	return Battery{value: percent, available: true}
}

// Available reports whether this packet carried a value for the field.
func (b Battery) Available() bool { return b.available }

// Value returns the battery percentage. Only meaningful when Available.
func (b Battery) Value() uint8 { return b.value }

// Steps returns the battery level in protocol units (10% steps).
func (b Battery) Steps() uint8 { return b.value / 10 }

func (b Battery) String() string {
	if !b.available {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", b.value)
}
