package testutils

import (
	"context"

	"github.com/srg/podwatch/internal/device"
)

// FakeAdvertisement is a canned device.Advertisement.
type FakeAdvertisement struct {
	Name      string
	Address   string
	Signal    int
	ManufData []byte
}

func (a FakeAdvertisement) LocalName() string        { return a.Name }
func (a FakeAdvertisement) ManufacturerData() []byte { return a.ManufData }
func (a FakeAdvertisement) RSSI() int                { return a.Signal }
func (a FakeAdvertisement) Addr() string             { return a.Address }

// FakeScanner replays canned advertisements to the scan handler and then
// blocks until the context is cancelled, like a real scan would.
type FakeScanner struct {
	Advertisements []device.Advertisement
	Err            error // returned instead of scanning when set
}

func (s *FakeScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	if s.Err != nil {
		return s.Err
	}
	for _, adv := range s.Advertisements {
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// FakeAdvertisementFromBroadcastPayload wraps an encoded vendor payload
// into the flat manufacturer-data block a transport would deliver
// (little-endian company id followed by the payload).
func FakeAdvertisementFromBroadcastPayload(address string, rssi int, companyID uint16, payload []byte) FakeAdvertisement {
	raw := make([]byte, 0, len(payload)+2)
	raw = append(raw, byte(companyID), byte(companyID>>8))
	raw = append(raw, payload...)
	return FakeAdvertisement{
		Address:   address,
		Signal:    rssi,
		ManufData: raw,
	}
}
