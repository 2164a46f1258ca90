// Package directory is the device-directory collaborator: a concurrent
// registry of paired Bluetooth devices, resolving addresses to identities
// and filtering for known accessory models. Pairing/bonding storage itself
// lives outside this program; callers feed the registry from whatever
// platform source they have.
package directory

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/internal/device"
)

// PairedDevice is one entry of the registry. It implements
// airpods.BoundDevice.
type PairedDevice struct {
	address   string
	name      string
	vendorID  uint16
	productID uint16

	mu        sync.Mutex
	connected bool
	listeners map[int]func(connected bool)
	nextID    int
}

// NewPairedDevice creates a registry entry for a paired device.
func NewPairedDevice(address, name string, vendorID, productID uint16) *PairedDevice {
	return &PairedDevice{
		address:   address,
		name:      name,
		vendorID:  vendorID,
		productID: productID,
		listeners: make(map[int]func(bool)),
	}
}

func (d *PairedDevice) Address() string   { return d.address }
func (d *PairedDevice) Name() string      { return d.name }
func (d *PairedDevice) VendorID() uint16  { return d.vendorID }
func (d *PairedDevice) ProductID() uint16 { return d.productID }

// Connected reports the current connection flag.
func (d *PairedDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// SetConnected updates the connection flag and notifies listeners on a
// change. Listeners run synchronously on the caller's goroutine.
func (d *PairedDevice) SetConnected(connected bool) {
	d.mu.Lock()
	changed := d.connected != connected
	d.connected = connected
	listeners := make([]func(bool), 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(connected)
	}
}

// SubscribeConnection registers a connection-state listener. The listener
// fires on changes only, never during this call.
func (d *PairedDevice) SubscribeConnection(fn func(connected bool)) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// Directory is a concurrent address-keyed registry of paired devices.
type Directory struct {
	devices *hashmap.Map[string, *PairedDevice]
	logger  *logrus.Logger
}

// NewDirectory creates an empty registry.
func NewDirectory(logger *logrus.Logger) *Directory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Directory{
		devices: hashmap.New[string, *PairedDevice](),
		logger:  logger,
	}
}

// Register adds or replaces a paired device.
func (dir *Directory) Register(dev *PairedDevice) {
	dir.devices.Set(dev.Address(), dev)
	dir.logger.WithFields(logrus.Fields{
		"address": dev.Address(),
		"name":    dev.Name(),
	}).Debug("Paired device registered")
}

// Remove drops a paired device from the registry.
func (dir *Directory) Remove(address string) {
	dir.devices.Del(address)
}

// FindDevice resolves an address to its paired device. A missing entry is
// a recoverable lookup failure, reported as a NotFoundError.
func (dir *Directory) FindDevice(address string) (airpods.BoundDevice, error) {
	dev, ok := dir.devices.Get(address)
	if !ok {
		return nil, &device.NotFoundError{Resource: "device", ID: address}
	}
	return dev, nil
}

// PairedDevices returns a snapshot of every registered device.
func (dir *Directory) PairedDevices() []*PairedDevice {
	devs := make([]*PairedDevice, 0, dir.devices.Len())
	dir.devices.Range(func(_ string, dev *PairedDevice) bool {
		devs = append(devs, dev)
		return true
	})
	return devs
}

// AccessoryDevices returns the paired devices whose vendor and product ids
// match a known accessory model.
func (dir *Directory) AccessoryDevices() []*PairedDevice {
	all := dir.PairedDevices()
	dir.logger.WithField("count", len(all)).Info("Paired devices enumerated")

	accessories := make([]*PairedDevice, 0, len(all))
	for _, dev := range all {
		model := airpods.ModelUnknown
		if dev.VendorID() == airpods.VendorID {
			model = airpods.ModelFromProductID(dev.ProductID())
		}
		dir.logger.WithFields(logrus.Fields{
			"vendorID":  dev.VendorID(),
			"productID": dev.ProductID(),
			"model":     model,
		}).Trace("Paired device inspected")

		if model != airpods.ModelUnknown {
			accessories = append(accessories, dev)
		}
	}

	dir.logger.WithField("count", len(accessories)).Info("Accessory devices filtered")
	return accessories
}
