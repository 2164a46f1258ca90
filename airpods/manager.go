package airpods

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// StatusObserver receives canonical state changes and availability
// transitions. Implementations marshal onto their own execution context;
// every call is fire-and-forget.
type StatusObserver interface {
	UpdateState(State)
	Show()
	Hide()
	Available()
	Unavailable()
	Disconnected()
}

// MediaController receives idempotent transport signals derived from the
// both-in-ear transition.
type MediaController interface {
	Play()
	Pause()
}

// BoundDevice is a paired device resolved from the directory.
type BoundDevice interface {
	Address() string
	Name() string
	Connected() bool

	// SubscribeConnection registers a connection-state listener and returns
	// a cancel func. The listener fires only on changes, never during the
	// Subscribe call itself.
	SubscribeConnection(func(connected bool)) (cancel func())
}

// DeviceDirectory resolves a paired-device address to its identity.
type DeviceDirectory interface {
	FindDevice(address string) (BoundDevice, error)
}

// WatcherState is the lifecycle of the broadcast-ingestion transport.
// The transport guarantees these two states only.
type WatcherState int

const (
	WatcherStarted WatcherState = iota
	WatcherStopped
)

func (s WatcherState) String() string {
	switch s {
	case WatcherStarted:
		return "started"
	case WatcherStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WatcherState(%d)", int(s))
	}
}

// placeholderName marks resolved device names that are generic OS labels
// rather than a user-given name; such names are treated as absent.
const placeholderName = "Bluetooth"

// findMySuffix is appended by the OS to devices enrolled in item finding;
// always stripped from display names.
const findMySuffix = " - Find My"

// Options configures a Manager.
type Options struct {
	// RSSIMin drops packets weaker than this floor (dBm).
	RSSIMin int16 `default:"-80"`

	// AutoEarDetection drives media play/pause from the both-in-ear
	// transition.
	AutoEarDetection bool `default:"true"`

	// LostTimeout and SideExpiry are the staleness windows of the
	// reconciliation engine.
	LostTimeout time.Duration `default:"10s"`
	SideExpiry  time.Duration `default:"10s"`

	// TickInterval is how often staleness deadlines are checked.
	TickInterval time.Duration `default:"1s"`
}

// DefaultOptions returns Options with every field at its default.
func DefaultOptions() *Options {
	opts := new(Options)
	defaults.SetDefaults(opts)
	return opts
}

// Manager orchestrates the subsystem: it owns the binding to a physical
// device, gates broadcast ingestion on the connection flag, drives the
// reconciliation engine and derives the lid and both-in-ear transitions
// for the injected collaborators.
type Manager struct {
	logger logrus.FieldLogger

	observer  StatusObserver
	media     MediaController
	directory DeviceDirectory

	stateMgr *StateManager

	mu               sync.Mutex
	boundDevice      BoundDevice
	deviceConnected  bool
	deviceName       string
	autoEarDetection bool
	unsubscribe      func()

	tick     time.Duration
	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewManager wires the orchestrator to its collaborators. A nil opts uses
// DefaultOptions.
func NewManager(logger *logrus.Logger, observer StatusObserver, media MediaController, directory DeviceDirectory, opts *Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	stateMgr := NewStateManager(logger)
	stateMgr.SetTimeouts(opts.LostTimeout, opts.SideExpiry)
	stateMgr.OnRSSIMinChanged(opts.RSSIMin)

	return &Manager{
		logger:           logger.WithField("component", "manager"),
		observer:         observer,
		media:            media,
		directory:        directory,
		stateMgr:         stateMgr,
		autoEarDetection: opts.AutoEarDetection,
		tick:             opts.TickInterval,
	}
}

// Start launches the staleness tick loop. It returns immediately; the loop
// runs until Stop is called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopLoop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.stopLoop = cancel
	m.loopDone = make(chan struct{})

	go m.runTicker(ctx, m.loopDone)
}

// Stop ends the tick loop and waits for an in-flight firing to complete.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.stopLoop, m.loopDone
	m.stopLoop = nil
	m.loopDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Manager) runTicker(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.expireTick(now)
		}
	}
}

// expireTick applies due staleness deadlines and fans out the results.
// The whole firing runs under the lock, same order as the broadcast path,
// so a tick and an incoming packet can never interleave between the state
// mutation and its notification.
func (m *Manager) expireTick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.stateMgr.ExpireStale(now)
	if result.Event != nil {
		m.handleStateUpdate(*result.Event)
	}
	if result.Lost {
		m.observer.Disconnected()
	}
}

// OnBroadcastReceived feeds one raw record through the pipeline. It returns
// whether the record was recognized as an accessory broadcast; a recognized
// record received while no device is connected is ignored but still counts
// as recognized.
func (m *Manager) OnBroadcastReceived(b Broadcast) bool {
	if !IsDesiredBroadcast(b) {
		return false
	}

	adv := NewAdvertisement(b)

	m.logger.WithFields(logrus.Fields{
		"data":        fmt.Sprintf("%X", adv.Redacted()),
		"addressHash": addressHash(adv.Address()),
		"rssi":        adv.RSSI(),
	}).Trace("Accessory advertisement received")

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.deviceConnected {
		m.logger.Info("Accessory advertisement received, but device disconnected")
		return true
	}

	if event := m.stateMgr.OnAdvReceived(adv); event != nil {
		m.handleStateUpdate(*event)
	}
	return true
}

// OnBoundDeviceChanged rebinds the manager to a new device address. The
// empty address unbinds. Any previous binding, connection flag and cached
// state are dropped unconditionally first.
func (m *Manager) OnBoundDeviceChanged(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.boundDevice = nil
	m.deviceConnected = false
	m.deviceName = ""
	if m.stateMgr.Disconnect() {
		m.observer.Disconnected()
	}

	if address == "" {
		m.logger.Info("Unbind device")
		return
	}

	m.logger.Info("Bind a new device")

	dev, err := m.directory.FindDevice(address)
	if err != nil {
		m.logger.WithError(err).WithField("address", address).Error("Find device by address failed")
		return
	}

	m.boundDevice = dev
	m.deviceName = sanitizeDeviceName(dev.Name())

	m.unsubscribe = dev.SubscribeConnection(m.OnDeviceConnectionStateChanged)
	m.setConnected(dev.Connected())

	m.logger.WithField("name", m.deviceName).Info("Device bound")
}

// OnDeviceConnectionStateChanged tracks the bound device's connection flag;
// a connected -> disconnected transition resets the reconciliation engine.
func (m *Manager) OnDeviceConnectionStateChanged(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setConnected(connected)
}

func (m *Manager) setConnected(connected bool) {
	doDisconnect := m.deviceConnected && !connected
	m.deviceConnected = connected

	if doDisconnect {
		m.logger.Info("Bound device disconnected")
		if m.stateMgr.Disconnect() {
			m.observer.Disconnected()
		}
	}
}

// OnWatcherStateChanged forwards transport availability to the observer.
// The transport contract allows exactly the two declared states; anything
// else is a bug in the caller.
func (m *Manager) OnWatcherStateChanged(state WatcherState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case WatcherStarted:
		m.logger.Info("Broadcast watcher started")
		m.observer.Available()
	case WatcherStopped:
		m.logger.WithError(err).Warn("Broadcast watcher stopped")
		m.observer.Unavailable()
	default:
		panic(fmt.Sprintf("airpods: unhandled watcher state: %s", state))
	}
}

// SetRSSIMin updates the plausibility filter floor for future packets.
func (m *Manager) SetRSSIMin(rssiMin int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateMgr.OnRSSIMinChanged(rssiMin)
}

// SetAutoEarDetection toggles media control from the in-ear transition.
func (m *Manager) SetAutoEarDetection(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoEarDetection = enabled
}

// CurrentState returns the canonical state, if any, with the display name
// applied.
func (m *Manager) CurrentState() (State, bool) {
	state, ok := m.stateMgr.CurrentState()
	if !ok {
		return State{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	state.DisplayName = m.displayName(state.Model)
	return state, true
}

// handleStateUpdate assigns the display name, notifies the observer and
// derives the lid and both-in-ear transitions. Caller holds the lock.
func (m *Manager) handleStateUpdate(event UpdateEvent) {
	event.Current.DisplayName = m.displayName(event.Current.Model)
	m.observer.UpdateState(event.Current)

	// Lid transition. An absent previous state counts as lid closed, so
	// the very first open snapshot still shows the popup.
	newLid := event.Current.CaseBox.IsLidOpened && event.Current.CaseBox.IsBothPodsInCase
	oldLid := false
	if event.Previous != nil {
		oldLid = event.Previous.CaseBox.IsLidOpened && event.Previous.CaseBox.IsBothPodsInCase
	}
	if oldLid != newLid {
		m.onLidOpened(newLid)
	}

	// Both in ear, only meaningful against a known previous state.
	if event.Previous != nil {
		oldBoth := event.Previous.Pods.Left.IsInEar && event.Previous.Pods.Right.IsInEar
		newBoth := event.Current.Pods.Left.IsInEar && event.Current.Pods.Right.IsInEar
		if oldBoth != newBoth {
			m.onBothInEar(newBoth)
		}
	}
}

func (m *Manager) onLidOpened(opened bool) {
	if opened {
		m.observer.Show()
	} else {
		m.observer.Hide()
	}
}

func (m *Manager) onBothInEar(bothInEar bool) {
	if !m.autoEarDetection {
		m.logger.WithField("bothInEar", bothInEar).Info("Automatic ear detection is disabled, doing nothing")
		return
	}

	if bothInEar {
		m.media.Play()
	} else {
		m.media.Pause()
	}
}

// displayName is the resolved device name when known, else the model's
// default label. Caller holds the lock.
func (m *Manager) displayName(model Model) string {
	if m.deviceName != "" {
		return m.deviceName
	}
	return model.String()
}

// sanitizeDeviceName applies the display-name rules: generic placeholder
// labels are treated as absent and the item-finding suffix is stripped.
func sanitizeDeviceName(name string) string {
	if strings.Contains(name, placeholderName) {
		return ""
	}
	return strings.ReplaceAll(name, findMySuffix, "")
}
