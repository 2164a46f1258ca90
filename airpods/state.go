package airpods

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLostTimeout clears everything after this long without an
	// accepted packet from either side.
	DefaultLostTimeout = 10 * time.Second

	// DefaultSideExpiry clears one side's cache after this long without an
	// accepted packet from that side.
	DefaultSideExpiry = 10 * time.Second
)

// sideCache is the last accepted packet for one side plus its receipt time.
type sideCache struct {
	adv Advertisement
	at  time.Time
}

// ExpiryResult is the outcome of an ExpireStale pass.
type ExpiryResult struct {
	// Event is set when a partial expiry changed the merged state.
	Event *UpdateEvent
	// Lost is set when a full reset happened while a canonical state
	// existed; the caller should emit exactly one lost notification.
	Lost bool
}

// StateManager reconciles the two per-side packet caches into one canonical
// State, suppressing no-op updates. It exclusively owns both caches and the
// canonical state; staleness is driven by deadlines that the owner checks
// via ExpireStale on a periodic tick.
//
// Safe for concurrent use. Callers that embed it under their own lock must
// keep the lock ordering owner -> StateManager; the StateManager never
// calls back out.
type StateManager struct {
	mu sync.Mutex

	logger logrus.FieldLogger

	rssiMin    int16
	lostAfter  time.Duration
	expireSide time.Duration

	left, right *sideCache
	canonical   *State

	lostDeadline  time.Time
	leftDeadline  time.Time
	rightDeadline time.Time
}

// NewStateManager creates a reconciliation engine with the default
// staleness windows and no RSSI floor.
func NewStateManager(logger *logrus.Logger) *StateManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &StateManager{
		logger:     logger.WithField("component", "statemgr"),
		rssiMin:    -128,
		lostAfter:  DefaultLostTimeout,
		expireSide: DefaultSideExpiry,
	}
}

// SetTimeouts overrides the lost and per-side staleness windows. Intended
// for configuration at construction time; takes effect on the next
// accepted packet.
func (m *StateManager) SetTimeouts(lost, side time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lost > 0 {
		m.lostAfter = lost
	}
	if side > 0 {
		m.expireSide = side
	}
}

// OnRSSIMinChanged updates the floor used by future accept decisions.
// It has no retroactive effect on cached entries.
func (m *StateManager) OnRSSIMinChanged(rssiMin int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rssiMin = rssiMin
}

// CurrentState returns the canonical state, if any.
func (m *StateManager) CurrentState() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canonical == nil {
		return State{}, false
	}
	return *m.canonical, true
}

// OnAdvReceived runs the plausibility filter against the current caches,
// stores the packet if accepted, and returns an UpdateEvent when the merged
// state materially changed. A rejected or no-op packet returns nil.
func (m *StateManager) OnAdvReceived(adv Advertisement) *UpdateEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	same, other := m.left, m.right
	if adv.State().Side == SideRight {
		same, other = m.right, m.left
	}

	if !isPlausibleAdv(m.logger, adv, m.rssiMin, same, other) {
		return nil
	}

	// Receipt time is the transport timestamp, so freshness arbitration
	// and the deadlines share one clock with the packet stream.
	now := adv.Timestamp()
	if now.IsZero() {
		now = time.Now()
	}
	m.storeAdv(adv, now)
	return m.updateState()
}

// storeAdv caches the packet for its side and pushes the side and lost
// deadlines forward.
func (m *StateManager) storeAdv(adv Advertisement, now time.Time) {
	entry := &sideCache{adv: adv, at: now}

	m.lostDeadline = now.Add(m.lostAfter)
	if adv.State().Side == SideLeft {
		m.left = entry
		m.leftDeadline = now.Add(m.expireSide)
	} else {
		m.right = entry
		m.rightDeadline = now.Add(m.expireSide)
	}
}

// ExpireStale applies every deadline that has passed by now. A full lost
// expiry clears everything; a per-side expiry clears that side only and
// re-merges, emitting an event if the merged state changed.
func (m *StateManager) ExpireStale(now time.Time) ExpiryResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lostDeadline.IsZero() && !now.Before(m.lostDeadline) {
		if m.canonical != nil {
			m.logger.Info("Device is lost")
		}
		return ExpiryResult{Lost: m.resetAll()}
	}

	expired := false
	if m.left != nil && !m.leftDeadline.IsZero() && !now.Before(m.leftDeadline) {
		m.logger.WithField("side", SideLeft).Info("Side cache expired")
		m.left = nil
		m.leftDeadline = time.Time{}
		expired = true
	}
	if m.right != nil && !m.rightDeadline.IsZero() && !now.Before(m.rightDeadline) {
		m.logger.WithField("side", SideRight).Info("Side cache expired")
		m.right = nil
		m.rightDeadline = time.Time{}
		expired = true
	}
	if !expired {
		return ExpiryResult{}
	}

	if m.left == nil && m.right == nil {
		// Both sides went silent; fold into a full reset so the canonical
		// state never outlives every cache that produced it.
		return ExpiryResult{Lost: m.resetAll()}
	}
	return ExpiryResult{Event: m.updateState()}
}

// Disconnect clears all cached state. Returns true when a canonical state
// existed, so the owner notifies "disconnected" exactly once.
func (m *StateManager) Disconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Disconnect")
	return m.resetAll()
}

// resetAll clears both caches, every deadline and the canonical state.
// Reports whether a canonical state existed beforehand.
func (m *StateManager) resetAll() bool {
	had := m.canonical != nil

	m.left = nil
	m.right = nil
	m.canonical = nil
	m.lostDeadline = time.Time{}
	m.leftDeadline = time.Time{}
	m.rightDeadline = time.Time{}

	return had
}

// updateState recomputes the merged state and returns an UpdateEvent when
// it differs from the canonical one. Caller holds the lock.
func (m *StateManager) updateState() *UpdateEvent {
	merged, ok := m.mergedState()
	if !ok {
		return nil
	}
	if m.canonical != nil && merged == *m.canonical {
		return nil
	}

	previous := m.canonical
	m.canonical = &merged
	return &UpdateEvent{Previous: previous, Current: merged}
}

// mergedState merges the side caches using per-field-group freshness
// arbitration: for each group the snapshot with the later receipt time
// wins when both carry a usable value; a group with no usable source stays
// at its zero ("unavailable") value. Either pod's packet may carry the
// full pair + case status, so a group can be sourced from the packet of
// the opposite physical side.
func (m *StateManager) mergedState() (State, bool) {
	if m.left == nil && m.right == nil {
		return State{}, false
	}

	var s State
	if model, ok := pickGroup(m.left, m.right,
		func(a AdvState) bool { return a.Model != ModelUnknown },
		func(a AdvState) Model { return a.Model },
	); ok {
		s.Model = model
	}
	if pod, ok := pickGroup(m.left, m.right,
		func(a AdvState) bool { return a.Pods.Left.Battery.Available() },
		func(a AdvState) Pod { return a.Pods.Left },
	); ok {
		s.Pods.Left = pod
	}
	if pod, ok := pickGroup(m.left, m.right,
		func(a AdvState) bool { return a.Pods.Right.Battery.Available() },
		func(a AdvState) Pod { return a.Pods.Right },
	); ok {
		s.Pods.Right = pod
	}
	if caseBox, ok := pickGroup(m.left, m.right,
		func(a AdvState) bool { return a.CaseBox.Battery.Available() },
		func(a AdvState) CaseBox { return a.CaseBox },
	); ok {
		s.CaseBox = caseBox
	}
	return s, true
}

// pickGroup selects one field group from the fresher of the two caches
// whose snapshot carries a usable value for it.
func pickGroup[T any](left, right *sideCache, usable func(AdvState) bool, get func(AdvState) T) (T, bool) {
	leftOK := left != nil && usable(left.adv.State())
	rightOK := right != nil && usable(right.adv.State())

	switch {
	case leftOK && rightOK:
		if left.at.After(right.at) {
			return get(left.adv.State()), true
		}
		return get(right.adv.State()), true
	case leftOK:
		return get(left.adv.State()), true
	case rightOK:
		return get(right.adv.State()), true
	default:
		var zero T
		return zero, false
	}
}
