package airpods

import "github.com/sirupsen/logrus"

// maxRSSIDelta bounds how far the signal strength may drift between two
// packets attributed to the same co-located pair of transmitters.
const maxRSSIDelta = 50

// maxBatteryStepDelta bounds the battery change, in 10% protocol steps,
// between consecutive accepted packets within a short time window.
const maxBatteryStepDelta = 1

// isPlausibleAdv decides whether an incoming packet can be trusted to come
// from the device whose packets populate the side caches. The broadcast
// address rotates and the payload is not authenticated, so this bounds the
// drift between consecutive frames instead of proving identity.
//
// Rejections are logged at warning level with the failing rule and are not
// errors; the packet is simply dropped.
func isPlausibleAdv(log logrus.FieldLogger, adv Advertisement, rssiMin int16, same, other *sideCache) bool {
	if adv.RSSI() < rssiMin {
		log.WithFields(logrus.Fields{
			"rssi": adv.RSSI(),
			"min":  rssiMin,
		}).Warn("Advertisement rejected: RSSI below the configured floor")
		return false
	}

	state := adv.State()

	// The random non-resolvable address of our device changed, or the
	// packet came from a device that is not ours.
	if same != nil && same.adv.Address() != adv.Address() {
		lastState := same.adv.State()

		if state.Model != lastState.Model {
			log.WithFields(logrus.Fields{
				"new": state.Model,
				"old": lastState.Model,
			}).Warn("Advertisement rejected: model mismatch across address change")
			return false
		}

		leftDiff := batteryStepDelta(state.Pods.Left.Battery, lastState.Pods.Left.Battery)
		rightDiff := batteryStepDelta(state.Pods.Right.Battery, lastState.Pods.Right.Battery)
		caseDiff := batteryStepDelta(state.CaseBox.Battery, lastState.CaseBox.Battery)

		// The battery moves in steps of one, so two packets in a short
		// window cannot differ by more than one step.
		if leftDiff > maxBatteryStepDelta || rightDiff > maxBatteryStepDelta || caseDiff > maxBatteryStepDelta {
			log.WithFields(logrus.Fields{
				"left":    leftDiff,
				"right":   rightDiff,
				"case":    caseDiff,
				"maxStep": maxBatteryStepDelta,
			}).Warn("Advertisement rejected: implausible battery delta across address change")
			return false
		}

		if diff := rssiDelta(adv.RSSI(), same.adv.RSSI()); diff > maxRSSIDelta {
			log.WithField("rssiDiff", diff).Warn("Advertisement rejected: same-side RSSI delta too large")
			return false
		}

		log.Warn("Address changed, but it might still be the same device")
	}

	if other != nil {
		if diff := rssiDelta(adv.RSSI(), other.adv.RSSI()); diff > maxRSSIDelta {
			log.WithField("rssiDiff", diff).Warn("Advertisement rejected: other-side RSSI delta too large")
			return false
		}
	}

	return true
}

// batteryStepDelta returns the absolute difference in protocol steps, or 0
// when either value is unavailable (nothing to compare).
func batteryStepDelta(a, b Battery) int {
	if !a.Available() || !b.Available() {
		return 0
	}
	diff := int(a.Steps()) - int(b.Steps())
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func rssiDelta(a, b int16) int {
	diff := int(a) - int(b)
	if diff < 0 {
		diff = -diff
	}
	return diff
}
