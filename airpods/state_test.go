package airpods_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/internal/testutils"
)

type StateManagerTestSuite struct {
	suite.Suite

	mgr *airpods.StateManager
}

func (s *StateManagerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.mgr = airpods.NewStateManager(logger)
}

// leftBroadcast returns a builder for a left-pod packet with batteries on
// every group so all four merge groups are populated.
func (s *StateManagerTestSuite) leftBroadcast() *testutils.BroadcastBuilder {
	return testutils.NewBroadcastBuilder().
		WithSide(airpods.SideLeft).
		WithAddress("11:11:11:11:11:11").
		WithRSSI(-40).
		WithLeftBattery(5).
		WithRightBattery(6).
		WithCaseBattery(7)
}

func (s *StateManagerTestSuite) rightBroadcast() *testutils.BroadcastBuilder {
	return testutils.NewBroadcastBuilder().
		WithSide(airpods.SideRight).
		WithAddress("22:22:22:22:22:22").
		WithRSSI(-45).
		WithLeftBattery(5).
		WithRightBattery(6).
		WithCaseBattery(7)
}

func (s *StateManagerTestSuite) TestFirstAcceptedPacketEmitsEvent() {
	event := s.mgr.OnAdvReceived(s.leftBroadcast().BuildAdvertisement())

	s.Require().NotNil(event)
	s.Nil(event.Previous)
	s.Equal(uint8(50), event.Current.Pods.Left.Battery.Value())

	state, ok := s.mgr.CurrentState()
	s.True(ok)
	s.Equal(event.Current, state)
}

func (s *StateManagerTestSuite) TestIdenticalPacketIsSuppressed() {
	adv := s.leftBroadcast().BuildAdvertisement()

	s.Require().NotNil(s.mgr.OnAdvReceived(adv))
	s.Nil(s.mgr.OnAdvReceived(adv), "repeat of an identical packet must not emit")
}

func (s *StateManagerTestSuite) TestMergeFreshnessPicksLaterSnapshot() {
	start := time.Now()
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithModelID(0x0E20).WithTimestamp(start).BuildAdvertisement()))

	event := s.mgr.OnAdvReceived(
		s.rightBroadcast().WithModelID(0x0F20).WithTimestamp(start.Add(time.Second)).BuildAdvertisement())

	s.Require().NotNil(event)
	s.Equal(airpods.ModelAirPods2, event.Current.Model, "the fresher side's model wins")
}

func (s *StateManagerTestSuite) TestMergeSourcesUnavailableGroupFromOtherCache() {
	// The left pod's packet does not know its own battery; the right pod's
	// packet does. The merged left-pod group comes from the right packet.
	start := time.Now()
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithLeftBattery(-1).WithTimestamp(start).BuildAdvertisement()))

	event := s.mgr.OnAdvReceived(
		s.rightBroadcast().WithLeftBattery(4).WithTimestamp(start.Add(time.Second)).BuildAdvertisement())

	s.Require().NotNil(event)
	s.True(event.Current.Pods.Left.Battery.Available())
	s.Equal(uint8(40), event.Current.Pods.Left.Battery.Value())
}

func (s *StateManagerTestSuite) TestMergeLeavesGroupUnavailableWhenNoSourceHasIt() {
	event := s.mgr.OnAdvReceived(
		s.leftBroadcast().WithCaseBattery(-1).BuildAdvertisement())

	s.Require().NotNil(event)
	s.False(event.Current.CaseBox.Battery.Available())
}

func (s *StateManagerTestSuite) TestRejectsBelowRSSIFloor() {
	s.mgr.OnRSSIMinChanged(-70)

	event := s.mgr.OnAdvReceived(s.leftBroadcast().WithRSSI(-80).BuildAdvertisement())

	s.Nil(event)
	_, ok := s.mgr.CurrentState()
	s.False(ok, "a rejected packet must not mutate state")
}

func (s *StateManagerTestSuite) TestAcceptsModestRSSIDriftOnAddressRotation() {
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithRSSI(-40).BuildAdvertisement()))

	// Same side, rotated address, same model, battery deltas within one
	// step, RSSI drift of 20.
	event := s.mgr.OnAdvReceived(s.leftBroadcast().
		WithAddress("33:33:33:33:33:33").
		WithRSSI(-60).
		WithLeftBattery(4).
		BuildAdvertisement())

	s.NotNil(event, "|delta| of 20 dBm is within the plausible bound")
}

func (s *StateManagerTestSuite) TestRejectsLargeRSSIDriftOnAddressRotation() {
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithRSSI(-40).BuildAdvertisement()))
	before, _ := s.mgr.CurrentState()

	event := s.mgr.OnAdvReceived(s.leftBroadcast().
		WithAddress("33:33:33:33:33:33").
		WithRSSI(-100).
		BuildAdvertisement())

	s.Nil(event, "|delta| of 60 dBm exceeds the plausible bound")
	after, ok := s.mgr.CurrentState()
	s.True(ok)
	s.Equal(before, after, "rejection must not mutate the cache")
}

func (s *StateManagerTestSuite) TestRejectsModelMismatchOnAddressRotation() {
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithModelID(0x0E20).BuildAdvertisement()))

	event := s.mgr.OnAdvReceived(s.leftBroadcast().
		WithAddress("33:33:33:33:33:33").
		WithModelID(0x0F20).
		BuildAdvertisement())

	s.Nil(event, "a different model across an address change is never ours")
}

func (s *StateManagerTestSuite) TestRejectsBatteryJumpOnAddressRotation() {
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithLeftBattery(9).BuildAdvertisement()))

	event := s.mgr.OnAdvReceived(s.leftBroadcast().
		WithAddress("33:33:33:33:33:33").
		WithLeftBattery(5).
		BuildAdvertisement())

	s.Nil(event, "a four-step battery drop between consecutive packets is implausible")
}

func (s *StateManagerTestSuite) TestBatteryDeltaIgnoresUnavailableValues() {
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithCaseBattery(9).BuildAdvertisement()))

	// Rotated address, case battery no longer reported: nothing to
	// compare, so the delta rule does not fire.
	event := s.mgr.OnAdvReceived(s.leftBroadcast().
		WithAddress("33:33:33:33:33:33").
		WithCaseBattery(-1).
		BuildAdvertisement())

	s.NotNil(event)
}

func (s *StateManagerTestSuite) TestRejectsLargeRSSIDeltaAgainstOtherSide() {
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithRSSI(-30).BuildAdvertisement()))

	// First packet from the right pod: no same-side cache, but the left
	// cache bounds the correlation.
	event := s.mgr.OnAdvReceived(s.rightBroadcast().WithRSSI(-95).BuildAdvertisement())

	s.Nil(event, "co-located transmitters correlate in signal strength")
}

func (s *StateManagerTestSuite) TestLivenessExpiryNotifiesLostOnce() {
	start := time.Now()
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithTimestamp(start).BuildAdvertisement()))

	deadline := start.Add(airpods.DefaultLostTimeout + time.Second)

	result := s.mgr.ExpireStale(deadline)
	s.True(result.Lost, "first silence window ends in exactly one lost notification")
	s.Nil(result.Event)

	_, ok := s.mgr.CurrentState()
	s.False(ok)

	result = s.mgr.ExpireStale(deadline.Add(airpods.DefaultLostTimeout))
	s.False(result.Lost, "further silence on an already-empty state stays quiet")
}

func (s *StateManagerTestSuite) TestExpireBeforeDeadlineDoesNothing() {
	start := time.Now()
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithTimestamp(start).BuildAdvertisement()))

	result := s.mgr.ExpireStale(start.Add(airpods.DefaultLostTimeout / 2))

	s.False(result.Lost)
	s.Nil(result.Event)
	_, ok := s.mgr.CurrentState()
	s.True(ok)
}

func (s *StateManagerTestSuite) TestPerSideExpiryClearsOnlyThatSide() {
	start := time.Now()
	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.leftBroadcast().WithLeftBattery(5).WithRightBattery(-1).WithTimestamp(start).BuildAdvertisement()))

	s.Require().NotNil(s.mgr.OnAdvReceived(
		s.rightBroadcast().WithLeftBattery(-1).WithRightBattery(6).WithTimestamp(start.Add(time.Second)).BuildAdvertisement()))

	// Past the left deadline, before the right (and lost) deadlines.
	result := s.mgr.ExpireStale(start.Add(airpods.DefaultSideExpiry + time.Second/2))

	s.False(result.Lost)
	s.Require().NotNil(result.Event, "losing the only source of the left battery changes the merged state")
	s.False(result.Event.Current.Pods.Left.Battery.Available())
	s.Equal(uint8(60), result.Event.Current.Pods.Right.Battery.Value())
}

func (s *StateManagerTestSuite) TestDisconnectReportsWhetherStateExisted() {
	s.False(s.mgr.Disconnect(), "empty state never notifies")

	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().BuildAdvertisement()))
	s.True(s.mgr.Disconnect())
	s.False(s.mgr.Disconnect(), "second reset of an already-empty state stays quiet")
}

func (s *StateManagerTestSuite) TestRSSIFloorHasNoRetroactiveEffect() {
	s.Require().NotNil(s.mgr.OnAdvReceived(s.leftBroadcast().WithRSSI(-75).BuildAdvertisement()))

	s.mgr.OnRSSIMinChanged(-50)

	state, ok := s.mgr.CurrentState()
	s.True(ok)
	s.Equal(uint8(50), state.Pods.Left.Battery.Value(), "cached entries survive a floor change")
}

func TestStateManagerTestSuite(t *testing.T) {
	suite.Run(t, new(StateManagerTestSuite))
}
