package watcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/internal/device"
	"github.com/srg/podwatch/internal/devicefactory"
	"github.com/srg/podwatch/internal/testutils"
	"github.com/srg/podwatch/watcher"
)

// recordingHandler captures everything the watcher forwards.
type recordingHandler struct {
	mu         sync.Mutex
	broadcasts []airpods.Broadcast
	states     []airpods.WatcherState
	errs       []error
}

func (h *recordingHandler) OnBroadcastReceived(b airpods.Broadcast) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, b)
	return airpods.IsDesiredBroadcast(b)
}

func (h *recordingHandler) OnWatcherStateChanged(state airpods.WatcherState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
	h.errs = append(h.errs, err)
}

// withFakeScanner swaps the scanner factory for the test's lifetime.
func withFakeScanner(t *testing.T, fake *testutils.FakeScanner) {
	orig := devicefactory.NewScanner
	devicefactory.NewScanner = func() (device.Scanner, error) { return fake, nil }
	t.Cleanup(func() { devicefactory.NewScanner = orig })
}

func TestWatcherRequiresHandler(t *testing.T) {
	_, err := watcher.NewWatcher(logrus.New(), nil)
	assert.Error(t, err)
}

func TestWatcherForwardsAccessoryBroadcasts(t *testing.T) {
	payload := testutils.NewBroadcastBuilder().
		WithLeftBattery(5).
		Build().ManufacturerData[airpods.VendorID]

	fake := &testutils.FakeScanner{
		Advertisements: []device.Advertisement{
			testutils.FakeAdvertisementFromBroadcastPayload("11:22:33:44:55:66", -48, airpods.VendorID, payload),
			testutils.FakeAdvertisement{Address: "AA:AA:AA:AA:AA:AA", Signal: -70, ManufData: []byte{0x4C, 0x00, 0x01}},
		},
	}
	withFakeScanner(t, fake)

	handler := &recordingHandler{}
	w, err := watcher.NewWatcher(logrus.New(), handler)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	require.Len(t, handler.broadcasts, 2)

	first := handler.broadcasts[0]
	assert.Equal(t, "11:22:33:44:55:66", first.Address)
	assert.Equal(t, int16(-48), first.RSSI)
	assert.False(t, first.Timestamp.IsZero())
	assert.True(t, airpods.IsDesiredBroadcast(first))

	assert.False(t, airpods.IsDesiredBroadcast(handler.broadcasts[1]))
}

func TestWatcherReportsLifecycle(t *testing.T) {
	withFakeScanner(t, &testutils.FakeScanner{})

	handler := &recordingHandler{}
	w, err := watcher.NewWatcher(logrus.New(), handler)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx), "a cancelled context is a normal stop")

	require.Equal(t, []airpods.WatcherState{airpods.WatcherStarted, airpods.WatcherStopped}, handler.states)
	assert.NoError(t, handler.errs[1])
}

func TestWatcherReportsScanFailure(t *testing.T) {
	scanErr := errors.New("adapter gone")
	withFakeScanner(t, &testutils.FakeScanner{Err: scanErr})

	handler := &recordingHandler{}
	w, err := watcher.NewWatcher(logrus.New(), handler)
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, scanErr)

	require.Equal(t, []airpods.WatcherState{airpods.WatcherStarted, airpods.WatcherStopped}, handler.states)
	assert.ErrorIs(t, handler.errs[1], scanErr)
}
