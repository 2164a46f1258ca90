// Package watcher runs the continuous broadcast scan that feeds the
// airpods manager. It owns no accessory state; it converts raw BLE
// advertisements into broadcast records and reports its own lifecycle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/internal/device"
	"github.com/srg/podwatch/internal/devicefactory"
)

// Handler consumes the watcher's output. The airpods.Manager satisfies it.
type Handler interface {
	OnBroadcastReceived(airpods.Broadcast) bool
	OnWatcherStateChanged(state airpods.WatcherState, err error)
}

// Watcher drives a duplicate-allowing BLE scan for accessory broadcasts.
type Watcher struct {
	logger  *logrus.Logger
	handler Handler
}

// NewWatcher creates a broadcast watcher feeding the given handler.
func NewWatcher(logger *logrus.Logger, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Watcher{logger: logger, handler: handler}, nil
}

// Run scans until ctx is cancelled. Started/stopped transitions are
// reported to the handler; a cancelled context is a normal stop, not an
// error.
func (w *Watcher) Run(ctx context.Context) error {
	scanner, err := devicefactory.NewScanner()
	if err != nil {
		w.handler.OnWatcherStateChanged(airpods.WatcherStopped, err)
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	w.logger.Info("Starting broadcast watch...")
	w.handler.OnWatcherStateChanged(airpods.WatcherStarted, nil)

	// Duplicates are the point here: every repeated advertisement is a
	// fresh status report.
	err = scanner.Scan(ctx, true, w.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		w.handler.OnWatcherStateChanged(airpods.WatcherStopped, err)
		return fmt.Errorf("broadcast watch failed: %w", err)
	}

	w.logger.Info("Broadcast watch stopped")
	w.handler.OnWatcherStateChanged(airpods.WatcherStopped, nil)
	return nil
}

// handleAdvertisement converts one raw advertisement and forwards it.
func (w *Watcher) handleAdvertisement(adv device.Advertisement) {
	b := airpods.Broadcast{
		Address:          adv.Addr(),
		RSSI:             int16(adv.RSSI()),
		Timestamp:        time.Now(),
		ManufacturerData: device.SplitManufacturerData(adv.ManufacturerData()),
	}

	if w.handler.OnBroadcastReceived(b) {
		w.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"rssi":    adv.RSSI(),
		}).Debug("Accessory broadcast forwarded")
	}
}
