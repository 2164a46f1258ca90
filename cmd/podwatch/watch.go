package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/directory"
	"github.com/srg/podwatch/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch earbud status broadcasts",
	Long: `Continuously watch accessory status broadcasts and print every
material state change.

The watcher only trusts broadcasts while the bound device is connected, so
pass the paired device's address with --device. Without --device the
watcher runs unbound and reports recognized-but-ignored packets at info
level.`,
	RunE: runWatch,
}

var (
	watchDevice       string
	watchDeviceName   string
	watchRSSIMin      int16
	watchEarDetection bool
	watchDuration     time.Duration
)

func init() {
	watchCmd.Flags().StringVarP(&watchDevice, "device", "d", "", "Address of the paired accessory to bind")
	watchCmd.Flags().StringVar(&watchDeviceName, "name", "", "Display name of the bound device")
	watchCmd.Flags().Int16Var(&watchRSSIMin, "rssi-min", -80, "Drop broadcasts weaker than this RSSI floor (dBm)")
	watchCmd.Flags().BoolVar(&watchEarDetection, "ear-detection", true, "Derive media play/pause from the both-in-ear transition")
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "Watch duration (0 for indefinite)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := airpods.DefaultOptions()
	opts.RSSIMin = watchRSSIMin
	opts.AutoEarDetection = watchEarDetection

	observer := newConsoleObserver(cmd.OutOrStdout())
	defer observer.Close()

	dir := directory.NewDirectory(logger)
	manager := airpods.NewManager(logger, observer, consoleMedia{out: observer}, dir, opts)

	// The OS pairing store is outside this program; a device passed on the
	// command line is registered as bound and connected.
	if watchDevice != "" {
		dev := directory.NewPairedDevice(watchDevice, watchDeviceName, airpods.VendorID, 0)
		dev.SetConnected(true)
		dir.Register(dev)
		manager.OnBoundDeviceChanged(watchDevice)
	}

	w, err := watcher.NewWatcher(logger, manager)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if watchDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, watchDuration)
		defer cancel()
	}

	manager.Start(ctx)
	defer manager.Stop()

	return w.Run(ctx)
}
