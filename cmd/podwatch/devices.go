package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/podwatch/airpods"
	"github.com/srg/podwatch/internal/device"
	"github.com/srg/podwatch/internal/devicefactory"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Discover nearby broadcasting accessories",
	Long: `Scan for accessory status broadcasts and list the devices seen.

Broadcast addresses rotate, so the same physical pair can appear under
several addresses over a long scan; each row is one address with its
latest decoded status.`,
	RunE: runDevices,
}

var devicesDuration time.Duration

func init() {
	devicesCmd.Flags().DurationVarP(&devicesDuration, "duration", "d", 10*time.Second, "Scan duration")
}

// discoveredAccessory is one observed broadcast address with its latest
// decoded status.
type discoveredAccessory struct {
	address string
	rssi    int16
	state   airpods.AdvState
}

func runDevices(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	scanner, err := devicefactory.NewScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	logger.WithField("duration", devicesDuration).Info("Scanning for accessory broadcasts")

	var mu sync.Mutex
	seen := make(map[string]discoveredAccessory)

	ctx, cancel := context.WithTimeout(cmd.Context(), devicesDuration)
	defer cancel()

	err = scanner.Scan(ctx, true, func(adv device.Advertisement) {
		b := airpods.Broadcast{
			Address:          adv.Addr(),
			RSSI:             int16(adv.RSSI()),
			Timestamp:        time.Now(),
			ManufacturerData: device.SplitManufacturerData(adv.ManufacturerData()),
		}
		if !airpods.IsDesiredBroadcast(b) {
			return
		}
		decoded := airpods.NewAdvertisement(b)

		mu.Lock()
		seen[decoded.Address()] = discoveredAccessory{
			address: decoded.Address(),
			rssi:    decoded.RSSI(),
			state:   decoded.State(),
		}
		mu.Unlock()
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}

	return printAccessories(cmd, seen)
}

func printAccessories(cmd *cobra.Command, seen map[string]discoveredAccessory) error {
	if len(seen) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accessory broadcasts seen.")
		return nil
	}

	accessories := make([]discoveredAccessory, 0, len(seen))
	for _, acc := range seen {
		accessories = append(accessories, acc)
	}
	sort.Slice(accessories, func(i, j int) bool {
		return accessories[i].rssi > accessories[j].rssi
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tADDRESS\tRSSI\tSIDE\tL\tR\tCASE\tLID")
	for _, acc := range accessories {
		lid := ""
		if acc.state.CaseBox.IsLidOpened {
			lid = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			acc.state.Model,
			acc.address,
			acc.rssi,
			acc.state.Side,
			acc.state.Pods.Left.Battery,
			acc.state.Pods.Right.Battery,
			acc.state.CaseBox.Battery,
			lid)
	}
	return w.Flush()
}
