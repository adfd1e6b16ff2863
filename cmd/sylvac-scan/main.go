// BLE Debug Scanner - lists every advertising BLE device to help identify the caliper
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/ble"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

const scanDuration = 60 * time.Second

func main() {
	fmt.Println("BLE Debug Scanner for Sylvac calipers")
	fmt.Println("=====================================")
	fmt.Println()
	fmt.Println("Make sure the caliper is not paired with another host, then move the")
	fmt.Println("slider to wake it up.")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop scanning...")
	fmt.Println()

	serviceUUID, err := bluetooth.ParseUUID(protocol.ServiceUUID)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		fmt.Printf("ERROR: Failed to enable Bluetooth adapter: %v\n", err)
		fmt.Println()
		fmt.Println("Try: System Settings > Privacy & Security > Bluetooth")
		fmt.Println("     Add Terminal (or your terminal app) to the allowed list")
		os.Exit(1)
	}

	fmt.Printf("Bluetooth adapter enabled. Scanning for %s...\n", scanDuration)
	fmt.Println()
	fmt.Printf("%-40s %-25s %-6s %s\n", "ADDRESS/UUID", "NAME", "RSSI", "NOTES")
	fmt.Println(strings.Repeat("-", 90))

	var mu sync.Mutex
	seen := make(map[string]bool)
	found := false

	stop := func(reason string) {
		mu.Lock()
		ok := found
		mu.Unlock()

		fmt.Println()
		if reason != "" {
			fmt.Println(reason)
		}
		printSummary(ok)
		adapter.StopScan()
		os.Exit(0)
	}

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		stop("")
	}()

	time.AfterFunc(scanDuration, func() {
		stop(fmt.Sprintf("Scan timeout (%s).", scanDuration))
	})

	err = adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()

		mu.Lock()
		defer mu.Unlock()

		if seen[addr] {
			return
		}
		seen[addr] = true

		name := result.LocalName()
		notes := ""

		if ble.MatchName(name, protocol.DefaultNamePattern) {
			notes = "*** SY289 FOUND! ***"
			found = true
		}

		if result.AdvertisementPayload.HasServiceUUID(serviceUUID) {
			notes = "*** SYLVAC (by UUID)! ***"
			found = true
		}

		if name == "" {
			name = "(no name)"
		}

		// Only show named devices or potential calipers to reduce noise
		if name != "(no name)" || notes != "" {
			fmt.Printf("%-40s %-25s %-6d %s\n", addr, truncate(name, 25), result.RSSI, notes)
		}
	})

	if err != nil {
		fmt.Printf("ERROR: Scan failed: %v\n", err)
		os.Exit(1)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func printSummary(found bool) {
	fmt.Println()
	if found {
		fmt.Println("SUCCESS: a Sylvac caliper was detected!")
		fmt.Println()
		fmt.Println("Now run: sylvac measure -n 10 -i 1")
	} else {
		fmt.Println("No Sylvac caliper was detected.")
		fmt.Println()
		fmt.Println("Troubleshooting:")
		fmt.Println("  1. Make sure the caliper is NOT connected to another host")
		fmt.Println("  2. Move the slider to wake it up")
		fmt.Println("  3. Check that Bluetooth is switched on in the caliper menu")
		fmt.Println("  4. Try moving closer to this computer")
		fmt.Println("  5. On Linux, try running with sudo")
	}
}
