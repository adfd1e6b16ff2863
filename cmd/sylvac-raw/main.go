// BLE Raw Data Debug - shows raw measurement notifications from an SY289 caliper
package main

import (
	"context"
	"encoding/hex"
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

func main() {
	fmt.Println("BLE Raw Data Debug (Detailed)")
	fmt.Println("==============================")
	fmt.Println()

	serviceUUID, err := bluetooth.ParseUUID(protocol.ServiceUUID)
	if err != nil {
		fmt.Printf("Invalid service UUID: %v\n", err)
		os.Exit(1)
	}
	measurementUUID, err := bluetooth.ParseUUID(protocol.MeasurementCharUUID)
	if err != nil {
		fmt.Printf("Invalid characteristic UUID: %v\n", err)
		os.Exit(1)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Failed to enable adapter: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Escaneando dispositivos BLE cercanos...")

	var targetAddr bluetooth.Address
	var targetName string
	found := make(chan struct{})
	var foundOnce sync.Once

	go func() {
		adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if ble.MatchName(name, protocol.DefaultNamePattern) {
				foundOnce.Do(func() {
					targetAddr = result.Address
					targetName = name
					close(found)
				})
			}
		})
	}()

	select {
	case <-found:
		adapter.StopScan()
	case <-time.After(10 * time.Second):
		adapter.StopScan()
		fmt.Printf("Dispositivo %s no encontrado.\n", protocol.DefaultNamePattern)
		os.Exit(1)
	}

	// Give time for StopScan to take effect
	time.Sleep(100 * time.Millisecond)

	fmt.Printf("Found: %s (%s)\n", targetName, targetAddr.String())
	fmt.Println()

	fmt.Println("Connecting...")
	device, err := adapter.Connect(targetAddr, bluetooth.ConnectionParams{})
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Conectado a %s - %s\n", targetName, targetAddr.String())
	fmt.Println()

	// Discover ALL services
	fmt.Println("Discovering services...")
	services, err := device.DiscoverServices(nil)
	if err != nil {
		fmt.Printf("Failed to discover services: %v\n", err)
		device.Disconnect()
		os.Exit(1)
	}

	fmt.Printf("Found %d services:\n", len(services))
	var simpleData *bluetooth.DeviceService
	for i := range services {
		svc := services[i]
		marker := ""
		if svc.UUID() == serviceUUID {
			simpleData = &services[i]
			marker = "  <- simple-data"
		}
		fmt.Printf("  [%d] %s%s\n", i, svc.UUID().String(), marker)
	}
	fmt.Println()

	if simpleData == nil {
		fmt.Println("Sylvac simple-data service not found!")
		device.Disconnect()
		os.Exit(1)
	}

	fmt.Println("Discovering characteristics...")
	chars, err := simpleData.DiscoverCharacteristics(nil)
	if err != nil {
		fmt.Printf("Failed to discover characteristics: %v\n", err)
		device.Disconnect()
		os.Exit(1)
	}

	fmt.Printf("Found %d characteristics:\n", len(chars))
	var measurementChar *bluetooth.DeviceCharacteristic
	for i := range chars {
		ch := chars[i]
		fmt.Printf("  [%d] %s\n", i, ch.UUID().String())
		if ch.UUID() == measurementUUID {
			measurementChar = &chars[i]
			fmt.Printf("       ^ This is the measurement (notify)\n")
		}
	}
	fmt.Println()

	if measurementChar == nil {
		fmt.Println("Measurement characteristic not found!")
		device.Disconnect()
		os.Exit(1)
	}

	// Current value, if the caliper allows reads
	buf := make([]byte, 20)
	if n, err := measurementChar.Read(buf); err == nil {
		fmt.Printf("Initial read: %s\n", describe(buf[:n]))
		fmt.Println()
	}

	fmt.Println("Enabling notifications on measurement characteristic...")
	err = measurementChar.EnableNotifications(func(data []byte) {
		fmt.Printf("[RAW] %s\n", describe(data))
	})
	if err != nil {
		fmt.Printf("Failed to enable notifications: %v\n", err)
		device.Disconnect()
		os.Exit(1)
	}
	fmt.Println("Notifications enabled!")
	fmt.Println()

	fmt.Println("Move the slider or press the data button to see values...")
	fmt.Println("Press Ctrl+C to exit")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	select {
	case <-sigChan:
		fmt.Println("\nDisconnecting...")
	case <-ctx.Done():
		fmt.Println("\nTimeout, disconnecting...")
	}

	device.Disconnect()
}

// describe renders a payload as hex plus its decoded value.
func describe(data []byte) string {
	var b strings.Builder
	b.WriteString(hex.EncodeToString(data))

	um, err := protocol.DecodeMeasurement(data)
	if err != nil {
		fmt.Fprintf(&b, "  (%v)", err)
		return b.String()
	}
	mm := protocol.Round3(protocol.MicrometresToMillimetres(um))
	fmt.Fprintf(&b, "  %d µm = %.3f mm", um, mm)
	return b.String()
}
