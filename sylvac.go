// Package sylvac provides a Go library for collecting measurements from
// Sylvac SY289 calipers via Bluetooth Low Energy (BLE).
//
// # Features
//
//   - Device discovery by advertised name
//   - Live readings from measurement notifications
//   - Automatic reconnection after link loss
//   - Fixed-count acquisition at a fixed interval
//
// # Quick Start
//
// Connect to the first caliper found and record ten samples, one per second:
//
//	ctx := context.Background()
//	caliper, err := sylvac.ConnectFirst(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer caliper.Close()
//
//	rec := sylvac.NewRecorder()
//	rec.OnMeasurement(func(m sylvac.Measurement) {
//	    fmt.Printf("Medición %d: %.3f mm\n", m.Number, m.Value)
//	})
//
//	if err := rec.Acquire(ctx, caliper, 10, time.Second); err != nil {
//	    log.Fatal(err)
//	}
//
// # Sources
//
// Recorder.Acquire reads from any Source. A connected Caliper is a Source;
// so is a plain channel wrapped with ChanSource, which makes the
// acquisition loop usable without hardware:
//
//	ch := make(chan sylvac.Reading, 1)
//	go func() {
//	    ch <- sylvac.NewReading(12345, time.Now())
//	}()
//	rec.Acquire(ctx, sylvac.ChanSource(ch), 1, 0)
package sylvac
