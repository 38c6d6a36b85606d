// Package retry provides exponential backoff helpers.
//
// Backoff is the bare delay sequence. The stream loop owns one and calls Next after
// every failed connection and Reset once connected:
//
//	b := retry.NewBackoff(2*time.Second, 30*time.Second, 2.0)
//	b.Next() // 2s
//	b.Next() // 4s
//	b.Next() // 8s
//	b.Next() // 16s
//	b.Next() // 30s
//	b.Next() // 30s
//	b.Reset()
//
// Do and DoWithResult wrap a bounded number of attempts around the same sequence,
// with optional jitter. The serial channel opens its port through DoWithResult:
//
//	port, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (serial.Port, error) {
//	    return serial.Open(name, mode)
//	})
//
// Sleep waits for a duration or until the context is done. All waits in this package
// stop immediately on cancellation.
package retry
