package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ThroughputResult holds one store's concurrent-run measurement.
type ThroughputResult struct {
	Store     string
	Kind      StoreKind
	Clients   int
	PerClient int
	Completed uint64
	Elapsed   time.Duration
}

// OpsPerSec is the aggregate rate across all clients.
func (r ThroughputResult) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Completed) / r.Elapsed.Seconds()
}

// MeasureConcurrent runs one goroutine per simulated client, each owning a
// connection checked out for the whole run. Elapsed time spans from just
// before the first client starts until the last one finishes, so the rate
// reflects real wall-clock throughput including lock waits.
//
// A client that fails stops contributing but the others run to completion;
// the partial count comes back alongside the joined errors.
func MeasureConcurrent(ctx context.Context, store *Store, clients, perClient int, op ClientWorkload) (ThroughputResult, error) {
	var (
		wg        sync.WaitGroup
		completed uint64
	)
	workerErrs := make([]error, clients)

	start := time.Now()
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			conn, err := store.Conn(ctx)
			if err != nil {
				workerErrs[client] = fmt.Errorf("client %d: acquire connection: %w", client, err)
				return
			}
			defer conn.Close()

			for i := 0; i < perClient; i++ {
				if err := op(ctx, conn); err != nil {
					workerErrs[client] = fmt.Errorf("client %d: query %d: %w", client, i+1, err)
					return
				}
				atomic.AddUint64(&completed, 1)
			}
		}(c)
	}
	wg.Wait()

	return ThroughputResult{
		Store:     store.Name(),
		Kind:      store.Kind(),
		Clients:   clients,
		PerClient: perClient,
		Completed: atomic.LoadUint64(&completed),
		Elapsed:   time.Since(start),
	}, errors.Join(workerErrs...)
}
