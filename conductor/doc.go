// Package conductor pins the interleaving of several concurrently running
// goroutines to a shared logical clock, so tests of racy or blocking code
// produce reproducible orderings instead of flaky, timing-dependent results.
//
// A Conductor owns a Clock whose value only moves forward in whole "beats".
// Test code registers named thread bodies before conducting starts; each body
// receives a Worker it can use to block until the clock reaches a given beat.
// Conduct starts every registered body, then polls their states from the
// calling goroutine: when every live thread is waiting on a future beat (or
// has sat still long enough to be presumed blocked elsewhere) the clock
// advances by one, releasing every thread waiting on the now-satisfied beat
// together. The relative order among threads released at the same beat is
// left to the Go scheduler; the conductor only promises beat-granularity
// ordering.
//
// A typical use:
//
//	c := conductor.New(conductor.Config{Log: logger})
//	c.Thread("producer", func(w *conductor.Worker) error {
//		queue.Put(1)
//		return nil
//	})
//	c.Thread("consumer", func(w *conductor.Worker) error {
//		if err := w.WaitForBeat(1); err != nil {
//			return err
//		}
//		got := queue.Take()
//		...
//		return nil
//	})
//	err := c.Conduct(context.Background())
//
// The first failure (by registration order) returned or panicked by any body
// becomes the result of Conduct; WithClockFrozen suspends automatic beat
// advancement so timed blocking operations can be asserted deterministically.
package conductor
