// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stress

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/locks"
	"github.com/kolkov/qsync/internal/thread"
)

// ErrInvariant is returned when a scenario observes a broken invariant.
var ErrInvariant = errors.New("invariant violated")

// Scenario is one named workload with the invariant it checks.
type Scenario struct {
	Name        string
	Description string

	// Run drives the workload and returns the number of completed
	// operations.
	Run func(ctx context.Context, env *Env) (int64, error)
}

var scenarios = []Scenario{
	{"mutex", "reentrant mutex guarding a plain counter", runMutex},
	{"rwmutex", "readers and writers with write-to-read downgrades", runRWMutex},
	{"semaphore", "bounded concurrency with multi-permit acquires", runSemaphore},
	{"latch", "one countdown latch per round, all workers meet", runLatch},
	{"barrier", "cyclic barrier generations with a trip action", runBarrier},
	{"condition", "bounded buffer on a mutex with two conditions", runCondition},
	{"cancel-churn", "timed and cancelled acquires against a busy holder", runCancelChurn},
}

// Scenarios returns every scenario in run order.
func Scenarios() []Scenario {
	return slices.Clone(scenarios)
}

// Names returns the scenario names in run order.
func Names() []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	return names
}

// Lookup returns the scenario called name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

func runMutex(ctx context.Context, env *Env) (int64, error) {
	m := locks.NewMutex(env.Fair, env.options("mutex")...)
	env.track("mutex", m.Synchronizer())

	var (
		counter int64 // guarded by m
		inside  atomic.Int32
	)
	g, ctx := errgroup.WithContext(ctx)
	for range env.Workers {
		g.Go(func() error {
			defer thread.Forget()
			for i := range env.Iterations {
				if err := m.LockContext(ctx); err != nil {
					return err
				}
				if n := inside.Add(1); n != 1 {
					_ = m.Unlock()
					return violation("%d goroutines inside the mutex", n)
				}
				if i%16 == 0 {
					if err := m.Lock(); err != nil {
						return err
					}
					if h := m.HoldCount(); h != 2 {
						return violation("hold count %d after reentrant lock", h)
					}
					if err := m.Unlock(); err != nil {
						return err
					}
				}
				counter++
				inside.Add(-1)
				if err := m.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counter, err
	}
	if want := int64(env.Workers * env.Iterations); counter != want {
		return counter, violation("counter is %d, want %d", counter, want)
	}
	return counter, nil
}

func runRWMutex(ctx context.Context, env *Env) (int64, error) {
	rw := locks.NewRWMutex(env.Fair, env.options("rwmutex")...)
	env.track("rwmutex", rw.Synchronizer())

	writers := max(1, env.Workers/4)
	var (
		value   int64 // guarded by rw
		readers atomic.Int32
		writing atomic.Int32
		ops     atomic.Int64
	)

	write := func(i int) error {
		if err := rw.Lock(); err != nil {
			return err
		}
		if n := writing.Add(1); n != 1 || readers.Load() != 0 {
			_ = rw.Unlock()
			return violation("writer entered with %d writers and %d readers", n, readers.Load())
		}
		value++
		if i%8 != 0 {
			writing.Add(-1)
			return rw.Unlock()
		}

		// Downgrade: take the read lock before giving up the write lock.
		if err := rw.RLock(); err != nil {
			return err
		}
		writing.Add(-1)
		readers.Add(1)
		if err := rw.Unlock(); err != nil {
			return err
		}
		readers.Add(-1)
		if writing.Load() != 0 {
			_ = rw.RUnlock()
			return violation("writer entered while a downgraded reader held the lock")
		}
		return rw.RUnlock()
	}

	read := func() error {
		if err := rw.RLock(); err != nil {
			return err
		}
		readers.Add(1)
		if writing.Load() != 0 {
			readers.Add(-1)
			_ = rw.RUnlock()
			return violation("reader entered while a writer held the lock")
		}
		_ = value
		readers.Add(-1)
		return rw.RUnlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := range env.Workers {
		g.Go(func() error {
			defer thread.Forget()
			for i := range env.Iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				var err error
				if w < writers {
					err = write(i)
				} else {
					err = read()
				}
				if err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ops.Load(), err
	}
	if want := int64(writers * env.Iterations); value != want {
		return ops.Load(), violation("value is %d, want %d", value, want)
	}
	if rw.IsWriteLocked() || rw.ReadLockCount() != 0 {
		return ops.Load(), violation("lock still held after all workers finished: %s", rw)
	}
	return ops.Load(), nil
}

func runSemaphore(ctx context.Context, env *Env) (int64, error) {
	permits := int32(env.Permits)
	sem := locks.NewSemaphore(permits, env.Fair, env.options("semaphore")...)
	env.track("semaphore", sem.Synchronizer())

	var (
		inside atomic.Int32
		ops    atomic.Int64
	)
	g, ctx := errgroup.WithContext(ctx)
	for range env.Workers {
		g.Go(func() error {
			defer thread.Forget()
			for i := range env.Iterations {
				n := int32(1)
				if i%5 == 0 && permits > 1 {
					n = 2
				}
				if err := sem.AcquireContext(ctx, n); err != nil {
					return err
				}
				if got := inside.Add(n); got > permits {
					return violation("%d permits in use, only %d exist", got, permits)
				}
				inside.Add(-n)
				if err := sem.Release(n); err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ops.Load(), err
	}
	if got := sem.AvailablePermits(); got != permits {
		return ops.Load(), violation("%d permits available after the run, want %d", got, permits)
	}
	return ops.Load(), nil
}

func runLatch(ctx context.Context, env *Env) (int64, error) {
	rounds := max(1, env.Iterations/10)
	latches := make([]*locks.CountDownLatch, rounds)
	sources := make(sourceSet, rounds)
	for r := range latches {
		l, err := locks.NewCountDownLatch(int32(env.Workers), env.options("latch")...)
		if err != nil {
			return 0, err
		}
		latches[r] = l
		sources[r] = l.Synchronizer()
	}
	env.track("latch", sources)

	var ops atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for range env.Workers {
		g.Go(func() error {
			defer thread.Forget()
			for _, l := range latches {
				l.CountDown()
				if err := l.AwaitContext(ctx); err != nil {
					return err
				}
				if c := l.Count(); c != 0 {
					return violation("released from a latch with count %d", c)
				}
				ops.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return ops.Load(), err
}

func runBarrier(ctx context.Context, env *Env) (int64, error) {
	var trips atomic.Int64
	b, err := locks.NewCyclicBarrier(env.Parties, func() error {
		trips.Add(1)
		return nil
	}, env.options("barrier")...)
	if err != nil {
		return 0, err
	}
	env.track("barrier", b.Synchronizer())

	var ops atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for range env.Parties {
		g.Go(func() error {
			defer thread.Forget()
			for range env.Iterations {
				if err := ctx.Err(); err != nil {
					_ = b.Reset()
					return err
				}
				var (
					idx int
					err error
				)
				if env.Timeout > 0 {
					idx, err = b.AwaitTimeout(env.Timeout)
				} else {
					idx, err = b.Await()
				}
				if err != nil {
					return err
				}
				if idx < 0 || idx >= env.Parties {
					_ = b.Reset()
					return violation("arrival index %d outside [0, %d)", idx, env.Parties)
				}
				ops.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ops.Load(), err
	}
	if got := trips.Load(); got != int64(env.Iterations) {
		return ops.Load(), violation("barrier tripped %d times, want %d", got, env.Iterations)
	}
	if b.IsBroken() {
		return ops.Load(), violation("barrier broken after a clean run")
	}
	return ops.Load(), nil
}

func runCondition(ctx context.Context, env *Env) (int64, error) {
	const capacity = 4

	m := locks.NewMutex(env.Fair, env.options("condition")...)
	env.track("condition", m.Synchronizer())
	notFull, notEmpty := m.NewCondition(), m.NewCondition()

	var (
		buf      []int64 // guarded by m
		produced atomic.Int64
		consumed atomic.Int64
		ops      atomic.Int64
	)

	g, ctx := errgroup.WithContext(ctx)

	// waitFor waits on c until ready holds. On error the mutex is released.
	waitFor := func(c *aqs.Condition, ready func() bool) error {
		for !ready() {
			if err := c.AwaitContext(ctx); err != nil {
				_ = m.Unlock()
				return err
			}
		}
		return nil
	}

	pairs := max(1, env.Workers/2)
	for p := range pairs {
		g.Go(func() error {
			defer thread.Forget()
			for i := range env.Iterations {
				if err := m.Lock(); err != nil {
					return err
				}
				if err := waitFor(notFull, func() bool { return len(buf) < capacity }); err != nil {
					return err
				}
				v := int64(p*env.Iterations + i + 1)
				buf = append(buf, v)
				produced.Add(v)
				if err := notEmpty.Signal(); err != nil {
					_ = m.Unlock()
					return err
				}
				if err := m.Unlock(); err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
		g.Go(func() error {
			defer thread.Forget()
			for range env.Iterations {
				if err := m.Lock(); err != nil {
					return err
				}
				if err := waitFor(notEmpty, func() bool { return len(buf) > 0 }); err != nil {
					return err
				}
				if len(buf) > capacity {
					_ = m.Unlock()
					return violation("buffer holds %d items, capacity %d", len(buf), capacity)
				}
				v := buf[0]
				buf = buf[1:]
				consumed.Add(v)
				if err := notFull.Signal(); err != nil {
					_ = m.Unlock()
					return err
				}
				if err := m.Unlock(); err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ops.Load(), err
	}
	if p, c := produced.Load(), consumed.Load(); p != c || len(buf) != 0 {
		return ops.Load(), violation("produced %d, consumed %d, %d left in buffer", p, c, len(buf))
	}
	return ops.Load(), nil
}

func runCancelChurn(ctx context.Context, env *Env) (int64, error) {
	m := locks.NewMutex(env.Fair, env.options("mutex")...)
	sem := locks.NewSemaphore(1, env.Fair, env.options("semaphore")...)
	env.track("mutex", m.Synchronizer())
	env.track("semaphore", sem.Synchronizer())

	// The holder keeps the mutex busy so most acquires queue and give up.
	stop := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		defer thread.Forget()
		for {
			select {
			case <-stop:
				holderDone <- nil
				return
			default:
			}
			if err := m.Lock(); err != nil {
				holderDone <- err
				return
			}
			time.Sleep(50 * time.Microsecond)
			if err := m.Unlock(); err != nil {
				holderDone <- err
				return
			}
		}
	}()

	patience := func() time.Duration {
		return time.Duration(rand.IntN(100)) * time.Microsecond
	}

	var ops atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range env.Workers {
		g.Go(func() error {
			defer thread.Forget()
			for i := range env.Iterations {
				switch i % 3 {
				case 0:
					ok, err := m.TryLockTimeout(patience())
					if err != nil {
						return err
					}
					if ok {
						if err := m.Unlock(); err != nil {
							return err
						}
						ops.Add(1)
					}
				case 1:
					cctx, cancel := context.WithTimeout(gctx, patience())
					err := m.LockContext(cctx)
					cancel()
					switch {
					case err == nil:
						if err := m.Unlock(); err != nil {
							return err
						}
						ops.Add(1)
					case gctx.Err() != nil:
						return gctx.Err()
					case !errors.Is(err, context.DeadlineExceeded):
						return err
					}
				case 2:
					ok, err := sem.TryAcquireTimeout(1, patience())
					if err != nil {
						return err
					}
					if ok {
						if err := sem.Release(1); err != nil {
							return err
						}
						ops.Add(1)
					}
				}
			}
			return nil
		})
	}
	werr := g.Wait()
	close(stop)
	if err := <-holderDone; err != nil {
		return ops.Load(), err
	}
	if werr != nil {
		return ops.Load(), werr
	}

	if n := m.QueueLength(); n != 0 {
		return ops.Load(), violation("%d goroutines still queued on the mutex", n)
	}
	if n := sem.QueueLength(); n != 0 {
		return ops.Load(), violation("%d goroutines still queued on the semaphore", n)
	}
	if got := sem.AvailablePermits(); got != 1 {
		return ops.Load(), violation("semaphore has %d permits after the run, want 1", got)
	}
	ok, err := m.TryLock()
	if err != nil {
		return ops.Load(), err
	}
	if !ok {
		return ops.Load(), violation("mutex not acquirable after the run: %s", m)
	}
	return ops.Load(), m.Unlock()
}
