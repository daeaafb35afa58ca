// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package timer implements TimerScheduler: a single dispatcher thread
// that drives an arbitrary set of periodic or one-shot TaskHandles,
// routing due work to itself, to a host UI thread, or to an
// ElasticExecutor.
package timer

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

const defaultIdleSleep = time.Hour

// DefaultAccessoryRunner runs work on a bare goroutine and always
// reports success. It is a convenience default for programs that have
// not wired a real ElasticExecutor as the Any-threaded target; it
// provides none of the admission control or population limits a real
// pool would.
func DefaultAccessoryRunner(run func()) bool {
	go run()
	return true
}

// pendingSubmit is an Any-threaded dispatch whose accessory-runner
// submission was rejected; the dispatcher retries it, untouched, on
// every subsequent pass until it is admitted.
type pendingSubmit struct {
	handle *TaskHandle
	run    func()
}

// TimerScheduler is the single-dispatcher cooperative timer of §4.2.
type TimerScheduler struct {
	name            string
	clock           Clock
	mainRunner      Spawner
	uiInvoke        UIInvoke
	accessoryRunner AccessoryRunner

	mu      sync.Mutex
	handles []*TaskHandle

	shouldRun         atomic.Bool
	sleeping          atomic.Bool
	dispatcherRunning atomic.Bool
	wakeCh            chan struct{}

	pending []pendingSubmit
}

// Option configures a TimerScheduler at construction time.
type Option func(*TimerScheduler)

// WithClock overrides the default SystemClock.
func WithClock(c Clock) Option { return func(s *TimerScheduler) { s.clock = c } }

// WithMainRunner overrides how the dispatcher thread itself is
// started.
func WithMainRunner(r Spawner) Option { return func(s *TimerScheduler) { s.mainRunner = r } }

// WithUIInvoke overrides how UI-threaded handles are dispatched.
func WithUIInvoke(invoke UIInvoke) Option { return func(s *TimerScheduler) { s.uiInvoke = invoke } }

// WithAccessoryRunner overrides how Any-threaded handles are submitted
// to a pool. Pass concurrent.ElasticExecutor.Submit, adapted to this
// signature, to drive real work off the dispatcher thread.
func WithAccessoryRunner(r AccessoryRunner) Option {
	return func(s *TimerScheduler) { s.accessoryRunner = r }
}

// WithName sets the dispatcher thread's name.
func WithName(name string) Option { return func(s *TimerScheduler) { s.name = name } }

// NewScheduler builds an inactive scheduler; the dispatcher thread is
// not started until the first handle is activated.
func NewScheduler(opts ...Option) *TimerScheduler {
	s := &TimerScheduler{
		name:            "timer",
		clock:           SystemClock{},
		mainRunner:      GoroutineSpawner,
		uiInvoke:        SyncUIInvoke,
		accessoryRunner: DefaultAccessoryRunner,
		wakeCh:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	commonOnce sync.Once
	common     *TimerScheduler
)

// Common lazily constructs a process-wide default scheduler. It is an
// opt-in convenience for callers that want a shared instance, never
// the only entry point: tests and multi-tenant hosts should prefer
// NewScheduler for isolation.
func Common() *TimerScheduler {
	commonOnce.Do(func() { common = NewScheduler() })
	return common
}

// Build constructs a handle in the inactive state with default
// threading=Any, no frequency, and an unlimited execution count. It is
// not registered with the scheduler until SetActive(true) is called.
func (s *TimerScheduler) Build(runnable func()) *TaskHandle {
	return newTaskHandle(s, runnable)
}

// register adds h to the scheduler and starts the dispatcher if this
// is the first active handle.
func (s *TimerScheduler) register(h *TaskHandle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	needStart := len(s.handles) == 1
	s.mu.Unlock()

	if needStart {
		s.start()
	}
}

// unregister removes h. If it was the last handle, the dispatcher
// exits cleanly on its next loop.
func (s *TimerScheduler) unregister(h *TaskHandle) {
	s.mu.Lock()
	for i, candidate := range s.handles {
		if candidate == h {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			break
		}
	}
	empty := len(s.handles) == 0
	s.mu.Unlock()

	if empty {
		s.shouldRun.Store(false)
		s.wake()
	}
}

// start spawns the dispatcher thread, unless one is already running.
func (s *TimerScheduler) start() {
	if !s.dispatcherRunning.CompareAndSwap(false, true) {
		return
	}
	s.shouldRun.Store(true)
	s.mainRunner(s.name+"-dispatcher", s.dispatchLoop)
}

// wake interrupts the dispatcher's sleep. The wake token is buffered
// even when the dispatcher is mid-pass (the pass may already have read
// the changed handle), so its next sleep returns at once and the
// following pass observes the change.
func (s *TimerScheduler) wake() {
	s.sleeping.CompareAndSwap(true, false)
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *TimerScheduler) snapshotHandles() []*TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TaskHandle, len(s.handles))
	copy(out, s.handles)
	return out
}

// dispatchLoop is the dispatcher's entire lifetime (§4.2's scheduler
// loop). It runs until the handle registry empties.
func (s *TimerScheduler) dispatchLoop() {
	defer s.dispatcherRunning.Store(false)

	for s.shouldRun.Load() {
		forcedPast := s.flushPending()

		now := s.clock.Now()
		var minNext time.Time

		for _, h := range s.snapshotHandles() {
			res := h.shouldExecute(now)
			switch {
			case res.fire:
				s.dispatch(h, now)
				// an inline run's afterExecution (or a non-consistent
				// handle) sets nextRun after this pass read it: re-poll
				// so the new nextRun is folded in before sleeping.
				forcedPast = true
			case res.isPast:
				forcedPast = true
			case !res.next.IsZero():
				if minNext.IsZero() || res.next.Before(minNext) {
					minNext = res.next
				}
			}
		}

		if len(s.pending) > 0 {
			forcedPast = true
		}
		if forcedPast {
			continue
		}
		if !s.shouldRun.Load() {
			return
		}

		sleep := defaultIdleSleep
		if !minNext.IsZero() {
			sleep = minNext.Sub(s.clock.Now())
		}
		if sleep > 0 {
			s.sleepInterruptible(sleep)
		}
	}
}

// flushPending retries every Any-threaded dispatch whose last
// admission attempt was rejected. Returns true if any remain pending
// after the attempt (so the caller knows to re-poll immediately
// instead of sleeping).
func (s *TimerScheduler) flushPending() bool {
	if len(s.pending) == 0 {
		return false
	}
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if !s.accessoryRunner(p.run) {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
	return len(s.pending) > 0
}

func (s *TimerScheduler) dispatch(h *TaskHandle, _ time.Time) {
	run := func() { s.runAndFinish(h) }

	switch h.threadingSnapshot() {
	case Timer:
		run()
	case UI:
		s.uiInvoke(run)
	default: // Any
		if !s.accessoryRunner(run) {
			s.pending = append(s.pending, pendingSubmit{handle: h, run: run})
		}
	}
}

func (s *TimerScheduler) runAndFinish(h *TaskHandle) {
	defer h.afterExecution(s.clock.Now())
	h.runnable()
}

// sleepInterruptible sleeps for d unless woken by wake() first.
func (s *TimerScheduler) sleepInterruptible(d time.Duration) {
	if !s.sleeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sleeping.Store(false)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wakeCh:
	}
}

// threadingSnapshot reads threading under the handle's lock.
func (h *TaskHandle) threadingSnapshot() Threading {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.threading
}
