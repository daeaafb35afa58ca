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

package timer

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Threading selects which thread a due TaskHandle is dispatched to.
type Threading int

const (
	// Timer executes inline on the dispatcher thread. Suitable only
	// for very short work; long tasks stall every other timer.
	Timer Threading = iota
	// UI hands the runnable to the injected UIInvoke.
	UI
	// Any hands the runnable to the ElasticExecutor via its accessory
	// runner.
	Any
)

// dueResult is what shouldExecute reports back to the dispatcher about
// one handle's contribution to the pass.
type dueResult struct {
	fire   bool
	next   time.Time // zero means "no constraint from this handle"
	isPast bool      // a forced immediate re-poll (§4.2, "past" sentinel)
}

// TaskHandle is the scheduler's record for one periodic or one-shot
// task (§3). All mutable fields are guarded by mu; active/executing/
// waiting are lock-free atomics, read by the dispatcher's early "is it
// worth locking" checks and by IsActive.
type TaskHandle struct {
	scheduler *TimerScheduler
	runnable  func()

	mu             sync.Mutex
	frequency      time.Duration
	consistent     bool
	nextRun        time.Time // zero == unset/null
	previousRun    time.Time
	lastRun        time.Time // zero == unset (no upper bound)
	remainingCount int64     // -1 == unlimited
	runAfterLast   bool
	execCount      int64
	threading      Threading

	active    atomic.Bool
	executing atomic.Bool
	waiting   atomic.Bool
}

func newTaskHandle(s *TimerScheduler, runnable func()) *TaskHandle {
	return &TaskHandle{
		scheduler:      s,
		runnable:       runnable,
		remainingCount: -1,
		threading:      Any,
	}
}

// SetFrequency sets the repeat interval and rate mode (§4.2). consistent
// measures start-to-start and allows catch-up; non-consistent measures
// previous-end-to-next-start.
func (h *TaskHandle) SetFrequency(d time.Duration, consistent bool) *TaskHandle {
	h.mu.Lock()
	h.frequency = d
	h.consistent = consistent
	h.mu.Unlock()
	h.scheduler.wake()
	return h
}

// Times sets the remaining execution budget; -1 means unlimited.
func (h *TaskHandle) Times(n int) *TaskHandle {
	h.mu.Lock()
	h.remainingCount = int64(n)
	h.mu.Unlock()
	h.scheduler.wake()
	return h
}

// Until sets the last instant at which this handle may still fire. With
// runAfterLast false, the first execution that starts after at still
// runs, but no further run is scheduled after it. With runAfterLast
// true, at does not stop the handle.
func (h *TaskHandle) Until(at time.Time, runAfterLast bool) *TaskHandle {
	h.mu.Lock()
	h.lastRun = at
	h.runAfterLast = runAfterLast
	h.mu.Unlock()
	h.scheduler.wake()
	return h
}

// RunNextAt schedules the next (or first) execution for exactly at.
func (h *TaskHandle) RunNextAt(at time.Time) *TaskHandle {
	h.mu.Lock()
	h.nextRun = at
	h.mu.Unlock()
	h.scheduler.wake()
	return h
}

// RunNextIn schedules the next execution d from now.
func (h *TaskHandle) RunNextIn(d time.Duration) *TaskHandle {
	return h.RunNextAt(h.scheduler.clock.Now().Add(d))
}

// RunImmediately schedules the next execution for now.
func (h *TaskHandle) RunImmediately() *TaskHandle {
	return h.RunNextAt(h.scheduler.clock.Now())
}

// WithThreading selects the dispatch target.
func (h *TaskHandle) WithThreading(t Threading) *TaskHandle {
	h.mu.Lock()
	h.threading = t
	h.mu.Unlock()
	return h
}

// SetActive toggles whether this handle participates in scheduling.
// Repeated calls with the same value are no-ops; a false->true
// transition wakes the dispatcher so the handle is considered on its
// next pass. Re-activating with no intervening configuration change
// reproduces the same first-fire time a fresh handle would get,
// because nextRun is left exactly as it was when deactivated.
func (h *TaskHandle) SetActive(active bool) *TaskHandle {
	if !h.active.CompareAndSwap(!active, active) {
		return h
	}
	if active {
		h.scheduler.register(h)
		h.scheduler.wake()
	} else {
		h.scheduler.unregister(h)
	}
	return h
}

// IsActive reports whether this handle currently participates in
// scheduling.
func (h *TaskHandle) IsActive() bool { return h.active.Load() }

// ExecCount returns the total number of completed executions.
func (h *TaskHandle) ExecCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execCount
}

// shouldExecute implements §4.2's selection step for one handle. It is
// called by the dispatcher with the pass's single `now` reading.
func (h *TaskHandle) shouldExecute(now time.Time) dueResult {
	if !h.active.Load() {
		return dueResult{}
	}
	if h.waiting.Load() {
		// a previous dispatch has not yet completed its post-execution
		// housekeeping; loop again to pick it up.
		return dueResult{isPast: true}
	}

	h.mu.Lock()
	if h.nextRun.IsZero() || now.Before(h.nextRun) {
		next := h.nextRun
		h.mu.Unlock()
		if next.IsZero() {
			return dueResult{}
		}
		return dueResult{next: next}
	}

	h.advanceNextRunLocked(now)
	h.applyBoundsLocked(now)

	// A handle whose count or lastRun bound is used up by this run is
	// deactivated now. A cleared nextRun alone does not deactivate: a
	// non-consistent handle always clears it here and gets it back from
	// afterExecution. Unregistration is left to afterExecution, so the
	// dispatcher keeps running until the run has completed.
	if h.remainingCount == 0 || (!h.lastRun.IsZero() && now.After(h.lastRun) && !h.runAfterLast) {
		h.active.Store(false)
	}
	h.waiting.Store(true)
	result := dueResult{fire: true}
	if !h.nextRun.IsZero() {
		result.next = h.nextRun
	}
	h.mu.Unlock()

	return result
}

// advanceNextRunLocked computes the next scheduling instant per §4.2's
// consistent/non-consistent rule. Callers hold h.mu.
func (h *TaskHandle) advanceNextRunLocked(now time.Time) {
	if h.consistent && h.frequency > 0 {
		h.nextRun = h.nextRun.Add(h.frequency)
		if now.After(h.nextRun) {
			behind := now.Sub(h.nextRun)
			missed := int64(behind / h.frequency)
			if missed > 0 {
				h.nextRun = h.nextRun.Add(time.Duration(missed) * h.frequency)
			}
			if now.After(h.nextRun) {
				h.nextRun = h.nextRun.Add(h.frequency)
			}
		}
		return
	}
	// non-consistent: cleared here, recomputed from the actual
	// completion time in afterExecution.
	h.nextRun = time.Time{}
}

// applyBoundsLocked consumes one unit of remainingCount and enforces
// lastRun/runAfterLast, clearing nextRun when the handle has run out
// of budget. Callers hold h.mu.
func (h *TaskHandle) applyBoundsLocked(now time.Time) {
	if h.remainingCount > 0 {
		h.remainingCount--
		if h.remainingCount == 0 {
			h.nextRun = time.Time{}
		}
	}
	if !h.lastRun.IsZero() && now.After(h.lastRun) && !h.runAfterLast {
		h.nextRun = time.Time{}
	}
}

// afterExecution runs the post-execution housekeeping of §4.2,
// regardless of which thread actually ran the task.
func (h *TaskHandle) afterExecution(now time.Time) {
	h.mu.Lock()
	h.previousRun = now
	h.execCount++

	if h.nextRun.IsZero() && h.frequency > 0 && h.remainingCount != 0 && h.withinBoundsLocked(now) {
		h.nextRun = h.previousRun.Add(h.frequency)
	}
	if !h.lastRun.IsZero() && now.After(h.lastRun) && !h.runAfterLast {
		h.nextRun = time.Time{}
	}
	deactivate := h.nextRun.IsZero()
	h.waiting.Store(false)
	h.mu.Unlock()

	if deactivate {
		h.active.Store(false)
		h.scheduler.unregister(h)
	} else {
		h.scheduler.wake()
	}
}

func (h *TaskHandle) withinBoundsLocked(now time.Time) bool {
	if h.lastRun.IsZero() {
		return true
	}
	return !now.After(h.lastRun) || h.runAfterLast
}
