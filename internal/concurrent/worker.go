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

package concurrent

import "time"

// TaskExecutor is a stateful, serial consumer of tasks created by a
// worker's Factory. One worker owns exactly one TaskExecutor for its
// whole lifetime (or until it is handed back to the executor cache).
type TaskExecutor interface {
	// Execute runs one task to completion. A returned error is logged
	// by the owning worker and never stops it.
	Execute(task Task) error
	// Close releases whatever the executor is holding. It runs when
	// the worker retires, unless worker caching is enabled and the
	// executor is returned to the cache instead.
	Close() error
}

// Factory builds the TaskExecutor a newly spawned worker will own. A
// nil return signals factory exhaustion (§7, FactoryExhaustion /
// SpawnFailure).
type Factory func() TaskExecutor

// Spawner starts run as a new worker thread named name. The default
// spawner never fails; a host-supplied one may recover from a panic
// inside run and report it as a spawn failure instead of crashing the
// process.
type Spawner func(name string, run func())

// GoroutineSpawner is the default Spawner: it starts run on a bare
// goroutine. name is accepted for symmetry with host thread spawners
// that use it for naming/debugging; this implementation ignores it.
func GoroutineSpawner(_ string, run func()) {
	go run()
}

// worker runs the loop described in §4.1: drain the queue to empty,
// then wait up to unusedLifetime for more work, retiring once idle
// past that budget and above minWorkers.
type worker struct {
	id       string
	pool     *ElasticExecutor
	executor TaskExecutor
	active   bool // mirrors this worker's current population slot
}

// run is the worker's whole lifetime. It is born Active, since it was
// spawned to service a task that was just admitted.
func (w *worker) run() {
	w.active = true
	defer w.pool.retireWorker(w)

	for {
		if w.drainQueue() {
			continue
		}
		w.transitionToWaiting()
		if w.waitForWorkOrExit() {
			return
		}
	}
}

// drainQueue pops and executes tasks until the queue runs dry.
// Reports whether it executed at least one task.
func (w *worker) drainQueue() bool {
	raw, ok := w.pool.queue.pop()
	if !ok {
		return false
	}
	w.transitionToActive()
	for {
		w.executeQueued(raw)
		raw, ok = w.pool.queue.pop()
		if !ok {
			return true
		}
	}
}

// executeQueued unwraps the enqueue-time wrapper, reports the time the
// task spent waiting in the queue, and runs it.
func (w *worker) executeQueued(raw Task) {
	qt, ok := raw.(queuedTask)
	if !ok {
		w.executeOne(raw)
		return
	}
	w.pool.metrics.tasksWaitingTime.Add(float64(time.Since(qt.enqueuedAt).Milliseconds()))
	w.executeOne(qt.task)
}

// waitForWorkOrExit blocks on the pool monitor, bounded by
// unusedLifetime, until new work appears (return false, let run's
// drainQueue pick it up) or this worker retires (return true).
func (w *worker) waitForWorkOrExit() bool {
	idleSince := time.Now()
	for {
		timeout := w.pool.unusedLifetime.Load()
		if timeout <= 0 {
			// a zero idle budget retires the worker as soon as the queue
			// is drained, if the population is above minWorkers; at the
			// minimum it waits without a bound for the next broadcast.
			if w.pool.queue.length() > 0 {
				return false
			}
			if w.pool.tryRetireOverMin() {
				return true
			}
		}
		woke := w.pool.monitor.wait(timeout)

		if w.pool.queue.length() > 0 {
			return false
		}
		if woke {
			// a configuration change, not a new task: re-arm the idle
			// budget and re-evaluate exit eligibility right away.
			idleSince = time.Now()
			continue
		}
		if time.Since(idleSince) >= timeout {
			if w.pool.tryRetireOverMin() {
				return true
			}
			idleSince = time.Now()
		}
	}
}

func (w *worker) transitionToActive() {
	if w.active {
		return
	}
	w.active = true
	w.pool.waitingWorkers.Dec()
	w.pool.activeWorkers.Inc()
}

func (w *worker) transitionToWaiting() {
	if !w.active {
		return
	}
	w.active = false
	if w.pool.activeWorkers.Dec() == 0 {
		w.pool.idleMonitor.broadcast()
	}
	w.pool.waitingWorkers.Inc()
}

func (w *worker) executeOne(task Task) {
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.pool.logf("task panicked in worker %s: %v", w.id, r)
			}
		}()
		if err := w.executor.Execute(task); err != nil {
			w.pool.logf("task failed in worker %s: %v", w.id, err)
		}
	}()
	w.pool.observeTaskDuration(time.Since(start))
}
