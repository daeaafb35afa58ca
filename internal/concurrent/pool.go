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

// Package concurrent implements the ElasticExecutor: a bounded-queue,
// adaptive worker pool that grows its population with load and shrinks
// it back down when idle.
package concurrent

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/lindb/taskrun/internal/linmetric"
	"github.com/lindb/taskrun/pkg/logger"
)

const (
	// maxQueueSizeCap is the practical ceiling §6 places on an
	// "unbounded" queue.
	maxQueueSizeCap = 1_000_000_000

	defaultUnusedLifetime = 100 * time.Millisecond
)

// ElasticExecutor accepts tasks, admits them against a queue ceiling,
// and sizes its worker population between minWorkers and maxWorkers
// (§4.1).
type ElasticExecutor struct {
	name string

	factory Factory
	spawner Spawner
	logger  logFn

	queue   *taskQueue
	monitor *monitor // pool monitor: wakes waiting workers

	idleMonitor *monitor // wakes waitUntilIdle callers on 1->0 transition

	minWorkers     atomic.Int64
	maxWorkers     atomic.Int64
	maxQueueSize   atomic.Int64
	unusedLifetime atomic.Duration
	cacheWorkers   atomic.Bool

	threadCount    atomic.Int64
	activeWorkers  atomic.Int64
	waitingWorkers atomic.Int64

	cache *executorCache
	ids   *workerIDGen

	metrics *poolMetrics
}

// Option configures an ElasticExecutor at construction time.
type Option func(*ElasticExecutor)

// WithRange sets the initial minWorkers/maxWorkers.
func WithRange(minWorkers, maxWorkers int) Option {
	return func(e *ElasticExecutor) {
		e.minWorkers.Store(int64(minWorkers))
		e.maxWorkers.Store(int64(maxWorkers))
	}
}

// WithMaxQueueSize sets the initial admission ceiling. 0 means the
// queue never admits anything; a negative value means unbounded
// (capped at maxQueueSizeCap).
func WithMaxQueueSize(size int) Option {
	return func(e *ElasticExecutor) {
		e.maxQueueSize.Store(clampQueueSize(size))
	}
}

// WithUnusedLifetime sets how long an idle worker above minWorkers
// waits before retiring.
func WithUnusedLifetime(d time.Duration) Option {
	return func(e *ElasticExecutor) { e.unusedLifetime.Store(d) }
}

// WithWorkerCaching enables or disables the executor cache up front.
func WithWorkerCaching(enabled bool) Option {
	return func(e *ElasticExecutor) {
		e.cacheWorkers.Store(enabled)
		e.cache.setEnabled(enabled, e.logger)
	}
}

// WithSpawner overrides the default goroutine spawner.
func WithSpawner(s Spawner) Option {
	return func(e *ElasticExecutor) { e.spawner = s }
}

// WithLogger overrides where swallowed runtime errors are reported.
func WithLogger(logger func(format string, args ...interface{})) Option {
	return func(e *ElasticExecutor) { e.logger = logger }
}

// WithMetricsScope instruments the executor under the given scope,
// using the same metric names the teacher pool published:
// workers_alive, workers_created, workers_killed, tasks_consumed,
// tasks_waiting_duration_sum, tasks_executing_duration_sum, queue_size.
func WithMetricsScope(scope *linmetric.Scope) Option {
	return func(e *ElasticExecutor) { e.metrics = newPoolMetrics(scope) }
}

// NewElasticExecutor builds a pool. factory must be non-nil; it is
// invoked once per worker the pool ever spawns (subject to caching).
func NewElasticExecutor(name string, factory Factory, opts ...Option) *ElasticExecutor {
	if factory == nil {
		panic("concurrent: factory must not be nil")
	}
	log := logger.GetLogger("executor", name)
	e := &ElasticExecutor{
		name:    name,
		factory: factory,
		spawner: GoroutineSpawner,
		logger: func(format string, args ...interface{}) {
			log.Warn(fmt.Sprintf(format, args...))
		},
		queue:       newTaskQueue(),
		monitor:     newMonitor(),
		idleMonitor: newMonitor(),
		cache:       newExecutorCache(),
		ids:         newWorkerIDGen(),
	}
	e.maxWorkers.Store(int64(defaultMaxWorkers()))
	e.maxQueueSize.Store(maxQueueSizeCap)
	e.unusedLifetime.Store(defaultUnusedLifetime)

	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newPoolMetrics(nil)
	}
	return e
}

func defaultMaxWorkers() int {
	n := runtime.GOMAXPROCS(0) - 1
	if n < 1 {
		return 1
	}
	return n
}

func clampQueueSize(size int) int64 {
	if size < 0 {
		return maxQueueSizeCap
	}
	if int64(size) > maxQueueSizeCap {
		return maxQueueSizeCap
	}
	return int64(size)
}

// queuedTask wraps a submitted task with its admission time so a
// worker can report queue waiting time once it starts executing it.
type queuedTask struct {
	task       Task
	enqueuedAt time.Time
}

// Submit admits task subject to maxQueueSize and returns whether it was
// accepted. Rejection never panics and never blocks (§4.1).
func (e *ElasticExecutor) Submit(task Task) bool {
	if !e.queue.tryAdmit(e.maxQueueSize.Load()) {
		return false
	}
	e.queue.push(queuedTask{task: task, enqueuedAt: time.Now()})
	e.metrics.queueSize.Update(float64(e.queue.length()))

	if e.waitingWorkers.Load() > 0 {
		e.monitor.broadcast()
		return true
	}
	e.growIfNeeded()
	return true
}

// growIfNeeded attempts to spawn one more worker, up to maxWorkers.
// A spawn failure while the pool has no live worker is fatal (panics);
// other ones are absorbed silently since existing workers will drain
// the queue.
func (e *ElasticExecutor) growIfNeeded() {
	for {
		cur := e.threadCount.Load()
		if cur >= e.maxWorkers.Load() {
			return
		}
		if e.threadCount.CompareAndSwap(cur, cur+1) {
			e.spawnWorker(cur == 0)
			return
		}
	}
}

func (e *ElasticExecutor) spawnWorker(firstEver bool) {
	executor := e.cache.poll()
	if executor == nil {
		executor = e.factory()
	}
	if executor == nil {
		e.threadCount.Dec()
		e.metrics.workersAlive.Update(float64(e.threadCount.Load()))
		if firstEver {
			panic(ErrSpawnFailed)
		}
		e.logger("%s: factory exhausted, absorbing failure", e.name)
		return
	}

	e.activeWorkers.Inc()
	e.metrics.workersAlive.Update(float64(e.threadCount.Load()))
	e.metrics.workersCreated.Incr()

	w := &worker{id: e.ids.next(), pool: e, executor: executor}
	e.spawner(e.name+"-"+w.id, w.run)
}

// retireWorker is the worker's defer: return its TaskExecutor to the
// cache (or close it), and drop it from the population counters.
// threadCount itself was already decremented by the exit CAS in
// tryRetireOverMin — the only path that leads here — so this must not
// decrement it again.
func (e *ElasticExecutor) retireWorker(w *worker) {
	if w.active {
		if e.activeWorkers.Dec() == 0 {
			e.idleMonitor.broadcast()
		}
	} else {
		e.waitingWorkers.Dec()
	}
	e.metrics.workersAlive.Update(float64(e.threadCount.Load()))
	e.metrics.workersKilled.Incr()

	e.cache.offer(w.executor, e.logger)
}

// tryRetireOverMin atomically claims permission for the calling worker
// to retire: it succeeds only while threadCount exceeds minWorkers.
func (e *ElasticExecutor) tryRetireOverMin() bool {
	for {
		cur := e.threadCount.Load()
		if cur <= e.minWorkers.Load() {
			return false
		}
		if e.threadCount.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// WaitUntilIdle blocks until IsActive() is false, or timeout elapses
// (timeout <= 0 waits indefinitely). Returns true iff it observed
// idle.
func (e *ElasticExecutor) WaitUntilIdle(timeout time.Duration) bool {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := time.Duration(0)
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return !e.IsActive()
			}
		}
		// waitIf re-checks IsActive under the monitor's own lock, the
		// same one broadcast uses, so a broadcast racing this call's
		// own predicate check can't be lost — see monitor.waitIf.
		if !e.idleMonitor.waitIf(e.IsActive, remaining) {
			if !e.IsActive() {
				return true
			}
			if timeout > 0 {
				return false
			}
			// predicate flipped back to active between waitIf's
			// lock-protected check and here; loop and re-check properly.
		}
	}
}

// Clear drains every queued task, invoking onEach once per dropped
// task, and returns the count. In-flight executions are unaffected.
func (e *ElasticExecutor) Clear(onEach func(Task)) int {
	n := e.queue.drain(func(t Task) {
		if onEach == nil {
			return
		}
		if qt, ok := t.(queuedTask); ok {
			onEach(qt.task)
			return
		}
		onEach(t)
	})
	e.metrics.queueSize.Update(float64(e.queue.length()))
	return n
}

// SetRange changes minWorkers/maxWorkers. Lowering either wakes every
// waiting worker so it can re-evaluate whether it is now eligible to
// retire.
func (e *ElasticExecutor) SetRange(minWorkers, maxWorkers int) error {
	if minWorkers < 0 || maxWorkers < 0 || minWorkers > maxWorkers {
		return configError("minWorkers/maxWorkers out of range")
	}
	e.minWorkers.Store(int64(minWorkers))
	e.maxWorkers.Store(int64(maxWorkers))
	e.monitor.broadcast()
	if e.queue.length() > 0 {
		// raising maxWorkers may have freed capacity for a backlog that
		// no existing worker is waiting to pick up.
		e.growIfNeeded()
	}
	return nil
}

// SetMaxQueueSize changes the admission ceiling. A negative value means
// unbounded (capped at maxQueueSizeCap).
func (e *ElasticExecutor) SetMaxQueueSize(size int) error {
	e.maxQueueSize.Store(clampQueueSize(size))
	return nil
}

// SetUnusedLifetime changes the idle timeout. Lowering it wakes every
// waiting worker so it can re-evaluate against the new budget sooner.
func (e *ElasticExecutor) SetUnusedLifetime(d time.Duration) error {
	if d < 0 {
		return configError("unusedLifetime must be >= 0")
	}
	e.unusedLifetime.Store(d)
	e.monitor.broadcast()
	return nil
}

// SetWorkerCaching toggles the executor cache. Disabling it drains and
// closes whatever is currently cached.
func (e *ElasticExecutor) SetWorkerCaching(enabled bool) {
	e.cacheWorkers.Store(enabled)
	e.cache.setEnabled(enabled, e.logger)
}

// SetSpawner overrides the worker spawner at runtime.
func (e *ElasticExecutor) SetSpawner(s Spawner) {
	e.spawner = s
}

// QueueSize returns the current logical queue length.
func (e *ElasticExecutor) QueueSize() int { return int(e.queue.length()) }

// ThreadCount returns the current live worker count.
func (e *ElasticExecutor) ThreadCount() int { return int(e.threadCount.Load()) }

// ActiveThreads returns the count of workers currently executing a
// task.
func (e *ElasticExecutor) ActiveThreads() int { return int(e.activeWorkers.Load()) }

// IsActive reports activeWorkers > 0 || queueSize > 0 (§3).
func (e *ElasticExecutor) IsActive() bool {
	return e.activeWorkers.Load() > 0 || e.queue.length() > 0
}

func (e *ElasticExecutor) logf(format string, args ...interface{}) {
	e.logger(format, args...)
}

func (e *ElasticExecutor) observeTaskDuration(d time.Duration) {
	e.metrics.tasksConsumed.Incr()
	e.metrics.tasksExecutingTime.Add(float64(d.Milliseconds()))
}
