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

import (
	"sync"

	"go.uber.org/atomic"
)

// Task is an opaque unit of work submitted to an ElasticExecutor. The
// executor imposes no shape on it beyond what the worker's
// TaskExecutor understands.
type Task interface{}

// taskQueue is the FIFO of admitted tasks. Ordering is insertion order;
// two concurrent Submit calls may be serialized in either order.
//
// size mirrors the queue's logical length for admission control: it is
// incremented by the admission CAS in Submit *before* the task is
// actually appended, so a size read never lags behind an admission
// decision already made.
type taskQueue struct {
	mu    sync.Mutex
	items []Task
	size  atomic.Int64
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

// tryAdmit attempts to claim a slot for one more task. It returns false
// without any side effect when the queue is already at capacity.
func (q *taskQueue) tryAdmit(maxSize int64) bool {
	for {
		cur := q.size.Load()
		if cur >= maxSize {
			return false
		}
		if q.size.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// push enqueues a task that has already been admitted by tryAdmit.
func (q *taskQueue) push(t Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

// pop dequeues the oldest task, if any, decrementing the logical size.
func (q *taskQueue) pop() (Task, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	q.size.Dec()
	return t, true
}

// drain removes every queued task, invoking onEach for each one it
// drops, and returns the count. Safe to call concurrently with Submit;
// tasks pushed mid-drain may or may not be observed.
func (q *taskQueue) drain(onEach func(Task)) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, t := range items {
		q.size.Dec()
		if onEach != nil {
			onEach(t)
		}
	}
	return len(items)
}

// length returns the current logical size (admitted, not yet popped).
func (q *taskQueue) length() int64 {
	return q.size.Load()
}
