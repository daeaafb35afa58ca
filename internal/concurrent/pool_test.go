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

package concurrent_test

import (
	"sync"
	"testing"
	"time"

	"github.com/lindb/taskrun/internal/concurrent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcExecutor adapts a plain func(concurrent.Task) error into a
// TaskExecutor, serial by construction since one worker owns one
// instance.
type funcExecutor struct {
	do     func(concurrent.Task) error
	closed bool
}

func (f *funcExecutor) Execute(task concurrent.Task) error { return f.do(task) }
func (f *funcExecutor) Close() error                       { f.closed = true; return nil }

func factoryOf(do func(concurrent.Task) error) concurrent.Factory {
	return func() concurrent.TaskExecutor {
		return &funcExecutor{do: do}
	}
}

func Test_ElasticExecutor_FIFOUnderSingleWorker(t *testing.T) {
	var mu sync.Mutex
	var order []int

	pool := concurrent.NewElasticExecutor("fifo", factoryOf(func(task concurrent.Task) error {
		mu.Lock()
		order = append(order, task.(int))
		mu.Unlock()
		return nil
	}), concurrent.WithRange(1, 1))

	for i := 1; i <= 1000; i++ {
		require.True(t, pool.Submit(i))
	}
	require.True(t, pool.WaitUntilIdle(60*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 1000)
	for i, v := range order {
		require.Equal(t, i+1, v)
	}
}

func Test_ElasticExecutor_AdmissionCap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	pool := concurrent.NewElasticExecutor("admission", factoryOf(func(task concurrent.Task) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}), concurrent.WithRange(0, 1), concurrent.WithMaxQueueSize(3))

	// first submit spawns the worker and blocks it on the barrier.
	require.True(t, pool.Submit(1))
	<-started

	require.True(t, pool.Submit(2))
	require.True(t, pool.Submit(3))
	require.True(t, pool.Submit(4))
	assert.False(t, pool.Submit(5), "fifth submission must be rejected once queue is full")

	close(release)
	require.True(t, pool.WaitUntilIdle(10*time.Second))
}

func Test_ElasticExecutor_WorkerRetirement(t *testing.T) {
	pool := concurrent.NewElasticExecutor("retire", factoryOf(func(task concurrent.Task) error {
		time.Sleep(time.Millisecond)
		return nil
	}), concurrent.WithRange(0, 4), concurrent.WithUnusedLifetime(50*time.Millisecond))

	for i := 0; i < 20; i++ {
		require.True(t, pool.Submit(i))
	}
	require.True(t, pool.WaitUntilIdle(5*time.Second))
	assert.LessOrEqual(t, pool.ThreadCount(), 4)

	require.Eventually(t, func() bool {
		return pool.ThreadCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_ElasticExecutor_MinZeroMaxZero_QueuesUntilRangeRaised(t *testing.T) {
	var calls int32
	var mu sync.Mutex

	pool := concurrent.NewElasticExecutor("zero-zero", factoryOf(func(task concurrent.Task) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}), concurrent.WithRange(0, 0))

	// maxWorkers=0 means growIfNeeded can never spawn; tasks sit queued
	// until the range is raised.
	assert.True(t, pool.Submit(1))
	assert.Equal(t, 0, pool.ThreadCount())

	require.NoError(t, pool.SetRange(0, 1))
	require.True(t, pool.WaitUntilIdle(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls)
}

func Test_ElasticExecutor_MaxQueueSizeZero_RejectsEverySubmission(t *testing.T) {
	pool := concurrent.NewElasticExecutor("no-queue", factoryOf(func(concurrent.Task) error { return nil }),
		concurrent.WithMaxQueueSize(0))

	assert.False(t, pool.Submit("x"))
	assert.Equal(t, 0, pool.QueueSize())
}

func Test_ElasticExecutor_Clear(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := concurrent.NewElasticExecutor("clear", factoryOf(func(concurrent.Task) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}), concurrent.WithRange(1, 1), concurrent.WithMaxQueueSize(10))

	require.True(t, pool.Submit(1)) // consumed by the single worker, blocks
	<-started
	require.True(t, pool.Submit(2))
	require.True(t, pool.Submit(3))

	var dropped []concurrent.Task
	n := pool.Clear(func(task concurrent.Task) {
		dropped = append(dropped, task)
	})
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []concurrent.Task{2, 3}, dropped)
	assert.Equal(t, 0, pool.QueueSize())

	close(release)
	require.True(t, pool.WaitUntilIdle(5*time.Second))

	// a submit after Clear is still accepted; the pool keeps working.
	require.True(t, pool.Submit(4))
	require.True(t, pool.WaitUntilIdle(5*time.Second))
}

func Test_ElasticExecutor_SetRangeRejectsBadRanges(t *testing.T) {
	pool := concurrent.NewElasticExecutor("bad-range", factoryOf(func(concurrent.Task) error { return nil }))
	assert.Error(t, pool.SetRange(4, 1))
	assert.Error(t, pool.SetRange(-1, 2))
}

func Test_ElasticExecutor_ShrinkingMaxWorkersDoesNotKillMidTask(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	pool := concurrent.NewElasticExecutor("shrink", factoryOf(func(concurrent.Task) error {
		close(started)
		<-release
		return nil
	}), concurrent.WithRange(0, 2))

	require.True(t, pool.Submit(1))
	<-started

	require.NoError(t, pool.SetRange(0, 0))
	// the in-flight task keeps running; it is not killed mid-task.
	assert.Equal(t, 1, pool.ThreadCount())

	close(release)
	require.Eventually(t, func() bool {
		return pool.ThreadCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
