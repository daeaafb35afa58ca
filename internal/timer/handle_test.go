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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *TimerScheduler {
	return NewScheduler(WithMainRunner(func(string, func()) {}))
}

func Test_TaskHandle_NotDueReportsNext(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	base := time.Unix(1000, 0)
	h.nextRun = base.Add(time.Minute)

	res := h.shouldExecute(base)
	assert.False(t, res.fire)
	assert.False(t, res.isPast)
	assert.Equal(t, base.Add(time.Minute), res.next)
}

func Test_TaskHandle_UnsetNextRunNeverFires(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)

	res := h.shouldExecute(time.Unix(1000, 0))
	assert.False(t, res.fire)
	assert.True(t, res.next.IsZero())
}

func Test_TaskHandle_InactiveNeverFires(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.nextRun = time.Unix(0, 0)

	res := h.shouldExecute(time.Unix(1000, 0))
	assert.Equal(t, dueResult{}, res)
}

func Test_TaskHandle_WaitingForcesPastUntilHousekeepingCompletes(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	h.waiting.Store(true)
	h.nextRun = time.Unix(0, 0)

	res := h.shouldExecute(time.Unix(1000, 0))
	assert.True(t, res.isPast)
	assert.False(t, res.fire)
}

func Test_TaskHandle_ConsistentCatchUpSkipsMissedTicksAtOnce(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	h.frequency = 10 * time.Millisecond
	h.consistent = true
	h.remainingCount = -1
	base := time.Unix(1000, 0)
	h.nextRun = base

	now := base.Add(305 * time.Millisecond)
	res := h.shouldExecute(now)
	require.True(t, res.fire)
	// next tick must be strictly after now and a multiple of the
	// frequency past the original schedule, not one tick behind now.
	assert.True(t, res.next.After(now))
	elapsed := res.next.Sub(base)
	assert.Equal(t, time.Duration(0), elapsed%h.frequency)
}

func Test_TaskHandle_NonConsistentClearsUntilCompletion(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	h.frequency = 10 * time.Millisecond
	h.consistent = false
	h.remainingCount = -1
	base := time.Unix(1000, 0)
	h.nextRun = base

	res := h.shouldExecute(base)
	require.True(t, res.fire)
	assert.True(t, res.next.IsZero(), "non-consistent handle must not pre-schedule a next tick")

	h.afterExecution(base.Add(2 * time.Millisecond))
	assert.Equal(t, base.Add(12*time.Millisecond), h.nextRun)
}

func Test_TaskHandle_TimesExhaustionDeactivates(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	h.remainingCount = 1
	h.nextRun = time.Unix(1000, 0)

	res := h.shouldExecute(time.Unix(1000, 0))
	assert.True(t, res.fire)
	assert.False(t, h.IsActive())
	assert.Equal(t, int64(0), h.remainingCount)
}

func Test_TaskHandle_UntilWithoutRunAfterLastStopsAtBoundary(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	h.active.Store(true)
	h.remainingCount = -1
	h.lastRun = time.Unix(1000, 0)
	h.runAfterLast = false
	h.nextRun = time.Unix(1000, 0)

	res := h.shouldExecute(time.Unix(1000, 1))
	assert.True(t, res.fire)
	assert.False(t, h.IsActive())
}

func Test_TaskHandle_SetActiveIsIdempotent(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})

	h.SetActive(true)
	assert.True(t, h.IsActive())
	h.SetActive(true) // no-op, must not panic or double-register
	assert.True(t, h.IsActive())

	h.SetActive(false)
	assert.False(t, h.IsActive())
}

func Test_TaskHandle_ExecCountIncrementsOnCompletion(t *testing.T) {
	s := newTestScheduler()
	h := s.Build(func() {})
	assert.Equal(t, int64(0), h.ExecCount())

	h.afterExecution(time.Unix(1000, 0))
	assert.Equal(t, int64(1), h.ExecCount())
}
