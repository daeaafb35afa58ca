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

import "github.com/lindb/taskrun/internal/linmetric"

// poolMetrics mirrors the teacher pool's own instrumentation: current
// workers in use, workers created/killed since start, tasks consumed,
// and the accumulated waiting/executing duration.
type poolMetrics struct {
	queueSize          *linmetric.BoundGauge
	workersAlive       *linmetric.BoundGauge
	workersCreated     *linmetric.BoundDeltaCounter
	workersKilled      *linmetric.BoundDeltaCounter
	tasksConsumed      *linmetric.BoundDeltaCounter
	tasksWaitingTime   *linmetric.BoundDeltaCounter
	tasksExecutingTime *linmetric.BoundDeltaCounter
}

func newPoolMetrics(scope *linmetric.Scope) *poolMetrics {
	if scope == nil {
		scope = linmetric.NewScope("elastic_executor")
	}
	return &poolMetrics{
		queueSize:          scope.NewGauge("queue_size"),
		workersAlive:       scope.NewGauge("workers_alive"),
		workersCreated:     scope.NewDeltaCounter("workers_created"),
		workersKilled:      scope.NewDeltaCounter("workers_killed"),
		tasksConsumed:      scope.NewDeltaCounter("tasks_consumed"),
		tasksWaitingTime:   scope.NewDeltaCounter("tasks_waiting_duration_sum"),
		tasksExecutingTime: scope.NewDeltaCounter("tasks_executing_duration_sum"),
	}
}
