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

package linmetric

import (
	"runtime"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// gatherOptions configures a Gather.
type gatherOptions struct {
	readRuntime bool
}

// GatherOption customizes a Gather built with NewGather.
type GatherOption func(*gatherOptions)

// WithReadRuntimeOption makes Gather.Gather() additionally report a
// handful of Go runtime gauges (goroutine count, heap bytes) alongside
// the scope tree's own metrics.
func WithReadRuntimeOption() GatherOption {
	return func(o *gatherOptions) { o.readRuntime = true }
}

// Gather collects a Scope tree's gauges and counters into Prometheus
// metric families, then applies the delta-counter/histogram reset.
type Gather struct {
	scope *Scope
	opts  gatherOptions
}

// NewGather builds a Gather over scope's whole tree (scope plus every
// descendant shares one underlying registry).
func NewGather(scope *Scope, opts ...GatherOption) *Gather {
	g := &Gather{scope: scope}
	for _, opt := range opts {
		opt(&g.opts)
	}
	return g
}

// Gather returns the current metric families, then resets every delta
// counter/histogram in the tree to zero for the next interval. The
// reset applies to the values Get and the histogram bucket counts
// report; the Prometheus counters in the returned families are
// cumulative and are not reset.
func (g *Gather) Gather() ([]*dto.MetricFamily, error) {
	if g.opts.readRuntime {
		g.updateRuntimeGauges()
	}
	families, err := g.scope.root.reg.Gather()
	g.scope.root.resetDeltas()
	return families, err
}

func (g *Gather) updateRuntimeGauges() {
	gauge := g.scope.NewGauge("go_goroutines")
	gauge.Update(float64(runtime.NumGoroutine()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.scope.NewGauge("go_heap_alloc_bytes").Update(float64(mem.HeapAlloc))
}

// Registerer exposes the underlying Prometheus registry so an HTTP
// handler (promhttp.HandlerFor) can be wired up by a host process.
func (s *Scope) Registerer() prometheus.Registerer {
	return s.root.reg
}

// Gatherer exposes the underlying Prometheus gatherer.
func (s *Scope) Gatherer() prometheus.Gatherer {
	return s.root.reg
}
