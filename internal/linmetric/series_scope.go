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

// Package linmetric is a small metrics-scope tree used by the pool and
// scheduler to publish their runtime counters. A Scope is a namespaced,
// tagged node; every gauge and counter created under it is gathered into
// Prometheus metric families on demand via Gather. Histograms are kept
// in-process only and do not appear in the gathered families.
package linmetric

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Scope is a namespaced, tagged node in the metric tree. Metrics
// created under it share its name and tag set as a Prometheus metric
// name prefix and constant labels.
type Scope struct {
	root *registry

	fqName string
	tags   map[string]string

	mu       sync.Mutex
	children map[string]*Scope
	gauges   map[string]*BoundGauge
	counters map[string]*boundCounter
	hist     *BoundHistogram // at most one histogram per scope (§4.4)
}

// NewScope creates a root scope. name must be non-empty. tagPairs is a
// flattened (key, value, key, value, ...) list of constant tags;
// duplicate keys keep the first value seen.
func NewScope(name string, tagPairs ...string) *Scope {
	if name == "" {
		panic("linmetric: scope name must not be empty")
	}
	fqName := sanitize(name)
	if fqName[0] >= '0' && fqName[0] <= '9' {
		// Prometheus metric names must not start with a digit.
		fqName = "_" + fqName
	}
	s := &Scope{
		root:     newRegistry(),
		fqName:   fqName,
		tags:     tagsFromPairs(nil, tagPairs),
		children: make(map[string]*Scope),
		gauges:   make(map[string]*BoundGauge),
		counters: make(map[string]*boundCounter),
	}
	return s
}

// Scope returns the named child scope, creating it on first use. A
// second call with the same name returns the same child regardless of
// the tags passed the second time.
func (s *Scope) Scope(name string, tagPairs ...string) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	if child, ok := s.children[name]; ok {
		return child
	}
	child := &Scope{
		root:     s.root,
		fqName:   s.fqName + "_" + sanitize(name),
		tags:     tagsFromPairs(s.tags, tagPairs),
		children: make(map[string]*Scope),
		gauges:   make(map[string]*BoundGauge),
		counters: make(map[string]*boundCounter),
	}
	s.children[name] = child
	return child
}

// NewGauge returns the named gauge under this scope, creating it on
// first use. Repeated calls with the same name return the same bound
// gauge.
func (s *Scope) NewGauge(name string) *BoundGauge {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.gauges[name]; ok {
		return g
	}
	g := newBoundGauge(s.root, s.fqName+"_"+sanitize(name), s.tags)
	s.gauges[name] = g
	return g
}

// NewCumulativeCounter returns the named counter, never reset by
// Gather, creating it on first use.
func (s *Scope) NewCumulativeCounter(name string) *BoundDeltaCounter {
	return s.boundCounter(name, false)
}

// NewDeltaCounter returns the named counter whose value is reset to
// zero every time it is gathered, creating it on first use.
func (s *Scope) NewDeltaCounter(name string) *BoundDeltaCounter {
	return s.boundCounter(name, true)
}

func (s *Scope) boundCounter(name string, delta bool) *BoundDeltaCounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[name]; ok {
		if c.delta != delta {
			panic(fmt.Sprintf("linmetric: counter %q already registered as %s", name, kindOf(c.delta)))
		}
		return &BoundDeltaCounter{c: c}
	}
	c := newBoundCounter(s.root, s.fqName+"_"+sanitize(name), s.tags, delta)
	s.counters[name] = c
	return &BoundDeltaCounter{c: c}
}

// NewCumulativeHistogram returns this scope's histogram, configured to
// never reset its bucket counts on Gather. A scope may hold at most
// one histogram; asking for the other kind after one was created
// panics.
func (s *Scope) NewCumulativeHistogram() *BoundHistogram {
	return s.boundHistogram(false)
}

// NewDeltaHistogram returns this scope's histogram, configured to
// reset its bucket counts on every Gather.
func (s *Scope) NewDeltaHistogram() *BoundHistogram {
	return s.boundHistogram(true)
}

func (s *Scope) boundHistogram(delta bool) *BoundHistogram {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hist != nil {
		if s.hist.delta != delta {
			panic(fmt.Sprintf("linmetric: histogram already registered as %s", kindOf(s.hist.delta)))
		}
		return s.hist
	}
	s.hist = newBoundHistogram(s.root, s.fqName+"_duration", s.tags, delta)
	return s.hist
}

func kindOf(delta bool) string {
	if delta {
		return "delta"
	}
	return "cumulative"
}

func tagsFromPairs(base map[string]string, pairs []string) map[string]string {
	out := make(map[string]string, len(base)+len(pairs)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		k, v := pairs[i], pairs[i+1]
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// BoundGauge is a single mutable gauge value.
type BoundGauge struct {
	value atomic.Float64
	pg    prometheus.Gauge
}

func newBoundGauge(r *registry, fqName string, tags map[string]string) *BoundGauge {
	g := &BoundGauge{pg: prometheus.NewGauge(prometheus.GaugeOpts{Name: fqName, ConstLabels: tags})}
	r.registerGauge(g)
	return g
}

// Incr adds 1.
func (g *BoundGauge) Incr() { g.Add(1) }

// Decr subtracts 1.
func (g *BoundGauge) Decr() { g.Add(-1) }

// Add adds delta.
func (g *BoundGauge) Add(delta float64) {
	g.value.Add(delta)
	g.pg.Add(delta)
}

// Update sets the gauge to v.
func (g *BoundGauge) Update(v float64) {
	g.value.Store(v)
	g.pg.Set(v)
}

// Get returns the current value.
func (g *BoundGauge) Get() float64 { return g.value.Load() }

type boundCounter struct {
	value atomic.Float64
	delta bool
	pc    prometheus.Counter
}

func newBoundCounter(r *registry, fqName string, tags map[string]string, delta bool) *boundCounter {
	c := &boundCounter{delta: delta, pc: prometheus.NewCounter(prometheus.CounterOpts{Name: fqName, ConstLabels: tags})}
	r.registerCounter(c)
	return c
}

// BoundDeltaCounter is a monotonically-incremented counter; whether it
// resets to zero on Gather depends on how it was created
// (NewDeltaCounter vs NewCumulativeCounter).
type BoundDeltaCounter struct {
	c *boundCounter
}

// Incr adds 1.
func (c *BoundDeltaCounter) Incr() { c.Add(1) }

// Add adds delta (delta must be >= 0).
func (c *BoundDeltaCounter) Add(delta float64) {
	c.c.value.Add(delta)
	c.c.pc.Add(delta)
}

// Get returns the current value.
func (c *BoundDeltaCounter) Get() float64 { return c.c.value.Load() }

// registry is the Prometheus-backed collection point for every metric
// created under a root Scope's tree.
type registry struct {
	reg *prometheus.Registry

	mu       sync.Mutex
	gauges   []*BoundGauge
	counters []*boundCounter
	hists    []*BoundHistogram
}

func newRegistry() *registry {
	return &registry{reg: prometheus.NewRegistry()}
}

func (r *registry) registerGauge(g *BoundGauge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, g)
	_ = r.reg.Register(g.pg)
}

func (r *registry) registerCounter(c *boundCounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, c)
	_ = r.reg.Register(c.pc)
}

func (r *registry) registerHistogram(h *BoundHistogram) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, h)
}

// resetDeltas resets every delta counter's value and every delta
// histogram's bucket counts to zero. The Prometheus counters registered
// with reg are not touched: they keep counting cumulatively.
func (r *registry) resetDeltas() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.counters {
		if c.delta {
			c.value.Store(0)
		}
	}
	for _, h := range r.hists {
		if h.delta {
			h.bkts.reset()
		}
	}
}

// sortedKeys is a small helper kept for deterministic tag ordering in
// debug output; unused by the hot path but handy in tests.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
