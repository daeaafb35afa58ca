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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Histogram_LinearBuckets(t *testing.T) {
	h := &BoundHistogram{}
	h.WithLinearBuckets(time.Second, time.Second*5, 5)

	// boundaries: [1000 2333.33 3666.67 5000] + Inf
	h.UpdateMilliseconds(900)  // bucket0
	h.UpdateSeconds(1)         // bucket0
	h.UpdateMilliseconds(1001) // bucket1
	h.UpdateMilliseconds(2332) // bucket1
	h.UpdateMilliseconds(3666) // bucket2
	h.UpdateMilliseconds(3667) // bucket3
	h.UpdateMilliseconds(4999) // bucket3
	h.UpdateMilliseconds(5000) // bucket3
	h.UpdateDuration(time.Second * 6) // bucket4 (+Inf)
	h.UpdateSince(time.Now().Add(time.Second))            // drop, future instant
	h.UpdateSince(time.Now().Add(-500 * time.Millisecond)) // bucket0

	assert.InDeltaSlice(t, []float64{3, 2, 1, 3, 1}, h.bkts.snapshot(), 0.01)
}

func Test_Histogram_ExponentialBuckets(t *testing.T) {
	h := &BoundHistogram{}
	h.WithExponentBuckets(time.Millisecond, time.Second, 5)

	bounds := h.bkts.bounds
	assert.Len(t, bounds, 4)
	assert.InDelta(t, 1, bounds[0], 0.01)
	assert.InDelta(t, 1000, bounds[len(bounds)-1], 0.01)

	h.UpdateMilliseconds(0)
	assert.Equal(t, float64(1), h.bkts.snapshot()[0])
}

func Test_Histogram_ConcurrentUpdates(t *testing.T) {
	h := &BoundHistogram{}
	h.WithLinearBuckets(0, time.Second, 10)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.UpdateMilliseconds(10)
		}()
	}
	wg.Wait()

	total := 0.0
	for _, v := range h.bkts.snapshot() {
		total += v
	}
	assert.Equal(t, float64(100), total)
}

func Test_Histogram_DeltaResetsOnGather(t *testing.T) {
	scope := NewScope("hist-delta")
	h := scope.NewDeltaHistogram()
	h.WithLinearBuckets(0, time.Second, 5)
	h.UpdateMilliseconds(10)
	assert.NotZero(t, sum(h.bkts.snapshot()))

	scope.root.resetDeltas()
	assert.Zero(t, sum(h.bkts.snapshot()))
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
