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
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_WorkerIDGen_Advance(t *testing.T) {
	g := newWorkerIDGen()
	assert.Equal(t, "0", g.next())
	assert.Equal(t, "1", g.next())

	g2 := &workerIDGen{digits: []byte("8")}
	assert.Equal(t, "8", g2.next())
	assert.Equal(t, "9", g2.next())
	assert.Equal(t, "a", g2.next())
}

func Test_WorkerIDGen_CarriesAndGrows(t *testing.T) {
	g := &workerIDGen{digits: []byte("z")}
	assert.Equal(t, "z", g.next())
	// overflowed the only position: grow by one digit, reset to lowest.
	assert.Equal(t, "00", g.next())
	assert.Equal(t, "01", g.next())
}

func Test_WorkerIDGen_CarryLeft(t *testing.T) {
	g := &workerIDGen{digits: []byte("9z")}
	assert.Equal(t, "9z", g.next())
	assert.Equal(t, "a0", g.next())
}

func Test_WorkerIDGen_Unique(t *testing.T) {
	g := newWorkerIDGen()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := g.next()
		assert.False(t, seen[id], "id %q repeated", id)
		seen[id] = true
	}
}
