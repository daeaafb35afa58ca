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

import "sync"

// executorCache is the FIFO of retired TaskExecutors kept around so a
// newly spawned worker can skip reconstruction cost. Toggling caching
// off must drain and close() every cached executor under the same
// lock that guards the toggle, so a retiring worker can never race a
// concurrent SetWorkerCaching(false) into leaking an executor.
type executorCache struct {
	mu      sync.Mutex
	enabled bool
	items   []TaskExecutor
}

func newExecutorCache() *executorCache {
	return &executorCache{}
}

// setEnabled toggles caching. Disabling it drains and closes whatever
// is currently cached.
func (c *executorCache) setEnabled(enabled bool, logger logFn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if enabled {
		return
	}
	for _, te := range c.items {
		closeExecutor(te, logger)
	}
	c.items = nil
}

// offer returns te to the cache if caching is enabled; otherwise it
// closes te immediately and reports false.
func (c *executorCache) offer(te TaskExecutor, logger logFn) bool {
	c.mu.Lock()
	if c.enabled {
		c.items = append(c.items, te)
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	closeExecutor(te, logger)
	return false
}

// poll returns a cached executor, or nil if the cache is empty.
func (c *executorCache) poll() TaskExecutor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return nil
	}
	te := c.items[0]
	c.items = c.items[1:]
	return te
}

// logFn reports a swallowed runtime error; TaskFailure and close()
// failures are both routed through it (§7).
type logFn func(format string, args ...interface{})

func closeExecutor(te TaskExecutor, logger logFn) {
	defer func() {
		if r := recover(); r != nil {
			logger("task executor close panicked: %v", r)
		}
	}()
	if err := te.Close(); err != nil {
		logger("task executor close failed: %v", err)
	}
}
