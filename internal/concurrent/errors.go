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

import "github.com/pkg/errors"

// ErrConfiguration is returned synchronously by a configuration mutator
// when the requested values are out of range. It never has a runtime
// side effect: the pool's prior configuration is left untouched.
var ErrConfiguration = errors.New("concurrent: invalid configuration")

// ErrSpawnFailed is raised when the worker factory fails to produce a
// TaskExecutor while the pool has no live worker. Failures of the same
// kind while other workers are alive are absorbed silently (§4.1):
// those workers will eventually drain the queue.
var ErrSpawnFailed = errors.New("concurrent: worker factory exhausted on first spawn")

// configError wraps ErrConfiguration with the offending field so callers
// can log a precise cause.
func configError(msg string) error {
	return errors.Wrap(ErrConfiguration, msg)
}
