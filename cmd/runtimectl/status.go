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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lindb/taskrun/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate and print the resolved pool/scheduler configuration",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	rt := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		rt = loaded
	} else if err := rt.Validate(); err != nil {
		return err
	}

	fmt.Printf("scheduler: %s\n", rt.Scheduler.Name)
	for _, p := range rt.Pools {
		fmt.Printf("pool %-20s min=%-4d max=%-4d maxQueue=%-10d unusedLifetime=%s cache=%v\n",
			p.Name, p.MinWorkers, p.MaxWorkers, p.MaxQueueSize, p.UnusedLifetime.Duration, p.CacheWorkers)
	}
	return nil
}
