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
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "runtimectl",
	Short: "Run and inspect elastic worker pools and the timer scheduler",
	Long: `runtimectl hosts ElasticExecutor worker pools and a TimerScheduler
described by a TOML configuration file, exposing their state over
Prometheus metrics; a small status command prints the resolved
configuration.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to runtime.toml")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}
