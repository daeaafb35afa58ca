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
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lindb/taskrun/internal/concurrent"
	"github.com/lindb/taskrun/internal/linmetric"
	"github.com/lindb/taskrun/internal/timer"
	"github.com/lindb/taskrun/pkg/config"
	"github.com/lindb/taskrun/pkg/logger"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the configured pools and timer scheduler",
	RunE:  runRuntime,
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
}

// hosted keeps the live objects runRuntime built, so the periodic
// logPoolSnapshot handle can introspect them without re-reading config.
type hosted struct {
	pools     map[string]*concurrent.ElasticExecutor
	scheduler *timer.TimerScheduler
	scope     *linmetric.Scope
}

func runRuntime(cmd *cobra.Command, _ []string) error {
	rt := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		rt = loaded
	}

	logger.InitLogger(logger.Settings{
		Dir:        rt.Logging.Dir,
		Level:      rt.Logging.Level,
		MaxSizeMB:  rt.Logging.MaxSizeMB,
		MaxBackups: rt.Logging.MaxBackups,
		MaxAgeDays: rt.Logging.MaxAgeDays,
		Compress:   rt.Logging.Compress,
	})
	log := logger.GetLogger("runtimectl", "run")

	scope := linmetric.NewScope("runtimectl")
	h := &hosted{pools: map[string]*concurrent.ElasticExecutor{}, scope: scope}

	var schedulerOpts []timer.Option
	for i, p := range rt.Pools {
		pool := buildPool(p, scope)
		h.pools[p.Name] = pool
		if i == 0 {
			// the first configured pool backs every Any-threaded handle;
			// operators who need a dedicated pool for timer-driven work
			// should list it first in runtime.toml.
			target := pool
			schedulerOpts = append(schedulerOpts, timer.WithAccessoryRunner(func(run func()) bool {
				return target.Submit(run)
			}))
		}
	}

	h.scheduler = timer.NewScheduler(append(schedulerOpts, timer.WithName(rt.Scheduler.Name))...)
	h.scheduler.Build(func() { h.logPoolSnapshot(log) }).
		SetFrequency(5*time.Second, true).
		RunNextIn(5 * time.Second).
		WithThreading(timer.Timer).
		SetActive(true)

	gather := linmetric.NewGather(scope, linmetric.WithReadRuntimeOption())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheusGatherer{gather}, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logger.Error(err))
		}
	}()
	log.Info("runtimectl started", logger.Any("metrics_addr", metricsAddr), logger.Any("pools", len(h.pools)))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	for name, pool := range h.pools {
		pool.Clear(nil)
		if !pool.WaitUntilIdle(5 * time.Second) {
			log.Warn("pool did not drain before shutdown", logger.Any("pool", name))
		}
	}
	return nil
}

// logPoolSnapshot is the scheduler's one built-in housekeeping handle:
// a periodic, low-cardinality log line per pool, independent of the
// Prometheus scrape interval.
func (h *hosted) logPoolSnapshot(log *logger.Logger) {
	for name, pool := range h.pools {
		log.Debug("pool snapshot",
			logger.Any("pool", name),
			logger.Any("threads", pool.ThreadCount()),
			logger.Any("active", pool.ActiveThreads()),
			logger.Any("queue", pool.QueueSize()),
		)
	}
}

func buildPool(p config.Pool, scope *linmetric.Scope) *concurrent.ElasticExecutor {
	return concurrent.NewElasticExecutor(p.Name,
		func() concurrent.TaskExecutor { return inlineExecutor{} },
		concurrent.WithRange(p.MinWorkers, p.MaxWorkers),
		concurrent.WithMaxQueueSize(p.MaxQueueSize),
		concurrent.WithUnusedLifetime(p.UnusedLifetime.Duration),
		concurrent.WithWorkerCaching(p.CacheWorkers),
		concurrent.WithMetricsScope(scope.Scope(p.Name)),
	)
}

// inlineExecutor runs every submitted concurrent.Task inline, where a
// Task is itself a func(). Real hosts supply their own TaskExecutor
// factory fitting their work; this one exists so `runtimectl run` has
// something to execute out of the box.
type inlineExecutor struct{}

func (inlineExecutor) Execute(task concurrent.Task) error {
	if fn, ok := task.(func()); ok {
		fn()
	}
	return nil
}

func (inlineExecutor) Close() error { return nil }

// prometheusGatherer adapts linmetric.Gather to prometheus.Gatherer so
// promhttp.HandlerFor can serve it directly, applying the delta
// counter/histogram reset on every scrape.
type prometheusGatherer struct{ g *linmetric.Gather }

func (p prometheusGatherer) Gather() ([]*dto.MetricFamily, error) { return p.g.Gather() }
