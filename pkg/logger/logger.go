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

// Package logger provides the structured, rotating logger every
// runtimectl component logs through.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings configures the process-wide logger. Dir == "" logs to
// stdout only.
type Settings struct {
	Dir        string
	Filename   string
	Level      string // debug, info, warn, error
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (s Settings) withDefaults() Settings {
	if s.Filename == "" {
		s.Filename = "runtimectl.log"
	}
	if s.Level == "" {
		s.Level = "info"
	}
	if s.MaxSizeMB == 0 {
		s.MaxSizeMB = 100
	}
	if s.MaxBackups == 0 {
		s.MaxBackups = 3
	}
	if s.MaxAgeDays == 0 {
		s.MaxAgeDays = 7
	}
	return s
}

// Logger is a module/role-scoped handle onto the process-wide zap
// core. Holding one across an InitLogger reconfiguration is safe: it
// always logs through the current core.
type Logger struct {
	module, role string
}

var (
	mu   sync.RWMutex
	core *zap.Logger = mustBuild(Settings{}.withDefaults())
)

func levelOf(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func mustBuild(s Settings) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	var writer zapcore.WriteSyncer
	if s.Dir == "" {
		writer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	} else {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   s.Dir + "/" + s.Filename,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAgeDays,
			Compress:   s.Compress,
		})
	}

	c := zapcore.NewCore(encoder, writer, levelOf(s.Level))
	return zap.New(c, zap.AddCaller(), zap.AddCallerSkip(2))
}

// InitLogger (re)configures the process-wide logger backing every
// previously and subsequently created *Logger. Call once at startup,
// before any component logs.
func InitLogger(s Settings) {
	z := mustBuild(s.withDefaults())
	mu.Lock()
	core = z
	mu.Unlock()
}

// GetLogger returns a logger scoped to a module/role pair, e.g.
// GetLogger("executor", "pool") or GetLogger("scheduler", "dispatcher").
func GetLogger(module, role string) *Logger {
	return &Logger{module: module, role: role}
}

// Error adapts an error into a zap field named "error"; nil errors are
// omitted from the field, not rendered as "error: <nil>".
func Error(err error) zap.Field { return zap.Error(err) }

// Any is a passthrough to zap.Any for callers that want a typed field
// without importing zap directly.
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.with().Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.with().Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.with().Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.with().Error(msg, fields...) }

func (l *Logger) with() *zap.Logger {
	mu.RLock()
	c := core
	mu.RUnlock()
	return c.With(zap.String("module", l.module), zap.String("role", l.role))
}
