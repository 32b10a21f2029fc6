// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Command kafkaspout runs a single Spout instance stand-alone against a
// topic, printing every emitted tuple to the log. It demonstrates wiring
// config, a sideline HTTP trigger would plug in where StartSideline/
// StopSideline are called, and is not meant as a production entry point
// for a real Storm topology (a real topology drives Open/NextTuple/Ack/
// Fail/Close from its own worker loop).
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/uber-go/kafka-spout/internal/config"
	"github.com/uber-go/kafka-spout/kafka"
	"github.com/uber-go/kafka-spout/spout"
)

type logEmitter struct {
	logger *zap.Logger
}

func (e logEmitter) Emit(streamID string, value kafka.Value, id kafka.MessageID) {
	e.logger.Info("emit", zap.String("stream", streamID), zap.String("messageId", id.String()))
}

func main() {
	flags := pflag.NewFlagSet("kafkaspout", pflag.ExitOnError)
	config.RegisterFlags(flags)
	configFile := flags.String("config", "", "optional config file (yaml/json/toml), overlaid on top of defaults; flags set on the command line take precedence")
	taskIndex := flags.Int("task.index", 0, "this instance's task index, for p mod N == i partition assignment")
	taskCount := flags.Int("task.count", 1, "total parallel instances of this spout")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(viper.New(), flags, *configFile)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	s := spout.New(cfg, logger, tally.NoopScope)
	if err := s.Open(spout.Context{TaskIndex: *taskIndex, TaskCount: *taskCount}, logEmitter{logger: logger}); err != nil {
		logger.Fatal("spout open failed", zap.Error(err))
	}
	defer s.Close()

	logger.Info("kafkaspout running", zap.String("runId", uuid.NewString()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logger.Info("shutting down")
			return
		case <-ticker.C:
			s.NextTuple()
		}
	}
}
