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

// Package config loads and validates the typed configuration every other
// component is built from (spec.md section 6's configuration keys),
// through github.com/spf13/viper with flags registered through
// github.com/spf13/pflag.
package config

import (
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	kerrors "github.com/uber-go/kafka-spout/errors"
)

// Config is the typed form of every key in spec.md section 6's
// configuration table, plus the handful the etcd-backed Persistence
// Adapter and Coordinator close timeout need beyond what spec.md names
// explicitly.
type Config struct {
	BrokerHosts []string `mapstructure:"broker.hosts"`
	BrokerTopic string   `mapstructure:"broker.topic"`

	ConsumerIDPrefix string `mapstructure:"consumer.id.prefix"`

	PersistenceClass      string        `mapstructure:"persistence.class"`
	PersistenceRoot       string        `mapstructure:"persistence.root"`
	PersistencePrefix     string        `mapstructure:"persistence.prefix"`
	PersistenceEndpoints  []string      `mapstructure:"persistence.endpoints"`
	PersistenceDialTimeout time.Duration `mapstructure:"persistence.dial.timeout.ms"`

	DeserializerClass string `mapstructure:"deserializer.class"`
	RetryClass        string `mapstructure:"retry.class"`
	BufferClass       string `mapstructure:"buffer.class"`

	BufferMaxSize       int    `mapstructure:"buffer.max.size"`
	BufferThrottledSize int    `mapstructure:"buffer.throttled.size"`
	BufferThrottledRegex string `mapstructure:"buffer.throttled.regex"`

	RetryMaxAttempts     int     `mapstructure:"retry.max.attempts"`
	RetryInitialDelayMs  int     `mapstructure:"retry.initial.delay.ms"`
	RetryDelayMultiplier float64 `mapstructure:"retry.delay.multiplier"`

	FlushIntervalMs int `mapstructure:"flush.interval.ms"`

	OutputStreamID string `mapstructure:"output.stream.id"`

	// CoordinatorCloseTimeoutMs is the per-source worker join timeout
	// spec.md section 5 names (default 10s) but section 6 never turns
	// into a named key; exposed here so it is still operator-tunable.
	CoordinatorCloseTimeoutMs int `mapstructure:"coordinator.close.timeout.ms"`
}

// Defaults returns a Config populated with every default value this
// module ships, before any file, env, or flag overlay is applied.
func Defaults() Config {
	return Config{
		PersistenceClass:         "memory",
		PersistenceRoot:          "/kafkaspout",
		DeserializerClass:        "passthrough",
		RetryClass:               "exponential",
		BufferClass:              "roundrobin",
		BufferMaxSize:            1000,
		BufferThrottledSize:      10,
		RetryMaxAttempts:         5,
		RetryInitialDelayMs:      100,
		RetryDelayMultiplier:     2.0,
		FlushIntervalMs:          1000,
		OutputStreamID:           "default",
		CoordinatorCloseTimeoutMs: 10000,
		PersistenceDialTimeout:   5 * time.Second,
	}
}

// RegisterFlags binds every configuration key to a pflag flag, mirroring
// the spothero-tools RegisterFlags(flags *pflag.FlagSet) convention:
// callers Parse the flag set and then hand it to Load so viper picks up
// whichever values were actually set on the command line.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.StringSlice("broker.hosts", nil, "kafka broker host:port list")
	flags.String("broker.topic", "", "kafka topic to consume")
	flags.String("consumer.id.prefix", "", "firehose source id prefix")
	flags.String("persistence.class", d.PersistenceClass, "persistence adapter: etcd or memory")
	flags.String("persistence.root", d.PersistenceRoot, "coordination store root path")
	flags.String("persistence.prefix", d.PersistencePrefix, "coordination store prefix under root")
	flags.StringSlice("persistence.endpoints", nil, "etcd endpoint list")
	flags.Duration("persistence.dial.timeout.ms", d.PersistenceDialTimeout, "etcd dial timeout")
	flags.String("deserializer.class", d.DeserializerClass, "deserializer plugin selector")
	flags.String("retry.class", d.RetryClass, "retry manager plugin selector")
	flags.String("buffer.class", d.BufferClass, "message buffer plugin selector: fifo, roundrobin, or throttled")
	flags.Int("buffer.max.size", d.BufferMaxSize, "per-source buffer capacity")
	flags.Int("buffer.throttled.size", d.BufferThrottledSize, "throttled-source buffer capacity")
	flags.String("buffer.throttled.regex", d.BufferThrottledRegex, "source id pattern matched against the throttled capacity")
	flags.Int("retry.max.attempts", d.RetryMaxAttempts, "maximum retry attempts before treating fail as ack")
	flags.Int("retry.initial.delay.ms", d.RetryInitialDelayMs, "initial retry backoff in milliseconds")
	flags.Float64("retry.delay.multiplier", d.RetryDelayMultiplier, "retry backoff multiplier")
	flags.Int("flush.interval.ms", d.FlushIntervalMs, "source flush tick interval in milliseconds")
	flags.String("output.stream.id", d.OutputStreamID, "host output stream id")
	flags.Int("coordinator.close.timeout.ms", d.CoordinatorCloseTimeoutMs, "per-source worker join timeout on close")
}

// Load binds flags into v, applies an optional config file, reads
// KAFKASPOUT_-prefixed environment overlays, and unmarshals the result.
func Load(v *viper.Viper, flags *pflag.FlagSet, configFile string) (Config, error) {
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, kerrors.Wrapf(kerrors.KindConfiguration, err, "config: bind flags")
	}
	v.SetEnvPrefix("KAFKASPOUT")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, kerrors.Wrapf(kerrors.KindConfiguration, err, "config: read %s", configFile)
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, kerrors.Wrapf(kerrors.KindConfiguration, err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports a Configuration error for the first missing or
// ill-typed required key, per spec.md section 7's Configuration error
// kind: fatal, surfaced at open time, no partial state left behind.
func (c Config) Validate() error {
	if len(c.BrokerHosts) == 0 {
		return kerrors.New(kerrors.KindConfiguration, "config: broker.hosts must not be empty")
	}
	if c.BrokerTopic == "" {
		return kerrors.New(kerrors.KindConfiguration, "config: broker.topic must not be empty")
	}
	if c.ConsumerIDPrefix == "" {
		return kerrors.New(kerrors.KindConfiguration, "config: consumer.id.prefix must not be empty")
	}
	if c.PersistenceClass != "etcd" && c.PersistenceClass != "memory" {
		return kerrors.Newf(kerrors.KindConfiguration, "config: persistence.class must be etcd or memory, got %q", c.PersistenceClass)
	}
	if c.PersistenceClass == "etcd" && len(c.PersistenceEndpoints) == 0 {
		return kerrors.New(kerrors.KindConfiguration, "config: persistence.endpoints must not be empty when persistence.class is etcd")
	}
	if c.BufferClass != "fifo" && c.BufferClass != "roundrobin" && c.BufferClass != "throttled" {
		return kerrors.Newf(kerrors.KindConfiguration, "config: buffer.class must be fifo, roundrobin or throttled, got %q", c.BufferClass)
	}
	if c.BufferMaxSize <= 0 {
		return kerrors.Newf(kerrors.KindConfiguration, "config: buffer.max.size must be positive, got %d", c.BufferMaxSize)
	}
	if c.BufferClass == "throttled" {
		if c.BufferThrottledSize <= 0 {
			return kerrors.Newf(kerrors.KindConfiguration, "config: buffer.throttled.size must be positive, got %d", c.BufferThrottledSize)
		}
		if _, err := regexp.Compile(c.BufferThrottledRegex); err != nil {
			return kerrors.Wrapf(kerrors.KindConfiguration, err, "config: buffer.throttled.regex is not a valid pattern")
		}
	}
	if c.FlushIntervalMs <= 0 {
		return kerrors.Newf(kerrors.KindConfiguration, "config: flush.interval.ms must be positive, got %d", c.FlushIntervalMs)
	}
	if c.RetryMaxAttempts < 0 {
		return kerrors.Newf(kerrors.KindConfiguration, "config: retry.max.attempts must not be negative, got %d", c.RetryMaxAttempts)
	}
	return nil
}
