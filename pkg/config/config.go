// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package config loads the YAML Registry document spec.md §6 describes:
// one file declaring every feed plus the global settings, with environment
// variables overriding individual settings at load time (no hot-reload —
// the orchestrator is a run-once batch process, spec.md §5).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ipsetkeeper/pkg/model"
)

// Error is a sentinel error type, comparable with ==.
type Error string

func (e Error) Error() string { return string(e) }

const ErrInvalidConfig Error = "invalid configuration"

// Settings holds the global, environment-overridable run parameters
// spec.md §6 names.
type Settings struct {
	BaseDir    string `yaml:"base_dir"`
	CacheDir   string `yaml:"cache_dir"`
	LibDir     string `yaml:"lib_dir"`
	TmpDir     string `yaml:"tmp_dir"`
	HistoryDir string `yaml:"history_dir"`
	ErrorsDir  string `yaml:"errors_dir"`

	ParallelDNSQueries int    `yaml:"parallel_dns_queries"`
	MaxDownloadTime    string `yaml:"max_download_time"`
	MaxConnectTime     string `yaml:"max_connect_time"`
	UserAgent          string `yaml:"user_agent"`

	// IgnoreRepeatingDownloadErrors is F0 in the Scheduler's failure policy
	// (spec.md §4.3): up to this many consecutive failures are treated as
	// transient before the linear back-off penalty kicks in.
	IgnoreRepeatingDownloadErrors int `yaml:"ignore_repeating_download_errors"`

	IPSetReduceFactor  int `yaml:"ipset_reduce_factor"`
	IPSetReduceEntries int `yaml:"ipset_reduce_entries"`
}

// MaxDownloadTimeout parses MaxDownloadTime, defaulting to 300s.
func (s Settings) MaxDownloadTimeout() time.Duration {
	return parseDurationOr(s.MaxDownloadTime, 300*time.Second)
}

// MaxConnectTimeout parses MaxConnectTime, defaulting to 10s.
func (s Settings) MaxConnectTimeout() time.Duration {
	return parseDurationOr(s.MaxConnectTime, 10*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// feedYAML is the on-disk shape of one feed entry; durations are strings
// (e.g. "30m", "24h") so they round-trip through YAML cleanly, then get
// parsed into model.FeedDefinition's time.Duration fields.
type feedYAML struct {
	Name string `yaml:"name"`

	SourceURL  string `yaml:"source_url"`
	FetchKind  string `yaml:"fetch_kind"`
	CompositeOf string `yaml:"composite_of"`

	UpdatePeriod   string   `yaml:"update_period"`
	HistoryWindows []string `yaml:"history_windows"`

	Representation string     `yaml:"representation"`
	ParserChain    []stepYAML `yaml:"parser_chain"`

	Category    string `yaml:"category"`
	Maintainer  string `yaml:"maintainer"`
	License     string `yaml:"license"`
	Description string `yaml:"description"`
	IntendedUse string `yaml:"intended_use"`

	AcceptEmpty bool `yaml:"accept_empty"`

	UserAgent      string `yaml:"user_agent"`
	ConnectTimeout string `yaml:"connect_timeout"`
	TotalTimeout   string `yaml:"total_timeout"`
}

type stepYAML struct {
	Name string            `yaml:"name"`
	Args map[string]string `yaml:"args"`
}

// document is the root YAML shape.
type document struct {
	Settings Settings   `yaml:"settings"`
	Feeds    []feedYAML `yaml:"feeds"`
}

// Registry is the loaded, fully-parsed configuration for one run.
type Registry struct {
	Settings Settings
	Feeds    []model.FeedDefinition
}

// Load reads path, applies environment overrides (spec.md §6), and returns
// the parsed Registry. An empty path loads defaults with only environment
// overrides applied, with no feeds.
func Load(path string) (*Registry, error) {
	doc := document{
		Settings: Settings{
			BaseDir:            "/var/lib/ipsetkeeper",
			ParallelDNSQueries: 8,
			MaxDownloadTime:    "300s",
			MaxConnectTime:     "10s",
			UserAgent:          "ipsetkeeper/1.0",
			IgnoreRepeatingDownloadErrors: 10,
			IPSetReduceFactor:  20,
			IPSetReduceEntries: 65536,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&doc.Settings)
	deriveDirs(&doc.Settings)

	feeds, err := parseFeeds(doc.Feeds)
	if err != nil {
		return nil, err
	}

	return &Registry{Settings: doc.Settings, Feeds: feeds}, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("BASE_DIR"); v != "" {
		s.BaseDir = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		s.CacheDir = v
	}
	if v := os.Getenv("LIB_DIR"); v != "" {
		s.LibDir = v
	}
	if v := os.Getenv("TMP_DIR"); v != "" {
		s.TmpDir = v
	}
	if v := os.Getenv("HISTORY_DIR"); v != "" {
		s.HistoryDir = v
	}
	if v := os.Getenv("ERRORS_DIR"); v != "" {
		s.ErrorsDir = v
	}
	if v := os.Getenv("PARALLEL_DNS_QUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.ParallelDNSQueries = n
		}
	}
	if v := os.Getenv("MAX_DOWNLOAD_TIME"); v != "" {
		s.MaxDownloadTime = v
	}
	if v := os.Getenv("MAX_CONNECT_TIME"); v != "" {
		s.MaxConnectTime = v
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		s.UserAgent = v
	}
	if v := os.Getenv("IGNORE_REPEATING_DOWNLOAD_ERRORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.IgnoreRepeatingDownloadErrors = n
		}
	}
	if v := os.Getenv("IPSET_REDUCE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.IPSetReduceFactor = n
		}
	}
	if v := os.Getenv("IPSET_REDUCE_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.IPSetReduceEntries = n
		}
	}
}

// deriveDirs fills any unset directory setting from BaseDir, matching
// spec.md §6's layout (cache/, lib/, tmp/, history/, errors/ under the
// base directory unless overridden individually).
func deriveDirs(s *Settings) {
	if s.CacheDir == "" {
		s.CacheDir = s.BaseDir + "/cache"
	}
	if s.LibDir == "" {
		s.LibDir = s.BaseDir + "/lib"
	}
	if s.TmpDir == "" {
		s.TmpDir = s.BaseDir + "/tmp"
	}
	if s.HistoryDir == "" {
		s.HistoryDir = s.BaseDir + "/history"
	}
	if s.ErrorsDir == "" {
		s.ErrorsDir = s.BaseDir + "/errors"
	}
}

func parseFeeds(raw []feedYAML) ([]model.FeedDefinition, error) {
	out := make([]model.FeedDefinition, 0, len(raw))
	for _, f := range raw {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: feed entry missing name", ErrInvalidConfig)
		}

		period, err := time.ParseDuration(defaultStr(f.UpdatePeriod, "60m"))
		if err != nil {
			return nil, fmt.Errorf("%w: feed %s: update_period: %v", ErrInvalidConfig, f.Name, err)
		}

		var windows []time.Duration
		for _, w := range f.HistoryWindows {
			d, err := time.ParseDuration(w)
			if err != nil {
				return nil, fmt.Errorf("%w: feed %s: history_windows: %v", ErrInvalidConfig, f.Name, err)
			}
			windows = append(windows, d)
		}

		chain := make([]model.ParserStep, 0, len(f.ParserChain))
		for _, s := range f.ParserChain {
			chain = append(chain, model.ParserStep{Name: s.Name, Args: s.Args})
		}

		def := model.FeedDefinition{
			Name:           f.Name,
			SourceURL:      f.SourceURL,
			Fetcher: model.FetcherOptions{
				Kind:           model.FetcherKind(defaultStr(f.FetchKind, string(model.FetcherHTTP))),
				CompositeOf:    f.CompositeOf,
				UserAgent:      f.UserAgent,
				ConnectTimeout: parseDurationOr(f.ConnectTimeout, 10*time.Second),
				TotalTimeout:   parseDurationOr(f.TotalTimeout, 300*time.Second),
			},
			UpdatePeriod:   period,
			HistoryWindows: windows,
			Family:         model.FamilyV4,
			Representation: model.Representation(defaultStr(f.Representation, string(model.RepBoth))),
			ParserChain:    chain,
			Category:       f.Category,
			Maintainer:     f.Maintainer,
			License:        f.License,
			Description:    f.Description,
			IntendedUse:    f.IntendedUse,
			AcceptEmpty:    f.AcceptEmpty,
		}
		out = append(out, def)
	}
	return out, nil
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
