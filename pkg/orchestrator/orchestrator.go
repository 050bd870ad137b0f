// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package orchestrator implements the run-level concerns of spec.md §4.10:
// the exclusive run lock, the scratch workspace, walking the feed registry,
// driving every feed through the fetch/parse/canonicalize/publish pipeline,
// and aggregating per-feed failures without aborting the run.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ipsetkeeper/pkg/config"
	"ipsetkeeper/pkg/feed"
	"ipsetkeeper/pkg/fetch"
	"ipsetkeeper/pkg/history"
	"ipsetkeeper/pkg/lock"
	"ipsetkeeper/pkg/metacache"
	"ipsetkeeper/pkg/model"
	"ipsetkeeper/pkg/parse"
	"ipsetkeeper/pkg/publish"
	"ipsetkeeper/pkg/retention"
	"ipsetkeeper/pkg/schedule"
	"ipsetkeeper/pkg/workspace"
)

// Error is a sentinel error type, comparable with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnknownFetcherKind Error = "orchestrator: feed names an unregistered fetcher kind"
	ErrUnknownParserStep  Error = "orchestrator: feed names an unregistered parser step"
)

// Options controls one Run, mirroring spec.md §6's documented CLI flags.
type Options struct {
	RunOnly   []string // empty/nil => every configured feed
	EnableAll bool     // --enable-all
	Recheck   bool     // --recheck: bypass the Scheduler's timer
	Reprocess bool     // --reprocess: re-canonicalize even on NotModified
	Cleanup   bool     // --cleanup: delete retired feeds' artifacts
	Kernel    publish.KernelAdapter // nil => publish.NoopAdapter{}
}

// FeedReport is one state transition an observer (the CLI, tests) cares
// about: the terminal or near-terminal state a feed (or split/window peer)
// reached this run, and the error that produced it, if any.
type FeedReport struct {
	Name  string
	State model.FeedState
	Err   error
}

// Report summarizes one full Run.
type Report struct {
	Feeds []FeedReport
	Stale []string // feed names whose last publication exceeds metacache.StaleThreshold
}

// Failed reports whether any feed in the report ended in an error state.
func (r Report) Failed() bool {
	for _, f := range r.Feeds {
		if f.Err != nil {
			return true
		}
	}
	return false
}

// Enable creates the epoch-timestamped "<name>.source" enablement marker
// for each listed feed (spec.md §6's "enable <name>..." subcommand).
func Enable(reg *config.Registry, names []string) error {
	epoch := time.Unix(0, 0).UTC()
	for _, name := range names {
		path := filepath.Join(reg.Settings.CacheDir, name+".source")
		if err := publish.FSPublish(path, nil, epoch); err != nil {
			return fmt.Errorf("orchestrator: enable %s: %w", name, err)
		}
	}
	return nil
}

// Run executes one full pass over reg's feed registry (spec.md §2's
// control flow), persisting cache before returning regardless of how many
// individual feeds failed — only a startup precondition (lock contention,
// an unregistered fetcher/parser name, workspace creation) fails the Run
// itself.
func Run(ctx context.Context, reg *config.Registry, cache *metacache.Cache, now time.Time, opts Options) (Report, error) {
	adapter := opts.Kernel
	if adapter == nil {
		adapter = publish.NoopAdapter{}
	}

	lk, err := lock.Acquire(filepath.Join(reg.Settings.BaseDir, ".lock"))
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			log.Printf("WARN: release run lock: %v", err)
		}
	}()

	ws, err := workspace.New(reg.Settings.TmpDir)
	if err != nil {
		return Report{}, fmt.Errorf("orchestrator: build workspace: %w", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Printf("WARN: remove workspace %s: %v", ws.Root, err)
		}
	}()

	fetched := map[string]fetch.Result{}
	fetchers := fetch.NewRegistry(fetched)
	parsers := parse.NewRegistry()

	pipelines, err := validate(reg, parsers, fetchers)
	if err != nil {
		return Report{}, err
	}

	r := &run{
		ctx:       ctx,
		reg:       reg,
		cache:     cache,
		fetchers:  fetchers,
		fetched:   fetched,
		pipelines: pipelines,
		history:   history.NewStore(reg.Settings.HistoryDir),
		adapter:   adapter,
		now:       now,
		opts:      opts,
		runOnly:   toSet(opts.RunOnly),
	}

	var rep Report
	for _, def := range reg.Feeds {
		if ctx.Err() != nil {
			log.Printf("WARN: run cancelled, stopping before feed %s", def.Name)
			break
		}
		if _, err := ws.FeedDir(def.Name); err != nil {
			log.Printf("WARN: feed %s: workspace scratch dir: %v", def.Name, err)
		}
		rep.Feeds = append(rep.Feeds, r.processDefinition(def)...)
	}

	if opts.Cleanup {
		removeRetired(reg, cache)
	}

	for _, name := range cache.Feeds() {
		if metacache.IsStale(cache.Get(name), now) {
			rep.Stale = append(rep.Stale, name)
			log.Printf("WARN: feed %s: DATA ARE TOO OLD", name)
		}
	}

	if err := cache.Save(); err != nil {
		return rep, fmt.Errorf("orchestrator: save metadata cache: %w", err)
	}

	return rep, nil
}

// validate resolves every feed's fetcher kind and parser chain up front, so
// an unknown name is a fatal startup error rather than a mid-run surprise
// (spec.md §9's "unknown names fail at load, not at run").
func validate(reg *config.Registry, parsers *parse.Registry, fetchers *fetch.Registry) (map[string]*parse.Pipeline, error) {
	pipelines := make(map[string]*parse.Pipeline, len(reg.Feeds))
	for _, def := range reg.Feeds {
		if _, err := fetchers.Lookup(def.Fetcher.Kind); err != nil {
			return nil, fmt.Errorf("%w: feed %s: %v", ErrUnknownFetcherKind, def.Name, err)
		}
		p, err := parsers.Resolve(def.ParserChain)
		if err != nil {
			return nil, fmt.Errorf("%w: feed %s: %v", ErrUnknownParserStep, def.Name, err)
		}
		pipelines[def.Name] = p
	}
	return pipelines, nil
}

// run carries the state shared across every feed processed in one Run.
type run struct {
	ctx       context.Context
	reg       *config.Registry
	cache     *metacache.Cache
	fetchers  *fetch.Registry
	fetched   map[string]fetch.Result
	pipelines map[string]*parse.Pipeline
	history   *history.Store
	adapter   publish.KernelAdapter
	now       time.Time
	opts      Options
	runOnly   map[string]bool
}

// processDefinition drives one registry entry through fetch, then dispatches
// to one or two representation-scoped canonicalization passes (two for
// split feeds, which share a single fetch but are tracked, published, and
// versioned as independent feeds from here on).
func (r *run) processDefinition(def model.FeedDefinition) []FeedReport {
	tokens, sourceMtime, reports, proceed := r.fetchOne(def)
	if !proceed {
		return reports
	}

	if def.Representation == model.RepSplit {
		ip, net := def.SplitPeers()
		out := r.processParsed(ip, tokens, sourceMtime)
		return append(out, r.processParsed(net, tokens, sourceMtime)...)
	}

	return r.processParsed(def, tokens, sourceMtime)
}

// fetchOne carries a feed through the enablement check, the run-only
// filter, the Scheduler, and the Downloader/parser pipeline, returning
// tokens ready for canonicalization. proceed is false whenever the feed's
// run is over before canonicalization — the returned reports are already
// terminal in that case.
func (r *run) fetchOne(def model.FeedDefinition) (tokens []string, sourceMtime time.Time, reports []FeedReport, proceed bool) {
	name := def.Name
	st := r.cache.Get(name)

	markerPath := filepath.Join(r.reg.Settings.CacheDir, name+".source")
	if _, err := os.Stat(markerPath); os.IsNotExist(err) && !r.opts.EnableAll {
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateDisabled}}, false
	}

	if len(r.runOnly) > 0 && !r.runOnly[name] {
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateSkippedNotReq}}, false
	}

	decision := schedule.Decide(r.now, st.LastChecked, def.UpdatePeriod, st.ConsecutiveFailures,
		r.reg.Settings.IgnoreRepeatingDownloadErrors, r.opts.Recheck)
	if !decision.ShouldRun {
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateSkippedNotDue}}, false
	}

	fetcher, err := r.fetchers.Lookup(def.Fetcher.Kind)
	if err != nil {
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateFetchFailed, Err: err}}, false
	}

	source := def.SourceURL
	if def.Fetcher.Kind == model.FetcherComposite {
		source = def.Fetcher.CompositeOf
	}

	var prevBody []byte
	if data, err := os.ReadFile(markerPath); err == nil {
		prevBody = data
	}

	req := fetch.Request{
		Source:         source,
		PreviousMtime:  st.LastSourceTimestamp,
		PreviousBody:   prevBody,
		AcceptEmpty:    def.AcceptEmpty,
		UserAgent:      firstNonEmpty(def.Fetcher.UserAgent, r.reg.Settings.UserAgent),
		ConnectTimeout: firstNonZero(def.Fetcher.ConnectTimeout, r.reg.Settings.MaxConnectTimeout()),
		TotalTimeout:   firstNonZero(def.Fetcher.TotalTimeout, r.reg.Settings.MaxDownloadTimeout()),
	}

	result, err := fetcher.Fetch(r.ctx, req)
	r.fetched[name] = result

	switch result.Outcome {
	case fetch.Failed:
		st.ConsecutiveFailures++
		st.LastChecked = r.now
		r.cache.Put(name, st)
		log.Printf("WARN: feed %s: fetch failed (%s): %v", name, result.ErrorCode, err)
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateFetchFailed, Err: err}}, false

	case fetch.NotModified:
		st.ConsecutiveFailures = 0
		st.LastChecked = r.now
		r.cache.Put(name, st)
		if !r.opts.Reprocess || prevBody == nil {
			return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateFetchNotModified}}, false
		}
		result = fetch.Result{Outcome: fetch.OK, Body: prevBody, Mtime: st.LastSourceTimestamp}

	case fetch.OK:
		if err := publish.FSPublish(markerPath, result.Body, result.Mtime); err != nil {
			return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateFetchFailed, Err: err}}, false
		}
	}

	sourceMtime = result.Mtime
	if sourceMtime.After(r.now) {
		skew := int64(sourceMtime.Sub(r.now).Seconds())
		st.ClockSkewSeconds = skew
		r.cache.Put(name, st)
		log.Printf("WARN: feed %s: source timestamp is %ds ahead of local clock", name, skew)
	}

	pipeline := r.pipelines[name]
	toks, err := pipeline.Run(result.Body)
	if err != nil {
		return nil, time.Time{}, []FeedReport{{Name: name, State: model.StateParseInvalid, Err: err}}, false
	}

	return toks, sourceMtime, nil, true
}

// processParsed canonicalizes tokens for one representation-scoped feed
// (the feed itself, or one split peer) and, on change, runs in this order:
// file publication, history archive write, retention update, metadata
// write, kernel swap (rewriting the metadata entry if the swap fails), then
// the windowed aggregates. The file is therefore published before the
// archive write, and the metadata is written before the kernel swap.
func (r *run) processParsed(def model.FeedDefinition, tokens []string, sourceMtime time.Time) []FeedReport {
	name := def.Name
	st := r.cache.Get(name)

	result, err := feed.Process(def, tokens, sourceMtime, r.now, st.Version+1, r.readCanonical(name, def.Representation))
	if err != nil {
		return []FeedReport{{Name: name, State: model.StateParseEmpty, Err: err}}
	}

	if !result.Changed {
		st.LastChecked = r.now
		st.ConsecutiveFailures = 0
		st.Touch(r.now, result.Entries, int64(result.IPs))
		r.cache.Put(name, st)
		r.touchCanonical(name, def.Representation, sourceMtime)
		return []FeedReport{{Name: name, State: model.StateDiffSame}}
	}

	reports := []FeedReport{{Name: name, State: model.StateDiffChanged}}

	path := r.canonicalPath(name, def.Representation)
	if err := publish.FSPublish(path, result.Snapshot, sourceMtime); err != nil {
		if perr := publish.PreserveError(r.reg.Settings.ErrorsDir, name, result.Snapshot, r.now); perr != nil {
			log.Printf("WARN: feed %s: preserve failed artifact: %v", name, perr)
		}
		st.LastPublishFailure = err.Error()
		r.cache.Put(name, st)
		return append(reports, FeedReport{Name: name, State: model.StatePublishFailed, Err: err})
	}
	reports = append(reports, FeedReport{Name: name, State: model.StatePublished})

	if err := r.history.Keep(name, sourceMtime, result.Set); err != nil {
		log.Printf("WARN: feed %s: history keep failed: %v", name, err)
	} else {
		reports = append(reports, FeedReport{Name: name, State: model.StateHistoryUpdated})
	}

	tracker := retention.NewTracker(filepath.Join(r.reg.Settings.LibDir, name))
	if _, err := tracker.Update(sourceMtime, result.Set); err != nil {
		log.Printf("WARN: feed %s: retention update failed: %v", name, err)
	} else {
		reports = append(reports, FeedReport{Name: name, State: model.StateRetentionUpdated})
	}

	st.Touch(r.now, result.Entries, int64(result.IPs))
	st.Version++
	st.LastSourceTimestamp = sourceMtime
	st.LastChecked = r.now
	st.ConsecutiveFailures = 0
	st.LastPublishFailure = ""
	r.cache.Put(name, st)

	elements := feed.KernelElements(result.Set, def.Representation, r.reg.Settings.IPSetReduceFactor, r.reg.Settings.IPSetReduceEntries)
	interval := def.Representation != model.RepIP
	if err := publish.SwapSet(r.adapter, name, interval, elements); err != nil {
		log.Printf("WARN: feed %s: kernel swap failed: %v", name, err)
		st.LastPublishFailure = err.Error()
		r.cache.Put(name, st)
	}

	reports = append(reports, FeedReport{Name: name, State: model.StateDone})
	reports = append(reports, r.processWindows(def)...)

	if len(def.HistoryWindows) > 0 {
		longest := def.HistoryWindows[0]
		for _, w := range def.HistoryWindows {
			if w > longest {
				longest = w
			}
		}
		if err := r.history.Cleanup(name, longest, r.now); err != nil {
			log.Printf("WARN: feed %s: history cleanup failed: %v", name, err)
		}
	}

	return reports
}

// processWindows composes and publishes every windowed aggregate
// configured for def (spec.md §4.5), each tracked under its own
// "<name>_<window>" metadata-cache entry and kernel set.
func (r *run) processWindows(def model.FeedDefinition) []FeedReport {
	var reports []FeedReport
	for _, w := range def.HistoryWindows {
		windowName := def.Name + "_" + feed.WindowSuffix(w)

		union, err := r.history.UnionSince(def.Name, w, r.now)
		if err != nil {
			log.Printf("WARN: window %s: union failed: %v", windowName, err)
			continue
		}

		wst := r.cache.Get(windowName)
		prevCanonical := r.readCanonical(windowName, def.Representation)
		wres := feed.ProcessWindow(def, w, union, r.now, wst.Version+1, prevCanonical)

		if !wres.Changed {
			r.touchCanonical(windowName, def.Representation, r.now)
			continue
		}

		path := r.canonicalPath(windowName, def.Representation)
		if err := publish.FSPublish(path, wres.Snapshot, r.now); err != nil {
			log.Printf("WARN: window %s: publish failed: %v", windowName, err)
			continue
		}

		wst.Touch(r.now, wres.Entries, int64(wres.IPs))
		wst.Version++
		wst.LastChecked = r.now
		r.cache.Put(windowName, wst)

		elements := feed.KernelElements(wres.Set, def.Representation, r.reg.Settings.IPSetReduceFactor, r.reg.Settings.IPSetReduceEntries)
		interval := def.Representation != model.RepIP
		if err := publish.SwapSet(r.adapter, windowName, interval, elements); err != nil {
			log.Printf("WARN: window %s: kernel swap failed: %v", windowName, err)
		}

		reports = append(reports, FeedReport{Name: windowName, State: model.StateDone})
	}
	return reports
}

func (r *run) canonicalExt(rep model.Representation) string {
	if feed.HashKindFor(rep) == "ip" {
		return ".ipset"
	}
	return ".netset"
}

func (r *run) canonicalPath(name string, rep model.Representation) string {
	return filepath.Join(r.reg.Settings.BaseDir, name+r.canonicalExt(rep))
}

func (r *run) readCanonical(name string, rep model.Representation) []byte {
	data, err := os.ReadFile(r.canonicalPath(name, rep))
	if err != nil {
		return nil
	}
	return data
}

func (r *run) touchCanonical(name string, rep model.Representation, mtime time.Time) {
	if mtime.IsZero() {
		return
	}
	_ = os.Chtimes(r.canonicalPath(name, rep), mtime, mtime)
}

// removeRetired deletes every artifact of a tracked feed that no longer
// appears in reg's registry (spec.md §6's --cleanup flag), leaving alone
// any cache entry that is a split peer or windowed aggregate of a feed that
// is still configured.
func removeRetired(reg *config.Registry, cache *metacache.Cache) {
	live := map[string]bool{}
	for _, def := range reg.Feeds {
		if def.Representation == model.RepSplit {
			ip, net := def.SplitPeers()
			live[ip.Name] = true
			live[net.Name] = true
		} else {
			live[def.Name] = true
		}
	}

	for _, name := range cache.Feeds() {
		if live[name] {
			continue
		}
		retired := true
		for _, def := range reg.Feeds {
			if strings.HasPrefix(name, def.Name+"_") {
				retired = false
				break
			}
		}
		if !retired {
			continue
		}

		log.Printf("INFO: cleanup: removing retired feed %s", name)
		os.Remove(filepath.Join(reg.Settings.BaseDir, name+".ipset"))
		os.Remove(filepath.Join(reg.Settings.BaseDir, name+".netset"))
		os.Remove(filepath.Join(reg.Settings.CacheDir, name+".source"))
		os.RemoveAll(filepath.Join(reg.Settings.HistoryDir, name))
		os.RemoveAll(filepath.Join(reg.Settings.LibDir, name))
		if matches, err := filepath.Glob(filepath.Join(reg.Settings.ErrorsDir, name+"-*")); err == nil {
			for _, m := range matches {
				// preserved error files are named <feed>-<unix seconds>
				if ts := strings.TrimPrefix(filepath.Base(m), name+"-"); ts != "" && strings.Trim(ts, "0123456789") == "" {
					os.Remove(m)
				}
			}
		}
		cache.Delete(name)
	}
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b time.Duration) time.Duration {
	if a != 0 {
		return a
	}
	return b
}
