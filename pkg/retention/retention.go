// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package retention implements the retention tracker (spec.md §4.7): the
// per-feed IP age histogram, incrementally maintained from each new
// canonical snapshot by diffing against the last-seen snapshot and every
// still-outstanding "new" cohort.
package retention

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"ipsetkeeper/pkg/ipset"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Histogram maps an hour bucket to the number of IPs observed with that
// age.
type Histogram map[int]int

// Sum returns the total count across all buckets.
func (h Histogram) Sum() int {
	total := 0
	for _, v := range h {
		total += v
	}
	return total
}

// State is the persisted retention model for one feed (spec.md §3).
type State struct {
	Started     time.Time
	Incomplete  bool
	Past        Histogram
	Current     Histogram
	LastUpdated time.Time
}

// Tracker maintains one feed's retention State under BaseDir
// (lib/<name>/... per spec.md §6): a latest binary snapshot, a new/<ts>
// binary diff per still-outstanding cohort, and the changesets/retention
// CSV logs.
type Tracker struct {
	BaseDir string
}

// NewTracker returns a Tracker rooted at baseDir (the feed's lib/<name>
// directory).
func NewTracker(baseDir string) *Tracker {
	return &Tracker{BaseDir: baseDir}
}

func (t *Tracker) latestPath() string       { return filepath.Join(t.BaseDir, "latest") }
func (t *Tracker) newDir() string           { return filepath.Join(t.BaseDir, "new") }
func (t *Tracker) newPath(x time.Time) string {
	return filepath.Join(t.newDir(), strconv.FormatInt(x.Unix(), 10))
}
func (t *Tracker) metadataPath() string  { return filepath.Join(t.BaseDir, "metadata") }
func (t *Tracker) histogramPath() string { return filepath.Join(t.BaseDir, "histogram") }
func (t *Tracker) changesetsPath() string { return filepath.Join(t.BaseDir, "changesets.csv") }
func (t *Tracker) retentionCSVPath() string { return filepath.Join(t.BaseDir, "retention.csv") }

type persistedMeta struct {
	StartedUnix     int64 `msgpack:"started"`
	Incomplete      bool  `msgpack:"incomplete"`
	LastUpdatedUnix int64 `msgpack:"last_updated"`
}

type persistedHistogram struct {
	Past    map[int]int `msgpack:"past"`
	Current map[int]int `msgpack:"current"`
}

func (t *Tracker) loadMeta() (persistedMeta, bool, error) {
	data, err := os.ReadFile(t.metadataPath())
	if os.IsNotExist(err) {
		return persistedMeta{}, false, nil
	}
	if err != nil {
		return persistedMeta{}, false, err
	}
	var m persistedMeta
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return persistedMeta{}, false, fmt.Errorf("retention: corrupt metadata: %w", err)
	}
	return m, true, nil
}

func (t *Tracker) loadHistogram() (persistedHistogram, error) {
	data, err := os.ReadFile(t.histogramPath())
	if os.IsNotExist(err) {
		return persistedHistogram{Past: map[int]int{}, Current: map[int]int{}}, nil
	}
	if err != nil {
		return persistedHistogram{}, err
	}
	var h persistedHistogram
	if err := msgpack.Unmarshal(data, &h); err != nil {
		return persistedHistogram{}, fmt.Errorf("retention: corrupt histogram: %w", err)
	}
	if h.Past == nil {
		h.Past = map[int]int{}
	}
	if h.Current == nil {
		h.Current = map[int]int{}
	}
	return h, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (t *Tracker) saveMeta(m persistedMeta) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return writeAtomic(t.metadataPath(), data)
}

func (t *Tracker) saveHistogram(h persistedHistogram) error {
	data, err := msgpack.Marshal(h)
	if err != nil {
		return err
	}
	return writeAtomic(t.histogramPath(), data)
}

func (t *Tracker) loadLatest() (*ipset.Set, error) {
	f, err := os.Open(t.latestPath())
	if os.IsNotExist(err) {
		return &ipset.Set{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ipset.ReadBinary(f)
}

func (t *Tracker) saveLatest(s *ipset.Set) error {
	if err := os.MkdirAll(t.BaseDir, dirPerm); err != nil {
		return err
	}
	tmp := t.latestPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	if err := s.WriteBinary(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, t.latestPath())
}

// cohort is one surviving new/<x> entry.
type cohort struct {
	ts  time.Time
	set *ipset.Set
}

func (t *Tracker) loadCohorts() ([]cohort, error) {
	entries, err := os.ReadDir(t.newDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []cohort
	for _, de := range entries {
		sec, err := strconv.ParseInt(de.Name(), 10, 64)
		if err != nil {
			continue
		}
		f, err := os.Open(filepath.Join(t.newDir(), de.Name()))
		if err != nil {
			return nil, err
		}
		set, err := ipset.ReadBinary(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, cohort{ts: time.Unix(sec, 0).UTC(), set: set})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ts.Before(out[j].ts) })
	return out, nil
}

func (t *Tracker) writeCohort(x time.Time, s *ipset.Set) error {
	if err := os.MkdirAll(t.newDir(), dirPerm); err != nil {
		return err
	}
	path := t.newPath(x)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	if err := s.WriteBinary(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return os.Chtimes(path, x, x)
}

func (t *Tracker) removeCohort(x time.Time) error {
	err := os.Remove(t.newPath(x))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func ageHours(t, x time.Time) int {
	return int(math.Round(t.Sub(x).Hours()))
}

func appendCSVRow(path string, row []string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Update runs the retention algorithm of spec.md §4.7 for a fresh snapshot
// S observed at t. If S is not newer than the last-processed snapshot, the
// persisted State is returned unchanged.
func (t *Tracker) Update(tt time.Time, s *ipset.Set) (State, error) {
	meta, hadMeta, err := t.loadMeta()
	if err != nil {
		return State{}, err
	}

	if hadMeta && !tt.After(time.Unix(meta.LastUpdatedUnix, 0)) {
		hist, err := t.loadHistogram()
		if err != nil {
			return State{}, err
		}
		return State{
			Started:     time.Unix(meta.StartedUnix, 0).UTC(),
			Incomplete:  meta.Incomplete,
			Past:        Histogram(hist.Past),
			Current:     Histogram(hist.Current),
			LastUpdated: time.Unix(meta.LastUpdatedUnix, 0).UTC(),
		}, nil
	}

	started := tt
	if hadMeta {
		started = time.Unix(meta.StartedUnix, 0).UTC()
	}

	latest, err := t.loadLatest()
	if err != nil {
		return State{}, err
	}

	added := s.Difference(latest)
	removedCount := latest.Difference(s).UniqueCount()

	if err := appendCSVRow(t.changesetsPath(), []string{
		strconv.FormatInt(tt.Unix(), 10),
		strconv.FormatUint(added.UniqueCount(), 10),
		strconv.FormatUint(removedCount, 10),
	}); err != nil {
		return State{}, err
	}

	if !added.Empty() {
		if err := t.writeCohort(tt, added); err != nil {
			return State{}, err
		}
	}

	hist, err := t.loadHistogram()
	if err != nil {
		return State{}, err
	}

	cohorts, err := t.loadCohorts()
	if err != nil {
		return State{}, err
	}

	incomplete := false
	current := Histogram{}
	for _, c := range cohorts {
		still := c.set.Intersect(s)
		removed := c.set.Difference(still)

		if !removed.Empty() {
			hours := ageHours(tt, c.ts)
			// spec.md §4.7's prose says "if x > started"; its own worked
			// example (§8 scenario 6) requires the founding cohort's own
			// departure (x == started) to land in Past too. Following the
			// worked example: x >= started.
			if !c.ts.Before(started) {
				hist.Past[hours] += int(removed.UniqueCount())
			}
			if err := appendCSVRow(t.retentionCSVPath(), []string{
				strconv.FormatInt(tt.Unix(), 10),
				strconv.FormatInt(c.ts.Unix(), 10),
				strconv.Itoa(hours),
				strconv.FormatUint(removed.UniqueCount(), 10),
			}); err != nil {
				return State{}, err
			}
		}

		if still.Empty() {
			if err := t.removeCohort(c.ts); err != nil {
				return State{}, err
			}
			continue
		}
		if err := t.writeCohort(c.ts, still); err != nil {
			return State{}, err
		}
		hours := ageHours(tt, c.ts)
		current[hours] += int(still.UniqueCount())
		if !c.ts.After(started) {
			incomplete = true
		}
	}

	if err := t.saveLatest(s); err != nil {
		return State{}, err
	}
	if err := t.saveHistogram(persistedHistogram{Past: map[int]int(hist.Past), Current: map[int]int(current)}); err != nil {
		return State{}, err
	}
	if err := t.saveMeta(persistedMeta{
		StartedUnix:     started.Unix(),
		Incomplete:      incomplete,
		LastUpdatedUnix: tt.Unix(),
	}); err != nil {
		return State{}, err
	}

	return State{
		Started:     started,
		Incomplete:  incomplete,
		Past:        hist.Past,
		Current:     current,
		LastUpdated: tt,
	}, nil
}

// summaryLine formats a one-line human-readable retention summary.
func summaryLine(feed string, st State) string {
	return fmt.Sprintf("%s: started=%s incomplete=%v past=%d current=%d",
		feed, st.Started.Format(time.RFC3339), st.Incomplete, st.Past.Sum(), st.Current.Sum())
}

// Summary is summaryLine exported for callers outside this package.
func Summary(feed string, st State) string { return summaryLine(feed, st) }
