// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package publish

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is an in-memory KernelAdapter for exercising SwapSet's
// control flow without a real kernel.
type fakeAdapter struct {
	sets        map[string][]string
	failRestore string
	failSwap    bool
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{sets: map[string][]string{}} }

func (f *fakeAdapter) ListNames() ([]string, error) {
	var out []string
	for n := range f.sets {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeAdapter) Create(name string, interval bool, maxelem int) error {
	f.sets[name] = nil
	return nil
}

func (f *fakeAdapter) Restore(name string, elements []string) error {
	if name == f.failRestore {
		return errors.New("boom")
	}
	f.sets[name] = append(f.sets[name], elements...)
	return nil
}

func (f *fakeAdapter) Swap(a, b string) error {
	if f.failSwap {
		return errors.New("swap boom")
	}
	f.sets[a], f.sets[b] = f.sets[b], f.sets[a]
	return nil
}

func (f *fakeAdapter) Destroy(name string) error {
	delete(f.sets, name)
	return nil
}

func TestSwapSetCreatesDirectlyWhenAbsent(t *testing.T) {
	a := newFakeAdapter()
	require.NoError(t, SwapSet(a, "blocklist", true, []string{"1.2.3.0/24"}))
	assert.Equal(t, []string{"1.2.3.0/24"}, a.sets["blocklist"])
}

func TestSwapSetUsesTempSwapWhenPresent(t *testing.T) {
	a := newFakeAdapter()
	a.sets["blocklist"] = []string{"old"}

	require.NoError(t, SwapSet(a, "blocklist", true, []string{"new"}))

	assert.Equal(t, []string{"new"}, a.sets["blocklist"])
	_, tmpStillThere := a.sets["blocklist_tmp"]
	assert.False(t, tmpStillThere)
}

func TestSwapSetLeavesProductionUntouchedOnLoadFailure(t *testing.T) {
	a := newFakeAdapter()
	a.sets["blocklist"] = []string{"old"}
	a.failRestore = "blocklist_tmp"

	err := SwapSet(a, "blocklist", true, []string{"new"})
	require.Error(t, err)
	assert.Equal(t, []string{"old"}, a.sets["blocklist"])
	_, tmpStillThere := a.sets["blocklist_tmp"]
	assert.False(t, tmpStillThere)
}

func TestSwapSetDestroysTempOnSwapFailure(t *testing.T) {
	a := newFakeAdapter()
	a.sets["blocklist"] = []string{"old"}
	a.failSwap = true

	err := SwapSet(a, "blocklist", true, []string{"new"})
	require.ErrorIs(t, err, ErrSwapFailed)
	assert.Equal(t, []string{"old"}, a.sets["blocklist"])
	_, tmpStillThere := a.sets["blocklist_tmp"]
	assert.False(t, tmpStillThere)
}

func TestMaxElemForDoublesAboveDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxElem, MaxElemFor(100))
	assert.Equal(t, 200000, MaxElemFor(100000))
}
