// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package publish

import (
	"fmt"
	"net"

	"github.com/google/nftables"
)

// NFTablesConn abstracts nftables.Conn, grounded on grimm-is-glacic's
// interfaces.go, narrowed to the operations KernelAdapter needs.
type NFTablesConn interface {
	ListTables() ([]*nftables.Table, error)
	AddSet(s *nftables.Set, vals []nftables.SetElement) error
	DelSet(s *nftables.Set)
	GetSets(t *nftables.Table) ([]*nftables.Set, error)
	GetSetElements(s *nftables.Set) ([]nftables.SetElement, error)
	SetAddElements(s *nftables.Set, vals []nftables.SetElement) error
	FlushSet(s *nftables.Set)
	Flush() error
}

// NativeAdapter implements KernelAdapter directly against the kernel's
// netlink nftables API via google/nftables, avoiding a subprocess per
// operation. Grounded on grimm-is-glacic's NativeIPSetManager.
type NativeAdapter struct {
	Conn  NFTablesConn
	Table string

	table *nftables.Table
}

// NewNativeAdapter returns a NativeAdapter bound to an existing
// nftables.Conn and table name.
func NewNativeAdapter(conn NFTablesConn, table string) *NativeAdapter {
	return &NativeAdapter{Conn: conn, Table: table}
}

func (a *NativeAdapter) resolveTable() (*nftables.Table, error) {
	if a.table != nil {
		return a.table, nil
	}
	tables, err := a.Conn.ListTables()
	if err != nil {
		return nil, fmt.Errorf("publish: list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == a.Table && t.Family == nftables.TableFamilyINet {
			a.table = t
			return t, nil
		}
	}
	return nil, fmt.Errorf("publish: table %s not found", a.Table)
}

// ListNames implements KernelAdapter.
func (a *NativeAdapter) ListNames() ([]string, error) {
	table, err := a.resolveTable()
	if err != nil {
		return nil, err
	}
	sets, err := a.Conn.GetSets(table)
	if err != nil {
		return nil, fmt.Errorf("publish: get sets: %w", err)
	}
	names := make([]string, 0, len(sets))
	for _, s := range sets {
		names = append(names, s.Name)
	}
	return names, nil
}

// Create implements KernelAdapter.
func (a *NativeAdapter) Create(name string, interval bool, maxelem int) error {
	if !validSetName.MatchString(name) {
		return fmt.Errorf("%w: %s", ErrInvalidSetName, name)
	}
	table, err := a.resolveTable()
	if err != nil {
		return err
	}
	set := &nftables.Set{
		Name:     name,
		Table:    table,
		KeyType:  nftables.TypeIPAddr,
		Interval: interval,
	}
	if err := a.Conn.AddSet(set, nil); err != nil {
		return fmt.Errorf("publish: add set %s: %w", name, err)
	}
	return a.Conn.Flush()
}

func (a *NativeAdapter) findSet(name string) (*nftables.Set, error) {
	table, err := a.resolveTable()
	if err != nil {
		return nil, err
	}
	sets, err := a.Conn.GetSets(table)
	if err != nil {
		return nil, fmt.Errorf("publish: get sets: %w", err)
	}
	for _, s := range sets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("publish: set %s not found", name)
}

// cidrElements expands a CIDR or bare address into the SetElement pair (or
// single element) nftables interval sets expect, matching
// NativeIPSetManager.AddElements's range-end-exclusive encoding.
func cidrElements(token string) ([]nftables.SetElement, error) {
	ip := net.ParseIP(token)
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		return []nftables.SetElement{{Key: ip}}, nil
	}

	_, ipnet, err := net.ParseCIDR(token)
	if err != nil {
		return nil, fmt.Errorf("publish: invalid element %q: %w", token, err)
	}
	start := ipnet.IP.To4()
	end := make(net.IP, len(start))
	copy(end, start)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] |= ^ipnet.Mask[i]
	}
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			break
		}
	}
	return []nftables.SetElement{
		{Key: start},
		{Key: end, IntervalEnd: true},
	}, nil
}

// Restore implements KernelAdapter.
func (a *NativeAdapter) Restore(name string, elements []string) error {
	set, err := a.findSet(name)
	if err != nil {
		return err
	}
	var setElements []nftables.SetElement
	for _, e := range elements {
		els, err := cidrElements(e)
		if err != nil {
			return err
		}
		setElements = append(setElements, els...)
	}
	if len(setElements) == 0 {
		return nil
	}
	if err := a.Conn.SetAddElements(set, setElements); err != nil {
		return fmt.Errorf("publish: add elements to %s: %w", name, err)
	}
	return a.Conn.Flush()
}

// Swap moves src's elements into dst, flushing dst first so the result is
// exactly src's contents; google/nftables has no rename primitive, so this
// is a flush+copy rather than a true kernel-side rename. The caller
// (SwapSet) destroys src afterward, so dst ends up holding what src held
// and src is left to be torn down.
func (a *NativeAdapter) Swap(dst, src string) error {
	dstSet, err := a.findSet(dst)
	if err != nil {
		return err
	}
	srcSet, err := a.findSet(src)
	if err != nil {
		return err
	}
	elements, err := a.Conn.GetSetElements(srcSet)
	if err != nil {
		return fmt.Errorf("publish: read elements of %s: %w", src, err)
	}

	a.Conn.FlushSet(dstSet)
	if len(elements) > 0 {
		if err := a.Conn.SetAddElements(dstSet, elements); err != nil {
			return fmt.Errorf("publish: copy elements into %s: %w", dst, err)
		}
	}
	return a.Conn.Flush()
}

// Destroy implements KernelAdapter.
func (a *NativeAdapter) Destroy(name string) error {
	set, err := a.findSet(name)
	if err != nil {
		return err
	}
	a.Conn.DelSet(set)
	return a.Conn.Flush()
}
