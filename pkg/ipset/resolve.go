// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

// DefaultResolveConcurrency is the default concurrency ceiling for
// ResolveHostnames, per spec.md §4.1.
const DefaultResolveConcurrency = 10

// ResolveCacheTTL is how long a resolved hostname's A records are trusted
// before ResolveHostnames re-resolves it.
const ResolveCacheTTL = time.Hour

// ResolveCache is a small on-disk cache of hostname -> resolved-addresses,
// so a feed whose source list is itself a list of hostnames does not
// re-resolve every one of them on every run. It reuses the teacher's
// leveldb+msgpack store shape (pkg/iporgdb/db.go), keyed by hostname
// instead of by IP range.
type ResolveCache struct {
	db *leveldb.DB
	mu sync.Mutex
}

type cachedResolution struct {
	IPs       [][4]byte
	ResolvedAt int64 // unix seconds
}

// OpenResolveCache opens or creates the cache at path.
func OpenResolveCache(path string) (*ResolveCache, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open resolve cache: %w", err)
	}
	return &ResolveCache{db: db}, nil
}

// Close closes the underlying database.
func (c *ResolveCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func (c *ResolveCache) get(host string) ([]net.IP, bool) {
	c.mu.Lock()
	raw, err := c.db.Get([]byte(host), nil)
	c.mu.Unlock()
	if err != nil {
		return nil, false
	}
	var rec cachedResolution
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	if time.Since(time.Unix(rec.ResolvedAt, 0)) > ResolveCacheTTL {
		return nil, false
	}
	ips := make([]net.IP, len(rec.IPs))
	for i, b := range rec.IPs {
		ips[i] = net.IPv4(b[0], b[1], b[2], b[3])
	}
	return ips, true
}

func (c *ResolveCache) put(host string, ips []net.IP, now time.Time) error {
	rec := cachedResolution{ResolvedAt: now.Unix()}
	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		rec.IPs = append(rec.IPs, [4]byte{v4[0], v4[1], v4[2], v4[3]})
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Put([]byte(host), data, nil)
}

// Resolver looks up A records for a hostname. DefaultResolver adapts
// net.Resolver's LookupIPAddr to it, keeping only IPv4 results; callers of
// ResolveHostnames pass the Resolver explicitly, and tests supply a stub.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

type netResolver struct{ r *net.Resolver }

func (n netResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := n.r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	return ips, nil
}

// DefaultResolver wraps the standard library resolver.
func DefaultResolver() Resolver {
	return netResolver{r: net.DefaultResolver}
}

// ResolveHostnames resolves each hostname's A records in parallel, bounded
// by concurrency, consulting and refreshing cache along the way.
// Unresolvable names are dropped with a warning rather than failing the
// whole call, matching spec.md §4.1.
func ResolveHostnames(ctx context.Context, hostnames []string, resolver Resolver, cache *ResolveCache, concurrency int) (*Set, []string) {
	if concurrency <= 0 {
		concurrency = DefaultResolveConcurrency
	}
	limiter := rate.NewLimiter(rate.Limit(concurrency), concurrency)

	type result struct {
		ips []net.IP
		err error
	}
	results := make([]result, len(hostnames))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, host := range hostnames {
		if cache != nil {
			if ips, ok := cache.get(host); ok {
				results[i] = result{ips: ips}
				continue
			}
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, host string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := limiter.Wait(ctx); err != nil {
				results[i] = result{err: err}
				return
			}
			ips, err := resolver.LookupIP(ctx, host)
			results[i] = result{ips: ips, err: err}
			if err == nil && cache != nil {
				_ = cache.put(host, ips, time.Now())
			}
		}(i, host)
	}
	wg.Wait()

	var ranges []Range
	var warnings []string
	for i, r := range results {
		if r.err != nil || len(r.ips) == 0 {
			warnings = append(warnings, fmt.Sprintf("could not resolve %q", hostnames[i]))
			continue
		}
		for _, ip := range r.ips {
			v, err := IPToUint32(ip)
			if err != nil {
				continue
			}
			ranges = append(ranges, Range{Start: v, End: v})
		}
	}
	return NewSet(ranges...), warnings
}
