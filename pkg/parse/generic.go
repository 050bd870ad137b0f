// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package parse

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// StripHashComments truncates every line at its first '#', so a comment-only
// line becomes an empty (or whitespace-only) line rather than being dropped.
func StripHashComments(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			if idx := strings.IndexByte(l, '#'); idx >= 0 {
				l = l[:idx]
			}
			out = append(out, l)
		}
		return out
	})(data)
}

// StripSemicolonComments is StripHashComments's ';'-delimited counterpart,
// used by feeds (e.g. Snort rule lists) that comment with ';'.
func StripSemicolonComments(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			if idx := strings.IndexByte(l, ';'); idx >= 0 && !strings.Contains(l, "://") {
				l = l[:idx]
			}
			out = append(out, l)
		}
		return out
	})(data)
}

// TrimEmptyLines strips leading/trailing whitespace from every line and
// drops lines that are empty afterward.
func TrimEmptyLines(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if l != "" {
				out = append(out, l)
			}
		}
		return out
	})(data)
}

// AppendSlash32 appends "/32" to any line that is a bare dotted address
// without a mask, so downstream CIDR-shaped filters (dotted-mask
// conversion, strict-grammar filter) have a single form to match.
func AppendSlash32(data []byte) ([]byte, error) {
	bareIPv4 := regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	return mapLines(func(lines []string) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			if bareIPv4.MatchString(l) {
				l += "/32"
			}
			out[i] = l
		}
		return out
	})(data)
}

// StripSlash32 is AppendSlash32's inverse, for feeds whose representation
// policy is `ip` and which must not see /32 suffixes downstream.
func StripSlash32(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = strings.TrimSuffix(l, "/32")
		}
		return out
	})(data)
}

var dottedMaskCIDR = regexp.MustCompile(`^(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})/(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})$`)

// DottedMaskToBitmask rewrites "a.b.c.d/255.w.x.y" to "a.b.c.d/m", the
// bitmask form ipset.ParseToken already understands directly but which is
// easier to match and log in this human form first.
func DottedMaskToBitmask(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			m := dottedMaskCIDR.FindStringSubmatch(l)
			if m == nil {
				out[i] = l
				continue
			}
			bits := dottedMaskBits(m[2])
			if bits < 0 {
				out[i] = l
				continue
			}
			out[i] = fmt.Sprintf("%s/%d", m[1], bits)
		}
		return out
	})(data)
}

func dottedMaskBits(mask string) int {
	parts := strings.Split(mask, ".")
	if len(parts) != 4 {
		return -1
	}
	bits := 0
	seenZero := false
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return -1
		}
		for bit := 7; bit >= 0; bit-- {
			set := n&(1<<uint(bit)) != 0
			if set {
				if seenZero {
					return -1 // non-contiguous mask
				}
				bits++
			} else {
				seenZero = true
			}
		}
	}
	return bits
}

// Decompress transparently ungzips, or extracts the single file inside a
// zip archive (spec.md §4.4's "decompress (gzip, zip single-file)"). Data
// that is neither is passed through unchanged.
func Decompress(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	if len(data) >= 4 && data[0] == 'P' && data[1] == 'K' {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("zip: %w", err)
		}
		if len(zr.File) != 1 {
			return nil, fmt.Errorf("zip: expected a single file, got %d", len(zr.File))
		}
		f, err := zr.File[0].Open()
		if err != nil {
			return nil, fmt.Errorf("zip: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return data, nil
}

// CSVColumn extracts column index n (0-based, comma-separated) from every
// line, dropping lines with fewer than n+1 columns.
func CSVColumn(n int) Transformer {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			cols := strings.Split(l, ",")
			if n < len(cols) {
				out = append(out, strings.TrimSpace(cols[n]))
			}
		}
		return out
	})
}

// TabColumn is CSVColumn's tab-delimited counterpart.
func TabColumn(n int) Transformer {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			cols := strings.Split(l, "\t")
			if n < len(cols) {
				out = append(out, strings.TrimSpace(cols[n]))
			}
		}
		return out
	})
}

// SemicolonColumn is CSVColumn's ';'-delimited counterpart.
func SemicolonColumn(n int) Transformer {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			cols := strings.Split(l, ";")
			if n < len(cols) {
				out = append(out, strings.TrimSpace(cols[n]))
			}
		}
		return out
	})
}

// strictIPv4Token anchors a single octet-group to word boundaries so an
// embedded substring of a longer dotted number (e.g. a version string)
// cannot be mistaken for an address, per spec.md §4.4.
var strictIPv4Token = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?:/\d{1,2})?\b`)

// StrictIPv4TokenFilter extracts the first strict IPv4/CIDR token on each
// line, dropping lines with none. Because \b also matches at a '.', a match
// preceded or followed by '.' plus a digit is skipped as part of a longer
// dotted number.
func StrictIPv4TokenFilter(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			for _, loc := range strictIPv4Token.FindAllStringIndex(l, -1) {
				s, e := loc[0], loc[1]
				if (s >= 2 && l[s-1] == '.' && l[s-2] >= '0' && l[s-2] <= '9') ||
					(e+1 < len(l) && l[e] == '.' && l[e+1] >= '0' && l[e+1] <= '9') {
					continue
				}
				out = append(out, l[s:e])
				break
			}
		}
		return out
	})(data)
}

// ValidityFilter drops "0.0.0.0" and any explicit "/0" line, per spec.md
// §4.4. It runs unconditionally as the pipeline's final stage.
func ValidityFilter(data []byte) ([]byte, error) {
	return mapLines(func(lines []string) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			if l == "0.0.0.0" || strings.HasSuffix(l, "/0") {
				continue
			}
			out = append(out, l)
		}
		return out
	})(data)
}
