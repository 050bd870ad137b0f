// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package parse implements the parser pipeline (spec.md §4.4): a linear
// composition of stream transformers — raw -> pre-filter -> strict-filter
// -> post-filter -> validity filter — that turns an arbitrary feed's bytes
// into a sequence of IPv4 tokens ipset.ParseTokens can consume.
//
// Per spec.md §9's re-architecture note, the original's shell-pipeline
// composition becomes an ordered list of pure byte-stream transformers; a
// Transformer that is conceptually line-oriented (most of them) just
// splits and rejoins internally, keeping every stage the same shape.
package parse

import (
	"bytes"
	"strings"
)

// Error is a sentinel error type, comparable with ==.
type Error string

func (e Error) Error() string { return string(e) }

const ErrUnknownTransformer Error = "unknown parser transformer name"

// Transformer is one stage of the pipeline: a pure mapping from input bytes
// to output bytes. Line-oriented stages split on '\n' and rejoin.
type Transformer func(data []byte) ([]byte, error)

// Pipeline is an ordered, composed sequence of Transformers, always
// terminated by ValidityFilter and the strict IPv4/CIDR token filter
// regardless of what the feed's chain configured, per spec.md §4.4's
// "after parsing, every line must match the strict IPv4 or CIDR grammar."
type Pipeline struct {
	Stages []Transformer
}

// NewPipeline builds a Pipeline from a resolved list of Transformers (the
// Registry has already turned each FeedDefinition.ParserChain entry into
// one of these).
func NewPipeline(stages ...Transformer) *Pipeline {
	return &Pipeline{Stages: stages}
}

// Run applies every stage in order, then the mandatory strict-grammar and
// validity filters, and returns the surviving tokens — one per line.
func (p *Pipeline) Run(raw []byte) ([]string, error) {
	data := raw
	for _, stage := range p.Stages {
		out, err := stage(data)
		if err != nil {
			return nil, err
		}
		data = out
	}

	data, _ = StrictIPv4TokenFilter(data)
	data, _ = ValidityFilter(data)

	lines := splitNonEmpty(data)
	return lines, nil
}

func splitNonEmpty(data []byte) []string {
	raw := strings.Split(string(data), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

// mapLines adapts a per-line []string -> []string function into a
// byte-stream Transformer.
func mapLines(f func([]string) []string) Transformer {
	return func(data []byte) ([]byte, error) {
		lines := bytes.Split(data, []byte("\n"))
		strs := make([]string, len(lines))
		for i, l := range lines {
			strs[i] = string(l)
		}
		return joinLines(f(strs)), nil
	}
}
