// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package publish

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// CommandRunner abstracts shell command execution, for test injection.
type CommandRunner interface {
	Run(name string, args ...string) error
	RunInput(input string, name string, args ...string) ([]byte, error)
	Output(name string, args ...string) ([]byte, error)
}

// execRunner shells out via os/exec.
type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (execRunner) RunInput(input string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (execRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// DefaultCommandRunner shells out for real.
var DefaultCommandRunner CommandRunner = execRunner{}

var validSetName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CLIAdapter implements KernelAdapter by invoking the nft(8) binary,
// grounded on grimm-is-glacic's IPSetManager: set names are validated
// against validSetName before ever reaching a shell command, and element
// batches are capped to keep individual command lines short.
type CLIAdapter struct {
	Table  string
	Runner CommandRunner
}

// NewCLIAdapter returns a CLIAdapter over the given nftables table name,
// using the real nft(8) binary.
func NewCLIAdapter(table string) *CLIAdapter {
	return &CLIAdapter{Table: table, Runner: DefaultCommandRunner}
}

const elementBatchSize = 500

func (a *CLIAdapter) runner() CommandRunner {
	if a.Runner != nil {
		return a.Runner
	}
	return DefaultCommandRunner
}

// ListNames lists every set currently defined in the table, parsed out of
// `nft -j list sets`.
func (a *CLIAdapter) ListNames() ([]string, error) {
	out, err := a.runner().Output("nft", "-j", "list", "sets", "inet", a.Table)
	if err != nil {
		return nil, fmt.Errorf("publish: list sets: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, `"set"`) || !strings.Contains(line, `"name"`) {
			continue
		}
		start := strings.Index(line, `"name":"`)
		if start == -1 {
			continue
		}
		start += len(`"name":"`)
		end := strings.Index(line[start:], `"`)
		if end == -1 {
			continue
		}
		names = append(names, line[start:start+end])
	}
	return names, nil
}

// Create adds an empty set of the given type. interval=true builds a
// hash:net-equivalent range set (ipv4_addr with the "interval" flag);
// interval=false builds a hash:ip-equivalent flat set.
func (a *CLIAdapter) Create(name string, interval bool, maxelem int) error {
	if !validSetName.MatchString(name) {
		return fmt.Errorf("%w: %s", ErrInvalidSetName, name)
	}
	spec := fmt.Sprintf("type ipv4_addr; size %d;", maxelem)
	if interval {
		spec = "flags interval; " + spec
	}
	args := []string{"add", "set", "inet", a.Table, name, "{", spec, "}"}
	return a.runner().Run("nft", args...)
}

// Restore loads elements into name in fixed-size batches, matching
// IPSetManager.AddElements's line-length mitigation.
func (a *CLIAdapter) Restore(name string, elements []string) error {
	if !validSetName.MatchString(name) {
		return fmt.Errorf("%w: %s", ErrInvalidSetName, name)
	}
	for i := 0; i < len(elements); i += elementBatchSize {
		end := i + elementBatchSize
		if end > len(elements) {
			end = len(elements)
		}
		batch := elements[i:end]
		args := []string{"add", "element", "inet", a.Table, name, "{", strings.Join(batch, ","), "}"}
		if err := a.runner().Run("nft", args...); err != nil {
			return err
		}
	}
	return nil
}

// Swap atomically exchanges the contents of two same-typed sets by
// renaming each to the other's name inside one nft -f script, matching
// nft's documented atomic-rename-pair idiom.
func (a *CLIAdapter) Swap(a1, a2 string) error {
	if !validSetName.MatchString(a1) || !validSetName.MatchString(a2) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidSetName, a1, a2)
	}
	holding := a1 + "_swap_holding"
	script := strings.Join([]string{
		fmt.Sprintf("rename set inet %s %s %s", a.Table, a1, holding),
		fmt.Sprintf("rename set inet %s %s %s", a.Table, a2, a1),
		fmt.Sprintf("rename set inet %s %s %s", a.Table, holding, a2),
	}, "\n") + "\n"
	_, err := a.runner().RunInput(script, "nft", "-f", "-")
	return err
}

// Destroy deletes name entirely.
func (a *CLIAdapter) Destroy(name string) error {
	if !validSetName.MatchString(name) {
		return fmt.Errorf("%w: %s", ErrInvalidSetName, name)
	}
	return a.runner().Run("nft", "delete", "set", "inet", a.Table, name)
}
