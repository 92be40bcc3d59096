// Package fpcalc derives a chromaprint content fingerprint and duration
// from a normalized audio file by invoking the fpcalc tool.
package fpcalc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

const DefaultCommand = "fpcalc"

// Fingerprint is the lookup key for the fingerprint-lookup service.
// Derived once per file.
type Fingerprint struct {
	Fingerprint string
	Duration    int // whole seconds
}

// ExtractError is fatal for the file's run: the tool failed or produced
// output we could not use.
type ExtractError struct {
	Stderr string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("fpcalc: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("fpcalc: %v", e.Err)
}
func (e *ExtractError) Unwrap() error { return e.Err }

type runFunc func(ctx context.Context, name string, args ...string) (stdout []byte, stderr string, err error)

// Extractor runs fpcalc. The zero value uses DefaultCommand.
type Extractor struct {
	// Command overrides the fpcalc invocation, eg "fpcalc -length 120".
	// Parsed shell-style.
	Command string

	run runFunc
}

// WithRunner injects a command runner, for tests.
func (e *Extractor) WithRunner(run func(ctx context.Context, name string, args ...string) ([]byte, string, error)) {
	e.run = run
}

// Extract invokes fpcalc once, requesting JSON output. No retry: a second
// run over the same bytes yields the same answer.
func (e *Extractor) Extract(ctx context.Context, path string) (Fingerprint, error) {
	name, args, err := e.command()
	if err != nil {
		return Fingerprint{}, &ExtractError{Err: err}
	}
	args = append(args, "-json", path)

	run := e.run
	if run == nil {
		run = execRun
	}
	stdout, stderr, err := run(ctx, name, args...)
	if err != nil {
		return Fingerprint{}, &ExtractError{Stderr: stderr, Err: err}
	}

	var out struct {
		Duration    float64 `json:"duration"`
		Fingerprint string  `json:"fingerprint"`
	}
	if err := json.Unmarshal(stdout, &out); err != nil {
		return Fingerprint{}, &ExtractError{Err: fmt.Errorf("parse output: %w", err)}
	}
	if out.Fingerprint == "" || out.Duration <= 0 {
		return Fingerprint{}, &ExtractError{Err: fmt.Errorf("output missing duration or fingerprint")}
	}

	return Fingerprint{
		Fingerprint: out.Fingerprint,
		Duration:    int(math.Round(out.Duration)),
	}, nil
}

func (e *Extractor) command() (string, []string, error) {
	command := e.Command
	if command == "" {
		command = DefaultCommand
	}
	parts, err := shlex.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("split command: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("no command provided")
	}
	return parts[0], parts[1:], nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, strings.TrimSpace(stderr.String()), fmt.Errorf("run cmd: %w", err)
	}
	return stdout.Bytes(), strings.TrimSpace(stderr.String()), nil
}
