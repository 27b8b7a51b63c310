package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulefire/internal/compiler"
	"github.com/roach88/rulefire/internal/ir"
)

// loadRules compiles a rules directory. A nil result means the directory
// itself could not be loaded; otherwise errs lists per-rule compile errors.
//
// The CLI has no Go block registry, so rules naming a block fail to compile
// here. Such rules are exercised through the harness with WithRegistry.
func loadRules(dir string, mode compiler.LoadMode) (*compiler.LoadResult, []error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, []error{NewExitError(ExitCommandError, fmt.Sprintf("rules directory not found: %s", dir))}
	}
	return compiler.LoadDir(dir, nil, mode)
}

// loadFacts reads a YAML (or JSON) list of fact values. Facts are inserted
// in file order, so the first one gets handle #1.
func loadFacts(path string) ([]ir.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}

	var raw []any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse facts file: %w", err)
	}

	facts := make([]ir.Value, len(raw))
	for i, r := range raw {
		v, err := ir.FromAny(r)
		if err != nil {
			return nil, fmt.Errorf("facts[%d]: %w", i, err)
		}
		facts[i] = v
	}
	return facts, nil
}

// parseBindings parses --bind flags of the form "$var=3" or "$var=#3".
func parseBindings(flags []string) (map[ir.Variable]ir.FactHandle, error) {
	bindings := make(map[ir.Variable]ir.FactHandle, len(flags))
	for _, flag := range flags {
		name, handle, ok := strings.Cut(flag, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid binding %q: expected $var=handle", flag)
		}
		h, err := parseHandle(handle)
		if err != nil {
			return nil, fmt.Errorf("invalid binding %q: %w", flag, err)
		}
		v := ir.Variable(name)
		if _, dup := bindings[v]; dup {
			return nil, fmt.Errorf("variable %s bound twice", name)
		}
		bindings[v] = h
	}
	return bindings, nil
}

var errBadHandle = errors.New("handle must be a positive integer")

// parseHandle accepts "3" and "#3".
func parseHandle(s string) (ir.FactHandle, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || n <= 0 {
		return 0, errBadHandle
	}
	return ir.FactHandle(n), nil
}
