package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rulefire/internal/consequence"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the rules compiled from a directory, in file order.
type LoadResult struct {
	Rules     []*consequence.Rule
	FileCount int
}

// Rule returns the rule with the given id, or nil.
func (r *LoadResult) Rule(id string) *consequence.Rule {
	for _, rule := range r.Rules {
		if rule.ID == id {
			return rule
		}
	}
	return nil
}

// LoadDir loads every CUE file in dir as one package and compiles each
// field under the top-level "rule" struct.
func LoadDir(dir string, reg Registry, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{fmt.Errorf("rules directory not found: %s", dir)}
	}
	if err != nil {
		return nil, []error{fmt.Errorf("error accessing rules directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("error scanning directory: %w", err)}
	}
	if len(cueFiles) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{fmt.Errorf("building CUE value: %w", formatCUEError(err))}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	errs := compileRules(value, reg, mode, result)
	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no rules found in %s", dir))
	}
	return result, errs
}

// CompileSource compiles rules from a single CUE source text.
func CompileSource(filename, src string, reg Registry) ([]*consequence.Rule, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	result := &LoadResult{}
	if errs := compileRules(value, reg, LoadModeFailFast, result); len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Rules, nil
}

func compileRules(value cue.Value, reg Registry, mode LoadMode, result *LoadResult) []error {
	var errs []error

	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return []error{formatCUEError(err)}
	}

	for iter.Next() {
		rule, err := CompileRule(iter.Value(), reg)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		result.Rules = append(result.Rules, rule)
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
