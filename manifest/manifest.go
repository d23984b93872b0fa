// Package manifest handles rill.toml project configuration.
package manifest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/chazu/rill/vm"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "rill.toml"

// Manifest represents a rill.toml project configuration.
type Manifest struct {
	Project Project        `toml:"project"`
	Run     Run            `toml:"run"`
	Globals map[string]any `toml:"globals"`

	// Dir is the directory containing the rill.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Run holds defaults for the CLI's run options.
type Run struct {
	Trace       bool `toml:"trace"`
	Disassemble bool `toml:"disassemble"`
	Verbosity   int  `toml:"verbosity"`
}

// Load parses a rill.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Project.Entry == "" {
		m.Project.Entry = "main.rl"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a rill.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry script.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// GlobalValues converts the [globals] table into VM values. Integers that
// fit in 32 bits become Int and wider ones Number; arrays become tuples and
// inline tables become tables with keys in sorted order.
func (m *Manifest) GlobalValues() (map[string]vm.Value, error) {
	out := make(map[string]vm.Value, len(m.Globals))
	for name, raw := range m.Globals {
		v, err := convert(raw)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func convert(raw any) (vm.Value, error) {
	switch x := raw.(type) {
	case bool:
		return vm.Bool(x), nil
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return vm.Int(int32(x)), nil
		}
		return vm.Number(float64(x)), nil
	case float64:
		return vm.Number(x), nil
	case string:
		return vm.Str(x), nil
	case []any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			v, err := convert(e)
			if err != nil {
				return vm.Nil, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = v
		}
		return vm.TupleOf(elems...), nil
	case []map[string]any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			v, err := convert(e)
			if err != nil {
				return vm.Nil, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = v
		}
		return vm.TupleOf(elems...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		t := vm.NewTable()
		for _, k := range keys {
			v, err := convert(x[k])
			if err != nil {
				return vm.Nil, fmt.Errorf("key %s: %w", k, err)
			}
			if err := t.Set(vm.Str(k), v); err != nil {
				return vm.Nil, err
			}
		}
		return vm.TableOf(t), nil
	}
	return vm.Nil, fmt.Errorf("unsupported TOML value of type %T", raw)
}
