package w3ctest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the per-test metadata sidecar (<id>.yaml next to the test
// document).
type Manifest struct {
	ID          string
	Description string
	Conformance string // mandatory or optional
	Manual      bool
	Datamodel   string
	Timeout     time.Duration
}

// UnmarshalYAML parses the sidecar, accepting Go duration strings for
// timeout ("200ms", "3s").
func (m *Manifest) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID          string `yaml:"id"`
		Description string `yaml:"description"`
		Conformance string `yaml:"conformance"`
		Manual      bool   `yaml:"manual"`
		Datamodel   string `yaml:"datamodel"`
		Timeout     string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.Description = raw.Description
	m.Conformance = raw.Conformance
	m.Manual = raw.Manual
	m.Datamodel = raw.Datamodel
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("manifest timeout: %w", err)
		}
		m.Timeout = d
	}
	return nil
}

// Test is one discovered conformance test.
type Test struct {
	ID       string
	Path     string
	TXML     bool
	Manifest Manifest
}

// Discover lists the tests under dir: every *.scxml and *.txml file, with
// its optional manifest loaded. Tests sort numerically by id.
func Discover(dir string) ([]Test, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("w3ctest: discover: %w", err)
	}
	var tests []Test
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".scxml" && ext != ".txml" {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		t := Test{
			ID:   id,
			Path: filepath.Join(dir, name),
			TXML: ext == ".txml",
		}
		t.Manifest = loadManifest(filepath.Join(dir, id+".yaml"), id)
		tests = append(tests, t)
	}
	sort.Slice(tests, func(i, j int) bool {
		return testIDLess(tests[i].ID, tests[j].ID)
	})
	return tests, nil
}

func loadManifest(path, id string) Manifest {
	m := Manifest{ID: id, Conformance: "mandatory", Timeout: 5 * time.Second}
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{ID: id, Conformance: "mandatory", Timeout: 5 * time.Second}
	}
	if m.ID == "" {
		m.ID = id
	}
	if m.Conformance == "" {
		m.Conformance = "mandatory"
	}
	if m.Timeout == 0 {
		m.Timeout = 5 * time.Second
	}
	return m
}

func testIDLess(a, b string) bool {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}

// Selection narrows a test list from CLI arguments: explicit ids, a
// "start~end" range, or "~upto".
type Selection struct {
	ids    map[string]struct{}
	ranges [][2]int
	all    bool
}

// ParseSelection parses selection arguments. No arguments selects all
// tests.
func ParseSelection(args []string) (Selection, error) {
	sel := Selection{ids: make(map[string]struct{})}
	if len(args) == 0 {
		sel.all = true
		return sel, nil
	}
	for _, arg := range args {
		if !strings.Contains(arg, "~") {
			sel.ids[arg] = struct{}{}
			continue
		}
		parts := strings.SplitN(arg, "~", 2)
		lo, hi := 0, int(^uint(0)>>1)
		var err error
		if parts[0] != "" {
			if lo, err = strconv.Atoi(parts[0]); err != nil {
				return sel, fmt.Errorf("w3ctest: bad selection %q", arg)
			}
		}
		if parts[1] != "" {
			if hi, err = strconv.Atoi(parts[1]); err != nil {
				return sel, fmt.Errorf("w3ctest: bad selection %q", arg)
			}
		}
		sel.ranges = append(sel.ranges, [2]int{lo, hi})
	}
	return sel, nil
}

// Matches reports whether a test id is selected.
func (sel Selection) Matches(id string) bool {
	if sel.all {
		return true
	}
	if _, ok := sel.ids[id]; ok {
		return true
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return false
	}
	for _, r := range sel.ranges {
		if n >= r[0] && n <= r[1] {
			return true
		}
	}
	return false
}

// Filter applies the selection to a test list.
func (sel Selection) Filter(tests []Test) []Test {
	var out []Test
	for _, t := range tests {
		if sel.Matches(t.ID) {
			out = append(out, t)
		}
	}
	return out
}
