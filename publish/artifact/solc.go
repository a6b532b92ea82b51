package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// DefaultExcluded are framework base contracts that are never exported.
var DefaultExcluded = []string{"strings", "owned", "DougMain", "DougContract", "DougEntity", "DougProvider"}

// Runner executes the compiler in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

// Compiler turns Solidity sources into artifacts using an external solc binary.
type Compiler struct {
	Solc    string
	Exclude []string
	Run     Runner
}

type combinedOutput struct {
	Contracts map[string]struct {
		ABI    json.RawMessage   `json:"abi"`
		Bin    string            `json:"bin"`
		Hashes map[string]string `json:"hashes"`
	} `json:"contracts"`
}

// NewCompiler returns a compiler that shells out to solc.
func NewCompiler(solc string) *Compiler {
	if solc == "" {
		solc = "solc"
	}
	return &Compiler{Solc: solc, Exclude: DefaultExcluded, Run: execRunner}
}

func execRunner(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Sources lists the Solidity files below dir, relative to it.
func Sources(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sol" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Compile compiles every source directory and merges the results. Later
// directories win on name clashes.
func (c *Compiler) Compile(ctx context.Context, dirs []string) (Set, error) {
	set := make(Set)
	for _, dir := range dirs {
		files, err := Sources(dir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		args := append([]string{"--combined-json", "abi,bin,hashes", "--allow-paths", "."}, files...)
		out, err := c.Run(ctx, dir, c.Solc, args...)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", dir, err)
		}
		compiled, err := ParseCombinedJSON(out)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", dir, err)
		}
		for name, a := range compiled {
			set[name] = a
		}
	}
	return c.filter(set), nil
}

func (c *Compiler) filter(set Set) Set {
	for name := range set {
		if slices.Contains(c.Exclude, name) {
			delete(set, name)
		}
	}
	return set
}

// ParseCombinedJSON decodes `solc --combined-json abi,bin,hashes` output.
func ParseCombinedJSON(blob []byte) (Set, error) {
	var out combinedOutput
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, fmt.Errorf("decode solc output: %w", err)
	}

	set := make(Set, len(out.Contracts))
	for key, c := range out.Contracts {
		name := key[strings.LastIndex(key, ":")+1:]

		parsed, err := ParseABI(c.ABI)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", name, err)
		}
		bytecode, err := decodeHex(c.Bin)
		if err != nil {
			return nil, fmt.Errorf("contract %s: decode bytecode: %w", name, err)
		}
		selectors := c.Hashes
		if len(selectors) == 0 {
			selectors = SelectorTable(parsed)
		}
		set[name] = &CompiledArtifact{
			Name:      name,
			ABI:       parsed,
			Bytecode:  bytecode,
			Selectors: selectors,
		}
	}
	return set, nil
}
