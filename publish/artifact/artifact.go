// Package artifact holds compiled contract artifacts (ABI, bytecode and the
// compiler's function selector table) and the contracts file they are stored in.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	// ABI is a parsed contract ABI that keeps the JSON it was parsed from, so
	// it can be written back unchanged.
	ABI struct {
		abi.ABI
		raw         json.RawMessage
		constructor bool
	}

	// CompiledArtifact is read-only after it has been loaded.
	CompiledArtifact struct {
		Name     string
		ABI      ABI
		Bytecode []byte
		// Selectors maps canonical signatures to hex encoded 4-byte selectors
		// as reported by the compiler.
		Selectors map[string]string
	}

	// Set is a batch of artifacts keyed by name.
	Set map[string]*CompiledArtifact
)

// ParseABI parses a JSON ABI. It accepts the inline array and the
// string-encoded form emitted by older compilers. Entries without a type are
// functions.
func ParseABI(raw []byte) (ABI, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ABI{}, errors.New("missing abi")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ABI{}, fmt.Errorf("decode abi: %w", err)
		}
		raw = []byte(s)
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return ABI{}, fmt.Errorf("decode abi: %w", err)
	}
	out := ABI{raw: append(json.RawMessage(nil), raw...)}
	if entries == nil {
		out.raw = json.RawMessage("[]")
	}
	for _, e := range entries {
		var typ string
		if t, ok := e["type"]; ok {
			if err := json.Unmarshal(t, &typ); err != nil {
				return ABI{}, fmt.Errorf("decode abi: entry type: %w", err)
			}
		}
		switch typ {
		case "":
			e["type"] = json.RawMessage(`"function"`)
		case "constructor":
			// abi.ABI has no way to tell a missing constructor from an empty one.
			out.constructor = true
		}
	}

	normalized, err := json.Marshal(entries)
	if err != nil {
		return ABI{}, fmt.Errorf("decode abi: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(normalized))
	if err != nil {
		return ABI{}, fmt.Errorf("decode abi: %w", err)
	}
	out.ABI = parsed
	return out, nil
}

// MustParseABI is ParseABI for ABIs known to be valid.
func MustParseABI(raw string) ABI {
	a, err := ParseABI([]byte(raw))
	if err != nil {
		panic(err)
	}
	return a
}

func (a ABI) MarshalJSON() ([]byte, error) {
	if len(a.raw) == 0 {
		return []byte("[]"), nil
	}
	return a.raw, nil
}

func (a *ABI) UnmarshalJSON(b []byte) error {
	parsed, err := ParseABI(b)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// HasConstructor reports whether the ABI declares a constructor.
func (a ABI) HasConstructor() bool {
	return a.constructor
}

// Function returns the function with the given canonical signature,
// e.g. "addContract(bytes32,address)".
func (a ABI) Function(signature string) (abi.Method, bool) {
	for _, m := range a.Methods {
		if m.Sig == signature {
			return m, true
		}
	}
	return abi.Method{}, false
}

// HasConstructor reports whether the artifact's ABI declares a constructor.
func (a *CompiledArtifact) HasConstructor() bool {
	return a.ABI.HasConstructor()
}

// Function returns the function with the given canonical signature.
func (a *CompiledArtifact) Function(signature string) (abi.Method, bool) {
	return a.ABI.Function(signature)
}

// Selector returns the selector the compiler recorded for signature.
func (a *CompiledArtifact) Selector(signature string) (string, bool) {
	s, ok := a.Selectors[signature]
	return strings.ToLower(strings.TrimPrefix(s, "0x")), ok
}

// Names returns the artifact names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selector computes the 4-byte selector of a canonical signature.
func Selector(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// SelectorTable computes selectors for every function in a. It is used when
// an artifact source carries no compiler hashes.
func SelectorTable(a ABI) map[string]string {
	out := make(map[string]string, len(a.Methods))
	for _, m := range a.Methods {
		out[m.Sig] = hex.EncodeToString(m.ID)
	}
	return out
}
