package artifact

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileEntry is the on-disk layout of a contracts file entry.
type fileEntry struct {
	Role           string            `json:"role,omitempty"`
	ABI            ABI               `json:"abi"`
	UnlinkedBinary string            `json:"unlinked_binary"`
	FunctionHashes map[string]string `json:"function_hashes,omitempty"`
}

// RoleFunc names the role of an artifact for the informational role field.
type RoleFunc func(*CompiledArtifact) string

// LoadFile reads a contracts file.
func LoadFile(path string) (Set, error) {
	blob, err := os.ReadFile(path) //nolint:gosec // G304: contracts file path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read contracts file: %w", err)
	}
	return Decode(blob)
}

// Decode parses the contents of a contracts file.
func Decode(blob []byte) (Set, error) {
	var entries map[string]fileEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("decode contracts file: %w", err)
	}

	set := make(Set, len(entries))
	for name, e := range entries {
		bytecode, err := decodeHex(e.UnlinkedBinary)
		if err != nil {
			return nil, fmt.Errorf("contract %s: decode bytecode: %w", name, err)
		}
		selectors := e.FunctionHashes
		if len(selectors) == 0 {
			selectors = SelectorTable(e.ABI)
		}
		set[name] = &CompiledArtifact{
			Name:      name,
			ABI:       e.ABI,
			Bytecode:  bytecode,
			Selectors: selectors,
		}
	}
	return set, nil
}

// SaveFile writes set to path. role may be nil.
func SaveFile(path string, set Set, role RoleFunc) error {
	entries := make(map[string]fileEntry, len(set))
	for name, a := range set {
		e := fileEntry{
			ABI:            a.ABI,
			UnlinkedBinary: hex.EncodeToString(a.Bytecode),
			FunctionHashes: a.Selectors,
		}
		if role != nil {
			e.Role = role(a)
		}
		entries[name] = e
	}

	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode contracts file: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create contracts dir: %w", err)
		}
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil { //nolint:gosec // contracts file is not secret
		return fmt.Errorf("write contracts file: %w", err)
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if strings.Contains(s, "__") {
		return nil, fmt.Errorf("bytecode has unresolved library placeholders")
	}
	return hex.DecodeString(s)
}
