package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseABI_TupleSignature(t *testing.T) {
	a, err := ParseABI([]byte(`[{
		"type": "function",
		"name": "run",
		"inputs": [
			{"name": "cfg", "type": "tuple", "components": [{"name": "label", "type": "string"}, {"name": "decimals", "type": "uint8"}]},
			{"name": "list", "type": "tuple[]", "components": [{"name": "holder", "type": "address"}]},
			{"name": "x", "type": "bytes32"}
		]
	}]`))
	require.NoError(t, err)

	m, ok := a.Function("run((string,uint8),(address)[],bytes32)")
	require.True(t, ok)
	require.Equal(t, "run", m.RawName)

	table := SelectorTable(a)
	require.Equal(t, map[string]string{
		"run((string,uint8),(address)[],bytes32)": Selector("run((string,uint8),(address)[],bytes32)"),
	}, table)
}

func TestSelector_KnownSignatures(t *testing.T) {
	require.Equal(t, "a9059cbb", Selector("transfer(address,uint256)"))
	require.Equal(t, "5188f996", Selector("addContract(bytes32,address)"))
}

func TestParseABI_Constructor(t *testing.T) {
	a := MustParseABI(`[{"type":"function","name":"f","inputs":[]}]`)
	require.False(t, a.HasConstructor())

	a = MustParseABI(`[{"type":"constructor","inputs":[]},{"type":"function","name":"f","inputs":[]}]`)
	require.True(t, a.HasConstructor())
}

func TestParseABI_DefaultsToFunctionKind(t *testing.T) {
	a := &CompiledArtifact{ABI: MustParseABI(`[{"name":"contracts","inputs":[{"name":"","type":"bytes32"}]}]`)}
	_, ok := a.Function("contracts(bytes32)")
	require.True(t, ok)
	_, ok = a.Function("contracts(bytes)")
	require.False(t, ok)
}

func TestParseABI_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not an array", raw: `{"type":"function"}`},
		{name: "unknown type", raw: `[{"type":"modifier","name":"m"}]`},
		{name: "bad param type", raw: `[{"type":"function","name":"f","inputs":[{"name":"a","type":"notatype"}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseABI([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}

func TestParseABI_StringEncoded(t *testing.T) {
	a, err := ParseABI([]byte(`"[{\"type\":\"function\",\"name\":\"owner\",\"inputs\":[]}]"`))
	require.NoError(t, err)
	_, ok := a.Function("owner()")
	require.True(t, ok)
}

func TestDecode_ComputesMissingSelectors(t *testing.T) {
	blob := []byte(`{
		"A": {
			"abi": [{"type":"function","name":"setMainAddress","inputs":[{"name":"a","type":"address"}]}],
			"unlinked_binary": "6060"
		}
	}`)
	set, err := Decode(blob)
	require.NoError(t, err)
	require.Contains(t, set, "A")
	require.Equal(t, []byte{0x60, 0x60}, set["A"].Bytecode)

	sel, ok := set["A"].Selector("setMainAddress(address)")
	require.True(t, ok)
	require.Equal(t, "db9771f5", sel)
}

func TestDecode_RejectsLibraryPlaceholders(t *testing.T) {
	_, err := Decode([]byte(`{"A": {"abi": [], "unlinked_binary": "60__strings__60"}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "library placeholders")
}

func TestDecode_EmptyHashesComputesSelectors(t *testing.T) {
	blob := []byte(`{
		"A": {
			"abi": [{"type":"function","name":"setMainAddress","inputs":[{"name":"a","type":"address"}]}],
			"unlinked_binary": "6060",
			"function_hashes": {}
		}
	}`)
	set, err := Decode(blob)
	require.NoError(t, err)

	sel, ok := set["A"].Selector("setMainAddress(address)")
	require.True(t, ok)
	require.Equal(t, "db9771f5", sel)
}

func TestSaveFile_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "contracts.json")
	set := Set{
		"Main": {
			Name:      "Main",
			ABI:       MustParseABI(`[{"type":"constructor","inputs":[]},{"type":"function","name":"contracts","inputs":[{"name":"","type":"bytes32"}]}]`),
			Bytecode:  []byte{0x01, 0x02},
			Selectors: map[string]string{"contracts(bytes32)": "ec56a373"},
		},
	}

	err := SaveFile(path, set, func(*CompiledArtifact) string { return "registry" })
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"role": "registry"`)
	require.Contains(t, string(raw), `"type": "constructor"`)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, set["Main"].Bytecode, loaded["Main"].Bytecode)
	require.Equal(t, set["Main"].Selectors, loaded["Main"].Selectors)
	require.True(t, loaded["Main"].HasConstructor())
	_, ok := loaded["Main"].Function("contracts(bytes32)")
	require.True(t, ok)
	require.Equal(t, []string{"Main"}, loaded.Names())
}

func TestParseCombinedJSON_StringABI(t *testing.T) {
	blob := []byte(`{"contracts": {
		"lib/Owned.sol:owned": {"abi": "[]", "bin": "00", "hashes": {}},
		"Main.sol:Main": {"abi": "[{\"type\":\"constructor\",\"inputs\":[]}]", "bin": "6001", "hashes": {"contracts(bytes32)": "ec56a373"}}
	}}`)
	set, err := ParseCombinedJSON(blob)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"owned", "Main"}, set.Names())
	require.True(t, set["Main"].HasConstructor())
}

func TestCompiler_FiltersExcludedAndMergesDirs(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dirA, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "nested", "A.sol"), []byte("contract A {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "B.sol"), []byte("contract B {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "README.md"), []byte("x"), 0o644))

	var calls [][]string
	c := NewCompiler("")
	c.Run = func(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
		require.Equal(t, "solc", name)
		calls = append(calls, args)
		if dir == dirA {
			return []byte(`{"contracts": {"nested/A.sol:A": {"abi": [], "bin": "01"}, "nested/A.sol:owned": {"abi": [], "bin": "02"}}}`), nil
		}
		return []byte(`{"contracts": {"B.sol:B": {"abi": [], "bin": "03"}}}`), nil
	}

	set, err := c.Compile(context.Background(), []string{dirA, dirB})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, set.Names())
	require.Len(t, calls, 2)
	require.Contains(t, calls[0], "nested/A.sol")
	require.NotContains(t, calls[1], "README.md")
}
