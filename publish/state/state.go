// Package state persists the registry address and the block marker recorded
// before the registry was created.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type (
	AddressSink interface {
		WriteAddress(addr common.Address) error
	}

	BlockMarkerSink interface {
		WriteBlock(height uint64) error
	}

	// AddressFile stores a hex address in a file.
	AddressFile string

	// BlockFile stores a decimal block height in a file.
	BlockFile string
)

var (
	_ AddressSink     = AddressFile("")
	_ BlockMarkerSink = BlockFile("")
)

func (f AddressFile) WriteAddress(addr common.Address) error {
	return writeAtomic(string(f), addr.Hex())
}

// ReadAddress returns the stored address.
func (f AddressFile) ReadAddress() (common.Address, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		return common.Address{}, fmt.Errorf("read address file: %w", err)
	}
	v := strings.TrimSpace(string(raw))
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("address file %s: invalid address %q", f, v)
	}
	return common.HexToAddress(v), nil
}

func (f BlockFile) WriteBlock(height uint64) error {
	return writeAtomic(string(f), strconv.FormatUint(height, 10))
}

// ReadBlock returns the stored block height.
func (f BlockFile) ReadBlock() (uint64, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		return 0, fmt.Errorf("read block file: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("block file %s: %w", f, err)
	}
	return n, nil
}

// Discard drops whatever is written to it.
type Discard struct{}

func (Discard) WriteAddress(common.Address) error { return nil }
func (Discard) WriteBlock(uint64) error           { return nil }

func writeAtomic(path, content string) error {
	if path == "" {
		return fmt.Errorf("no output path configured")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
