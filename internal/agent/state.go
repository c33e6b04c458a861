// internal/agent/state.go
package agent

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadEpoch reads the logging epoch from the state file.
// Returns zero if the file doesn't exist or is corrupt.
func ReadEpoch(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	epoch, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// Corrupt file - start over at zero
		return 0, nil
	}

	return epoch, nil
}

// WriteEpoch writes the epoch to the state file.
// Creates parent directories if needed.
func WriteEpoch(path string, epoch uint64) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(strconv.FormatUint(epoch, 10)+"\n"), 0644)
}

// NextEpoch increments the epoch stored at path and returns the new value.
// Every agent start begins a new epoch so collectors can tell restarted
// counters apart.
func NextEpoch(path string) (uint64, error) {
	prev, err := ReadEpoch(path)
	if err != nil {
		return 0, err
	}
	epoch := prev + 1
	if err := WriteEpoch(path, epoch); err != nil {
		return 0, err
	}
	return epoch, nil
}
