package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadKeypair reads a keypair file: a JSON array of the 64 key bytes.
func LoadKeypair(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("read keypair: %w", err)
	}
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return Keypair{}, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	for i, n := range ints {
		if n < 0 || n > 255 {
			return Keypair{}, fmt.Errorf("parse keypair %s: byte %d out of range: %d", path, i, n)
		}
		raw = append(raw, byte(n))
	}
	kp, err := KeypairFromBytes(raw)
	if err != nil {
		return Keypair{}, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	return kp, nil
}

// SaveKeypair writes kp to path with owner-only permissions. The parent
// directory is created if needed.
func SaveKeypair(path string, kp Keypair) error {
	ints := make([]int, 0, 64)
	for _, b := range kp.Bytes() {
		ints = append(ints, int(b))
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("write keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair: %w", err)
	}
	return nil
}
