package crypto

import (
	"fmt"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// EncryptSpawnSpec encrypts every value in a SpawnSpec's environment map
// in-place and returns the modified spec. A nil key is a no-op, treating a
// missing encryption key as "encryption disabled".
func EncryptSpawnSpec(spec model.SpawnSpec, key []byte) (model.SpawnSpec, error) {
	if key == nil || len(spec.Env) == 0 {
		return spec, nil
	}

	encrypted := make(map[string]string, len(spec.Env))
	for k, v := range spec.Env {
		enc, err := Encrypt(v, key)
		if err != nil {
			return spec, fmt.Errorf("encrypt env %q: %w", k, err)
		}
		encrypted[k] = enc
	}
	spec.Env = encrypted
	return spec, nil
}

// DecryptSpawnSpec reverses EncryptSpawnSpec. Values without the "enc:"
// prefix are left as-is, so a key rotation from "no encryption" to
// "encrypted" never corrupts already-plaintext rows.
func DecryptSpawnSpec(spec model.SpawnSpec, key []byte) (model.SpawnSpec, error) {
	if key == nil || len(spec.Env) == 0 {
		return spec, nil
	}

	decrypted := make(map[string]string, len(spec.Env))
	for k, v := range spec.Env {
		dec, err := Decrypt(v, key)
		if err != nil {
			return spec, fmt.Errorf("decrypt env %q: %w", k, err)
		}
		decrypted[k] = dec
	}
	spec.Env = decrypted
	return spec, nil
}
