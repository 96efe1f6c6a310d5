package token

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// SecretSize is the signing key length in bytes.
const SecretSize = 32

// Secret holds the session signing key sealed in a memguard enclave. The
// plaintext only exists in locked memory for the duration of a sign or
// verify call.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals key. The caller's slice is wiped.
func NewSecret(key []byte) (*Secret, error) {
	if len(key) != SecretSize {
		return nil, fmt.Errorf("token secret must be %d bytes, got %d", SecretSize, len(key))
	}
	return &Secret{enclave: memguard.NewEnclave(key)}, nil
}

func (s *Secret) use(fn func(key []byte) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening token secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
