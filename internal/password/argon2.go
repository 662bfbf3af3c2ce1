package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrTooShort is returned by Hash for passwords under the configured minimum.
	ErrTooShort = errors.New("password is too short")
	// ErrMalformedHash is returned by Verify for hashes not in PHC argon2id format.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config contains argon2id parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Hasher hashes passwords with argon2id and encodes them in PHC string format.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and creates a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < 8*1024:
		return nil, errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < 16:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < 16:
		return nil, errors.New("password key length must be >= 16")
	}

	return &Hasher{config: cfg}, nil
}

// MinLength returns the minimal accepted password length in bytes.
func (h *Hasher) MinLength() int {
	return h.config.MinLength
}

// Hash returns the PHC encoding of password with a random salt.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.config.MinLength {
		return "", ErrTooShort
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Parameters are read from
// the hash itself, so hashes made with older settings keep working.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := parse(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))

	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parse(encoded string) (params, error) {
	var p params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, ErrMalformedHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("unsupported version %q: %w", parts[2], ErrMalformedHash)
	}

	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return p, ErrMalformedHash
		}

		var bits int
		switch k {
		case "m", "t":
			bits = 32
		case "p":
			bits = 8
		default:
			return p, fmt.Errorf("unknown parameter %q: %w", k, ErrMalformedHash)
		}

		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil || n == 0 {
			return p, fmt.Errorf("bad parameter %q: %w", k, ErrMalformedHash)
		}

		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			p.parallelism = uint8(n)
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return p, ErrMalformedHash
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) == 0 {
		return p, fmt.Errorf("bad salt: %w", ErrMalformedHash)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("bad key: %w", ErrMalformedHash)
	}

	return p, nil
}
