// Package keyhash turns random API key secrets into storable verifiers and
// checks presented secrets against them. The stored format is
// "hex(salt)$hex(digest)" with a PBKDF2-HMAC-SHA256 digest; bare hex SHA-256
// digests from the pre-salt era are still accepted on verification.
package keyhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Derivation parameters are fixed on purpose. Exposing them through
// configuration would make it possible to weaken the scheme by accident.
const (
	secretBytes = 32
	saltBytes   = 32
	iterations  = 100_000
	digestBytes = sha256.Size
)

// ErrRandomSource is returned when the platform's secure RNG fails. There is
// no fallback; callers must treat this as fatal.
var ErrRandomSource = errors.New("keyhash: secure random source unavailable")

// Generate draws a fresh 32-byte secret, encodes it URL-safe, and derives its
// stored verifier. The plaintext is returned exactly once and must never be
// persisted; only the verifier goes to storage.
func Generate() (plain, verifier string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)

	verifier, err = Hash(plain)
	if err != nil {
		return "", "", err
	}
	return plain, verifier, nil
}

// Hash derives a stored verifier for plain under a fresh random salt. Two
// calls with the same input yield different verifiers; verifier equality must
// never be used to compare keys.
func Hash(plain string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	digest := pbkdf2.Key([]byte(plain), salt, iterations, digestBytes, sha256.New)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest), nil
}

// Verify reports whether plain matches the stored verifier in either the
// current or the legacy format. It never returns an error; malformed input
// verifies as false.
func Verify(plain, stored string) bool {
	ok, _ := VerifyDetail(plain, stored)
	return ok
}

// VerifyDetail is Verify plus a flag telling the caller that the match came
// from a legacy unsalted verifier, so the stored record can be upgraded.
func VerifyDetail(plain, stored string) (ok, legacy bool) {
	switch v := parseVerifier(stored); v.kind {
	case kindCurrent:
		digest := pbkdf2.Key([]byte(plain), v.salt, iterations, digestBytes, sha256.New)
		return equalHex(hex.EncodeToString(digest), v.digestHex), false
	case kindLegacy:
		ok := equalHex(legacyDigestHex(plain), stored)
		return ok, ok
	default:
		// Still burn the legacy comparison so a malformed verifier costs
		// the same as a well-formed non-matching one.
		equalHex(legacyDigestHex(plain), stored)
		return false, false
	}
}

type verifierKind int

const (
	kindInvalid verifierKind = iota
	kindCurrent
	kindLegacy
)

type parsedVerifier struct {
	kind      verifierKind
	salt      []byte
	digestHex string
}

// parseVerifier classifies a stored verifier before any comparison happens.
// Current format requires exactly one separator, a hex salt (possibly empty),
// and a non-empty hex digest; anything else that is plain hex is treated as a
// legacy SHA-256 digest.
func parseVerifier(stored string) parsedVerifier {
	if strings.Count(stored, "$") == 1 {
		saltHex, digestHex, _ := strings.Cut(stored, "$")
		salt, saltErr := hex.DecodeString(saltHex)
		_, digestErr := hex.DecodeString(digestHex)
		if saltErr == nil && digestErr == nil && digestHex != "" {
			return parsedVerifier{kind: kindCurrent, salt: salt, digestHex: digestHex}
		}
	}
	if stored != "" {
		if _, err := hex.DecodeString(stored); err == nil {
			return parsedVerifier{kind: kindLegacy, digestHex: stored}
		}
	}
	return parsedVerifier{kind: kindInvalid}
}

func legacyDigestHex(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// equalHex compares two hex strings in constant time. Differing lengths can
// never match and are rejected up front, as crypto/subtle requires.
func equalHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
