// Package cache derives content fingerprints for review artifacts and
// stores computed review results keyed by fingerprint, so identical
// content is never re-analyzed.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/ahrav/go-critique/internal/domain"
)

// Compute derives the deterministic fingerprint of an artifact under a
// given rule-set version. The digest covers content, language, and
// rule-set version as length-prefixed frames, so no input combination
// can collide by concatenation ("ab"+"c" vs "a"+"bc").
//
// Compute is pure: equal inputs always produce equal fingerprints, and
// the artifact name deliberately does not participate, so a renamed but
// otherwise identical file reuses its cached result.
func Compute(artifact domain.Artifact, rulesetVersion string) domain.Fingerprint {
	hasher := sha256.New()
	for _, frame := range []string{artifact.Content, string(artifact.Language), rulesetVersion} {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(frame)))
		hasher.Write(length[:])
		hasher.Write([]byte(frame))
	}
	return domain.Fingerprint(hex.EncodeToString(hasher.Sum(nil)))
}
