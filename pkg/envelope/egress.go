package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// MarshalEgress serializes an envelope for persistence and client
// delivery. The typed meta structure guarantees only allowlisted keys are
// emitted; meta_version is stamped whenever meta is present.
func MarshalEgress(env *contracts.OutputEnvelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if env.Meta != nil && env.Meta.MetaVersion == "" {
		env.Meta.MetaVersion = contracts.MetaVersionV1
	}
	return json.Marshal(env)
}

// ContentHash returns the SHA-256 of the canonical (RFC 8785) JSON form of
// the envelope. Stable across key ordering and whitespace.
func ContentHash(env *contracts.OutputEnvelope) (string, error) {
	raw, err := MarshalEgress(env)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize envelope: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
