package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// hashAlgo is the algorithm tag used as a content_hash prefix.
const hashAlgo = "blake3"

func sum(data []byte) []byte {
	h := blake3.Sum256(data)
	return h[:]
}

// ContentHash returns "<algo>:<hex digest>" over data.
func ContentHash(data []byte) string {
	digest := sum(data)
	return hashAlgo + ":" + hex.EncodeToString(digest)
}

// ProductIDHash hashes the canonical JSON encoding of
// {"base_type": baseType, ...identity} (sorted keys, compact
// separators) and returns the full hex digest.
func ProductIDHash(baseType string, identity map[string]any) (string, error) {
	payload := make(map[string]any, len(identity)+1)
	for k, v := range identity {
		payload[k] = v
	}
	payload["base_type"] = baseType
	canon, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum(canon)), nil
}

// ParamsHash returns the first 32 hex characters of the digest over
// the canonical JSON encoding of params.
func ParamsHash(params map[string]any) (string, error) {
	canon, err := canonicalJSON(params)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum(canon))[:32], nil
}

// InputSetHash sorts ids before hashing so the result is independent
// of input order, then returns the first 32 hex characters.
func InputSetHash(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	canon, _ := canonicalJSON(sorted)
	return hex.EncodeToString(sum(canon))[:32]
}

// ContentHashWithAlgo lets callers pin the algorithm explicitly, e.g.
// when re-verifying a content_hash recorded under an older algo tag.
func ContentHashWithAlgo(data []byte, algo string) (string, error) {
	switch algo {
	case "blake3":
		return ContentHash(data), nil
	case "sha256":
		digest := sha256.Sum256(data)
		return "sha256:" + hex.EncodeToString(digest[:]), nil
	default:
		return "", fmt.Errorf("unknown hash algo %q", algo)
	}
}
