package protocol

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint returns the non-cryptographic 32-bit hash of a credential,
// hex-encoded with a hash_ prefix. It exists purely to deduplicate
// credentials during analysis; the raw prefix is retained alongside it.
func Fingerprint(credential string) string {
	h := fnv.New32a()
	h.Write([]byte(credential))
	return fmt.Sprintf("hash_%08x", h.Sum32())
}
