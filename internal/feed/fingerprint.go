package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint derives the content-addressed identity of a message set: the
// SHA-256 of the sorted, comma-joined message IDs. Input order does not
// change the result, so the same set always collides with itself and
// nothing else.
func Fingerprint(messageIDs []int64) string {
	sorted := make([]int64, len(messageIDs))
	copy(sorted, messageIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
