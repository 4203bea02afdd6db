package storage

import "strings"

// PairKey normalizes a pair address for map lookups.
func PairKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
