// Package cache provides ports.ActiveGroupStore implementations: one
// backed by Redis for shared deployments and one in process memory.
// Both store results as JSON so that a result read back never shares
// memory with the caller's copy.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

// KeyPrefix namespaces active results in a shared keyspace.
const KeyPrefix = "affinity:active:"

// ActiveKey returns the cache key holding the active result for formID.
func ActiveKey(formID string) string {
	return KeyPrefix + formID
}

func encodeResult(result domain.AffinityResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result for form %s: %w", result.FormID, err)
	}
	return data, nil
}

func decodeResult(key string, data []byte) (domain.AffinityResult, error) {
	var result domain.AffinityResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.AffinityResult{}, ports.NewCacheError(key, "decode", fmt.Errorf("%w: %w", ports.ErrCacheCorrupted, err))
	}
	return result, nil
}
