// Package idempotency makes feedback posts idempotent by outcome: two
// reports of the same logical outcome for a block hash identically, so the
// relay can skip the duplicate instead of re-sending on every observer fire.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"notebridge/internal/protocol"
)

// CanonicalJSON converts a value to deterministic JSON by recursively
// sorting map keys, so logically equivalent structures always produce the
// same bytes.
func CanonicalJSON(v interface{}) ([]byte, error) {
	normalized, err := normalizeValue(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return data, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeSortedMap(val)

	case []interface{}:
		// Array order is meaningful; only normalize the elements.
		normalized := make([]interface{}, len(val))
		for i, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			normalized[i] = n
		}
		return normalized, nil

	default:
		return v, nil
	}
}

// sortedMap is a JSON-marshalable type that maintains key ordering
type sortedMap struct {
	keys   []string
	values map[string]interface{}
}

func (sm *sortedMap) MarshalJSON() ([]byte, error) {
	if len(sm.keys) == 0 {
		return []byte("{}"), nil
	}

	result := "{"
	for i, key := range sm.keys {
		if i > 0 {
			result += ","
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		valJSON, err := json.Marshal(sm.values[key])
		if err != nil {
			return nil, err
		}

		result += string(keyJSON) + ":" + string(valJSON)
	}
	result += "}"

	return []byte(result), nil
}

func normalizeSortedMap(m map[string]interface{}) (*sortedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]interface{}, len(m))
	for _, k := range keys {
		n, err := normalizeValue(m[k])
		if err != nil {
			return nil, err
		}
		normalized[k] = n
	}

	return &sortedMap{
		keys:   keys,
		values: normalized,
	}, nil
}

// OutcomeHash identifies a feedback post by its logical outcome: the
// canonical JSON of {blockId, status, output, error}, hashed. SessionID and
// RawResult are deliberately excluded: the session is implied by the dedupe
// scope, and the raw result may carry volatile detail (timings, ids) that
// does not change the outcome.
func OutcomeHash(fb protocol.FeedbackRequest) string {
	data, err := CanonicalJSON(map[string]interface{}{
		"blockId": fb.BlockID,
		"status":  fb.Status,
		"output":  fb.Output,
		"error":   fb.Error,
	})
	if err != nil {
		// Unreachable for plain string fields; keep the hash total anyway.
		data = []byte(fb.BlockID + "\n" + fb.Status + "\n" + fb.Output + "\n" + fb.Error)
	}

	hash := sha256.Sum256(data)
	return "oh:" + hex.EncodeToString(hash[:])
}
