package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/streamscope/internal/ir"
)

// marshalIDs stores an id list as a canonical JSON array.
func marshalIDs(ids []int64) (string, error) {
	arr := make(ir.Array, len(ids))
	for i, id := range ids {
		arr[i] = ir.Int(id)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

// marshalKeys stores a key list as a canonical JSON array.
func marshalKeys(keys []string) (string, error) {
	arr := make(ir.Array, len(keys))
	for i, k := range keys {
		arr[i] = ir.String(k)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(text string) ([]int64, error) {
	ids := []int64{}
	if err := json.Unmarshal([]byte(text), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

func unmarshalKeys(text string) ([]string, error) {
	keys := []string{}
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return keys, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
