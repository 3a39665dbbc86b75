package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"
)

// keyRecord is the on-disk / in-redis shape of a stored deploy key.
type keyRecord struct {
	Deployment string      `json:"deployment"`
	Key        string      `json:"key"`
	Metadata   KeyMetadata `json:"metadata"`
}

func encodeKeyRecord(deployment, key string, meta KeyMetadata) ([]byte, error) {
	rec := keyRecord{Deployment: deployment, Key: key, Metadata: meta}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal key record %s: %w", deployment, err)
	}
	return data, nil
}

func decodeKeyRecord(data []byte) (keyRecord, error) {
	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return keyRecord{}, fmt.Errorf("parse key record: %w", err)
	}
	return rec, nil
}

// touchKeyRecord updates only the last_used_at field in the raw payload,
// leaving any fields written by newer daemon versions intact.
func touchKeyRecord(data []byte, at time.Time) ([]byte, error) {
	out, err := sjson.SetBytes(data, "metadata.last_used_at", at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("update key record: %w", err)
	}
	return out, nil
}
