// Package render turns merge items into the wire output formats the
// CLI offers: Markdown (delegated to the views package) and JSONL with
// alphabetically sorted keys, matching the original importer's
// json.dumps(item, sort_keys=True) convention.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Napageneral/unify/internal/merge"
)

// JSONL renders items one JSON object per line, keys sorted
// alphabetically within each object, each line terminated by a newline.
func JSONL(items []*merge.Item) (string, error) {
	var buf bytes.Buffer
	for _, it := range items {
		line, err := sortedKeyJSON(it)
		if err != nil {
			return "", fmt.Errorf("render: marshal item %s: %w", it.EventID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// sortedKeyJSON marshals v, then round-trips it through a
// map[string]interface{} so Go's map encoder — which always sorts
// string keys — produces a canonical, diff-stable key order.
func sortedKeyJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return json.Marshal(asMap)
}
