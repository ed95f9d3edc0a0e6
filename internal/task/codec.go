package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingKind is returned when a decoded descriptor names no task type.
var ErrMissingKind = errors.New("descriptor has no task type")

// kindKeys are accepted names for the task type, in priority order.
var kindKeys = []string{"type", "task_type", "kind"}

// nestedKeys may hold parameters one level down; their entries never
// override top-level keys.
var nestedKeys = []string{"parameters", "params"}

// DecodeDescriptor reads one JSON object from r and converts it into a
// Descriptor.
func DecodeDescriptor(r io.Reader) (Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return ParseDescriptor(data)
}

// ParseDescriptor converts a JSON object into a Descriptor. The task type is
// taken from "type" (or "task_type"/"kind"); every other key becomes a
// parameter. Objects under "parameters"/"params" are flattened into the
// parameter map.
func ParseDescriptor(data []byte) (Descriptor, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return Descriptor{}, fmt.Errorf("descriptor is empty")
	}
	trimmed = stripCodeFence(trimmed)

	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor is not a JSON object: %w", err)
	}

	var kind Kind
	for _, key := range kindKeys {
		if v, ok := raw[key].(string); ok && strings.TrimSpace(v) != "" {
			kind = ParseKind(v)
			break
		}
	}
	if kind == "" {
		return Descriptor{}, ErrMissingKind
	}

	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if isReserved(k) {
			continue
		}
		params[k] = v
	}
	for _, key := range nestedKeys {
		nested, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range nested {
			if _, exists := params[k]; !exists {
				params[k] = v
			}
		}
	}

	return Descriptor{Kind: kind, Params: params}, nil
}

// MarshalJSON renders the descriptor in the same flat shape ParseDescriptor
// accepts.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Params)+1)
	for k, v := range d.Params {
		out[k] = v
	}
	out["type"] = string(d.Kind)
	return json.Marshal(out)
}

func isReserved(key string) bool {
	for _, k := range kindKeys {
		if key == k {
			return true
		}
	}
	for _, k := range nestedKeys {
		if key == k {
			return true
		}
	}
	return false
}

// stripCodeFence removes a surrounding ```json ... ``` fence, which chat
// models add even when asked for bare JSON.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
