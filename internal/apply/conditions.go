// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package apply

import (
	"encoding/json"
	"fmt"

	"syncpress/internal/models"
)

// resolveConditions decides the display conditions a local template ends up
// with after an apply, given the artifact's conditions policy. Skip (or the
// policy being disabled) keeps the local set untouched; replace takes the
// incoming set wholesale; merge unions incoming groups into the local set.
func resolveConditions(local, incoming json.RawMessage, applyConditions bool, mode models.ConditionsMode) (json.RawMessage, error) {
	if !applyConditions || mode == models.ConditionsModeSkip {
		return local, nil
	}
	switch mode {
	case models.ConditionsModeReplace, "":
		return incoming, nil
	case models.ConditionsModeMerge:
		return mergeConditionGroups(local, incoming)
	default:
		return nil, fmt.Errorf("unknown conditions mode %q", mode)
	}
}

// mergeConditionGroups unions two condition-group arrays, preserving local
// order and appending only incoming groups that are not structurally
// identical to one already present. Structural identity compares the
// canonical JSON of each group, so key order and whitespace never cause
// duplicates.
func mergeConditionGroups(local, incoming json.RawMessage) (json.RawMessage, error) {
	localGroups, err := decodeGroups(local)
	if err != nil {
		return nil, fmt.Errorf("decode local conditions: %w", err)
	}
	incomingGroups, err := decodeGroups(incoming)
	if err != nil {
		return nil, fmt.Errorf("decode incoming conditions: %w", err)
	}

	seen := make(map[string]bool, len(localGroups))
	merged := make([]any, 0, len(localGroups)+len(incomingGroups))
	for _, group := range localGroups {
		key, err := groupKey(group)
		if err != nil {
			return nil, err
		}
		seen[key] = true
		merged = append(merged, group)
	}
	for _, group := range incomingGroups {
		key, err := groupKey(group)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, group)
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged conditions: %w", err)
	}
	return out, nil
}

// decodeGroups parses a conditions document as an array of opaque groups.
// Absent or null documents are empty sets.
func decodeGroups(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var groups []any
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// groupKey returns a group's structural identity: its JSON serialization
// after a decode round-trip, which sorts object keys.
func groupKey(group any) (string, error) {
	raw, err := json.Marshal(group)
	if err != nil {
		return "", fmt.Errorf("encode condition group: %w", err)
	}
	return string(raw), nil
}
