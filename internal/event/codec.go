// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownType is returned for a payload whose type is not recognized.
	ErrUnknownType = errors.New("event: unknown type")

	// ErrMissingType is returned for a payload without a type field.
	ErrMissingType = errors.New("event: missing type")

	// ErrNotEncodable is returned when Marshal is given a comment.
	ErrNotEncodable = errors.New("event: comments have no JSON form")
)

// =============================================================================
// ENCODING
// =============================================================================

// Marshal encodes ev as the JSON payload of a data frame.
func Marshal(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Token:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Token
		}{TypeToken, e})
	case SourcesReady:
		if e.Sources == nil {
			e.Sources = []Source{}
		}
		return json.Marshal(struct {
			Type Type `json:"type"`
			SourcesReady
		}{TypeSourcesReady, e})
	case StageProgress:
		return json.Marshal(struct {
			Type Type `json:"type"`
			StageProgress
		}{TypeStageProgress, e})
	case Complete:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Complete
		}{TypeComplete, e})
	case Error:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Error
		}{TypeError, e})
	case Comment:
		return nil, ErrNotEncodable
	case nil:
		return nil, fmt.Errorf("%w: nil event", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
}

// =============================================================================
// DECODING
// =============================================================================

// Unmarshal decodes a data frame payload into its concrete event.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("event: decode payload: %w", err)
	}

	switch head.Type {
	case TypeToken:
		var e Token
		return decodeInto(data, &e)
	case TypeSourcesReady:
		var e SourcesReady
		return decodeInto(data, &e)
	case TypeStageProgress:
		var e StageProgress
		return decodeInto(data, &e)
	case TypeComplete:
		var e Complete
		return decodeInto(data, &e)
	case TypeError:
		var e Error
		return decodeInto(data, &e)
	case "":
		return nil, ErrMissingType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

// decodeInto unmarshals data into the pointer target and returns the value.
func decodeInto[T Event](data []byte, target *T) (Event, error) {
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("event: decode %s: %w", (*target).Type(), err)
	}
	return *target, nil
}
