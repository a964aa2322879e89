// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/staslianx/balli-sub009/internal/event"
)

// ErrMalformedFrame reports a data frame whose payload could not be decoded.
var ErrMalformedFrame = errors.New("sse: malformed frame")

// ParseFrame converts one frame into an event.
//
// It returns (nil, nil) for frames that carry nothing actionable: unknown
// comments, empty data, or field lines other than data. Known comments map
// to event.Comment. A bad payload yields (nil, err) with err wrapping
// ErrMalformedFrame; callers log it and keep reading.
func ParseFrame(f Frame) (event.Event, error) {
	var (
		data       []string
		comment    string
		hasComment bool
	)

	for _, line := range strings.Split(string(f), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if !hasComment {
				comment = strings.TrimSpace(line[1:])
				hasComment = true
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			data = append(data, value)
		case "event", "id", "retry":
			// Accepted for compatibility; the payload carries its own type.
		}
	}

	if len(data) > 0 {
		payload := strings.TrimSpace(strings.Join(data, "\n"))
		if payload == "" || payload == "[DONE]" {
			return nil, nil
		}
		ev, err := event.Unmarshal([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return ev, nil
	}

	if hasComment {
		switch comment {
		case event.CommentKeepalive, event.CommentFlushTokens:
			return event.Comment{Text: comment}, nil
		}
	}
	return nil, nil
}

// splitField splits "field: value" per the SSE line rules: one optional
// space after the colon is dropped.
func splitField(line string) (string, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimPrefix(line[i+1:], " ")
}
