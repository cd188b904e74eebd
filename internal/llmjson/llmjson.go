// Package llmjson pulls a JSON payload out of a model reply.
//
// Models asked for "only JSON" still wrap it in Markdown fences or lead with
// a sentence of prose. [Extract] tolerates both: it strips a fenced block
// when there is one and otherwise takes the first balanced object or array
// in the reply. Every failure wraps [ErrMalformedResponse]; callers check the
// decoded shape themselves and report violations with [Malformed].
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse reports a model reply that holds no usable JSON or
// whose JSON does not match the expected schema.
var ErrMalformedResponse = errors.New("malformed model response")

// Extract returns the JSON payload embedded in s.
func Extract(s string) (string, error) {
	s = stripFence(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("llmjson: empty reply: %w", ErrMalformedResponse)
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}
	start := strings.IndexAny(s, "{[")
	for start >= 0 {
		if end := balanced(s, start); end > 0 && json.Valid([]byte(s[start:end])) {
			return s[start:end], nil
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("llmjson: no JSON value in reply: %w", ErrMalformedResponse)
}

// Decode extracts the payload from s and unmarshals it into v. Fields of the
// wrong JSON type fail; unknown fields are ignored.
func Decode(s string, v any) error {
	payload, err := Extract(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("llmjson: decode: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// Malformed wraps a schema violation found after decoding.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformedResponse)
}

// stripFence returns the body of the first ``` fenced block, or s unchanged
// when it has none.
func stripFence(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// Drop the info string ("json") up to the end of the fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// balanced returns the end offset (exclusive) of the bracketed value that
// opens at s[start], or -1 when it never closes. Brackets inside string
// literals are ignored.
func balanced(s string, start int) int {
	var (
		stack    = []byte{closer(s[start])}
		inString bool
		escaped  bool
	)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, closer(c))
		case c == '}' || c == ']':
			if c != stack[len(stack)-1] {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func closer(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}
