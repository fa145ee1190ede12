package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parseArg reads one command-line bind value. JSON scalars keep their
// type (42, 2.5, true, null, "quoted"); anything else is a string.
func parseArg(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s, nil
	}
	switch v.(type) {
	case nil, bool, string, json.Number:
		return v, nil
	default:
		return nil, fmt.Errorf("bind value %q: arrays and objects are not supported", s)
	}
}

// parseArgs applies parseArg to each element.
func parseArgs(args []string) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := parseArg(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeJSONValues reads a JSON array of bind values such as a page
// cursor, keeping integers exact.
func decodeJSONValues(data []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var vals []any
	if err := dec.Decode(&vals); err != nil {
		return nil, err
	}
	return vals, nil
}
