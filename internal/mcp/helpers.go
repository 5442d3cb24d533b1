package mcpserver

import (
	"encoding/json"
	"math"

	"maglink/internal/errs"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

func getString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getInt reads an optional whole number. JSON numbers arrive as float64;
// anything fractional or non-numeric is invalid input.
func getInt(args map[string]any, key string) (*int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, errs.New(errs.ErrCodeInvalidInput, "%s must be an integer", key)
	}
	n := int(f)
	return &n, nil
}

// requireInt is getInt for mandatory arguments.
func requireInt(args map[string]any, key string) (int, error) {
	n, err := getInt(args, key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, errs.New(errs.ErrCodeInvalidInput, "%s is required", key)
	}
	return *n, nil
}

func requireString(args map[string]any, key string) (string, error) {
	s := getString(args, key)
	if s == "" {
		return "", errs.New(errs.ErrCodeInvalidInput, "%s is required", key)
	}
	return s, nil
}

func boolPtr(v bool) *bool { return &v }
