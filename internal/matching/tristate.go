package matching

import (
	"fmt"
	"strings"
)

// TriState is the normalized form of the store's gating flags, which arrive
// as booleans, numbers, strings or single-element lists depending on how the
// enrichment pipeline wrote them.
type TriState int

const (
	Unknown TriState = iota
	True
	False
)

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

func (t TriState) IsTrue() bool { return t == True }

// ParseTriState is the single normalizing constructor for flag values read
// from the store.
func ParseTriState(v any) TriState {
	switch value := v.(type) {
	case nil:
		return Unknown
	case bool:
		if value {
			return True
		}
		return False
	case int:
		return parseTriStateNumber(float64(value))
	case float64:
		return parseTriStateNumber(value)
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "1":
			return True
		case "false", "no", "0":
			return False
		default:
			return Unknown
		}
	case []any:
		if len(value) == 0 {
			return Unknown
		}
		return ParseTriState(value[0])
	default:
		return Unknown
	}
}

func parseTriStateNumber(v float64) TriState {
	switch v {
	case 1:
		return True
	case 0:
		return False
	default:
		return Unknown
	}
}

// FieldText flattens a store field value to trimmed text. List values
// (multi-selects) are joined with commas; nil becomes the empty string.
func FieldText(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if text := FieldText(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	}
}
