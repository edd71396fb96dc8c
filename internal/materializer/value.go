package materializer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeValue coerces an incoming value to what the declared column kind
// expects. Blank input becomes SQL NULL for numeric and date columns and an
// empty string for everything else. Booleans headed into integer columns
// become 0/1. A value that fails to parse as the declared kind is passed on
// as the raw trimmed string instead of raising.
func NormalizeValue(kind ColumnKind, value any) any {
	if value == nil {
		if kind.IsNumericOrDate() {
			return nil
		}
		return ""
	}

	raw := strings.TrimSpace(fmt.Sprintf("%v", value))
	if raw == "" {
		if kind.IsNumericOrDate() {
			return nil
		}
		return ""
	}

	switch kind {
	case KindInt:
		if b, ok := value.(bool); ok {
			if b {
				return 1
			}
			return 0
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return int64(f)
		}
		return raw
	case KindDouble:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case KindBool:
		if b, ok := value.(bool); ok {
			return b
		}
		if b, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			return b
		}
		return raw
	case KindDateTime:
		if t, ok := value.(time.Time); ok {
			return t
		}
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
		return raw
	default:
		return raw
	}
}
