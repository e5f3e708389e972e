package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// String coerces v to a trimmed string. Numbers are formatted without
// exponent; nil becomes "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(sanitizeString(x))
	case []byte:
		return strings.TrimSpace(sanitizeString(string(x)))
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Bool coerces v to a bool. It accepts booleans, 0/1 numbers and the strings
// understood by strconv.ParseBool plus "yes"/"no". ok is false when v is
// missing or unrecognized.
func Bool(v any) (b, ok bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case int:
		return x != 0, true
	case float64:
		return x != 0, true
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "yes", "y":
			return true, true
		case "no", "n":
			return false, true
		}
		if p, err := strconv.ParseBool(s); err == nil {
			return p, true
		}
	}
	return false, false
}

// BoolOr is Bool with a fallback for missing or unrecognized values.
func BoolOr(v any, def bool) bool {
	if b, ok := Bool(v); ok {
		return b
	}
	return def
}

// Int coerces v to an int. JSON numbers arrive as float64; fractional
// values are rejected.
func Int(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

// Time coerces v to a UTC time. Unparseable values yield the zero time.
func Time(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case string:
		t, err := store.ParseTime(strings.TrimSpace(x))
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// Category maps legacy spellings ("photo frame", "Photo-Frame") onto the
// category enum.
func Category(v any) domain.Category {
	s := strings.ToUpper(String(v))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return domain.Category(s)
}

//nolint:gochecknoglobals // Shared title caser
var titleCaser = cases.Title(language.Und)

// Rarity maps "rare", "RARE" and "Rare" onto the rarity enum.
func Rarity(v any) domain.Rarity {
	return domain.Rarity(titleCaser.String(strings.ToLower(String(v))))
}

// ThemeKind maps a stored theme type onto the enum. Unknown values are
// treated as gradients.
func ThemeKind(v any) domain.ThemeKind {
	if strings.EqualFold(String(v), string(domain.ThemeImage)) {
		return domain.ThemeImage
	}
	return domain.ThemeGradient
}

// sanitizeString removes null bytes, which some import paths leave in text
// columns.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
