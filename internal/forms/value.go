package forms

import (
	"encoding/json"
	"strconv"
)

type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// Value is a field payload decoded once into a tagged variant, so trigger
// predicates and rendering match on the kind tag instead of re-sniffing the
// serialized form.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
	Raw  json.RawMessage
}

// Decode parses a stored payload. It first attempts a strict JSON parse; if
// that fails it retries with the payload wrapped as a quoted string literal.
// ok is false only when both attempts fail.
func Decode(payload string) (Value, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// Legacy payloads were stored as bare strings. Wrap literally; a
		// payload carrying its own quotes fails this pass too and falls
		// through to the caller's default.
		quoted := `"` + payload + `"`
		if err := json.Unmarshal([]byte(quoted), &parsed); err != nil {
			return Value{}, false
		}
	}
	return classify(parsed), true
}

func classify(parsed any) Value {
	switch v := parsed.(type) {
	case nil:
		return Value{Kind: KindEmpty}
	case string:
		if v == "" {
			return Value{Kind: KindEmpty}
		}
		return Value{Kind: KindString, Str: v}
	case float64:
		return Value{Kind: KindNumber, Num: v}
	case bool:
		return Value{Kind: KindBool, Bool: v}
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, itemString(item))
		}
		return Value{Kind: KindList, List: items}
	default:
		raw, _ := json.Marshal(parsed)
		return Value{Kind: KindObject, Raw: raw}
	}
}

// itemString reduces one list element to its comparable string form. Option
// objects compare by their name.
func itemString(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
	}
	raw, _ := json.Marshal(item)
	return string(raw)
}

// Scalar returns the value's comparable string form. List and object values
// have no scalar form and return false.
func (v Value) Scalar() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	case KindEmpty:
		return "", true
	default:
		return "", false
	}
}

// Contains reports list membership for list values, and scalar equality
// otherwise.
func (v Value) Contains(want string) bool {
	if v.Kind == KindList {
		for _, item := range v.List {
			if item == want {
				return true
			}
		}
		return false
	}
	scalar, ok := v.Scalar()
	return ok && scalar == want
}
