package forms

import "labbook/api/internal/store"

// CurrentRaw returns the payload of the response's most recent value entry.
// The store loads history oldest first, so the current entry is the last.
func CurrentRaw(response store.FieldResponse) (string, bool) {
	if len(response.Values) == 0 {
		return "", false
	}
	return response.Values[len(response.Values)-1].Value, true
}

// ResolveCurrent decodes a response's current value. A payload that fails
// both parse attempts falls back to the field's default, and an unparseable
// default yields an empty value. Malformed stored data never surfaces as an
// error.
func ResolveCurrent(response store.FieldResponse, field store.Field) Value {
	raw, ok := CurrentRaw(response)
	if ok {
		if value, parsed := Decode(raw); parsed {
			return value
		}
	}
	if value, parsed := Decode(field.DefaultValue); parsed {
		return value
	}
	return Value{Kind: KindEmpty}
}
