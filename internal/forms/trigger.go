package forms

import "labbook/api/internal/store"

// Evaluator answers trigger relevance questions for one submission's fields
// and responses. A field controlled by no parent, or whose parent's answer is
// missing or malformed, is always relevant.
type Evaluator struct {
	parents   map[string]store.Field         // child field id -> controlling parent
	responses map[string]store.FieldResponse // field id -> response
}

func NewEvaluator(fields []store.Field, responses []store.FieldResponse) *Evaluator {
	e := &Evaluator{
		parents:   make(map[string]store.Field),
		responses: make(map[string]store.FieldResponse, len(responses)),
	}
	for _, field := range fields {
		if field.TriggerTargetID != nil && field.TriggerCause != nil {
			e.parents[*field.TriggerTargetID] = field
		}
	}
	for _, response := range responses {
		e.responses[response.FieldID] = response
	}
	return e
}

func (e *Evaluator) Relevant(fieldID string) bool {
	parent, controlled := e.parents[fieldID]
	if !controlled {
		return true
	}
	response, answered := e.responses[parent.ID]
	if !answered {
		return true
	}
	raw, hasValue := CurrentRaw(response)
	if !hasValue {
		return true
	}
	value, parsed := Decode(raw)
	if !parsed {
		return true
	}
	return value.Contains(*parent.TriggerCause)
}
