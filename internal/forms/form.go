package forms

import (
	"sort"

	"labbook/api/internal/store"
)

// FieldView is one render-ready field in a section form: schema joined with
// the resolved current answer and its review state.
type FieldView struct {
	FieldID         string   `json:"fieldId"`
	ResponseID      string   `json:"responseId,omitempty"`
	Name            string   `json:"name"`
	SortOrder       int      `json:"sortOrder"`
	InputKind       string   `json:"inputKind"`
	Mandatory       bool     `json:"mandatory"`
	Hidden          bool     `json:"hidden"`
	Payload         string   `json:"value"`
	Approved        bool     `json:"approved"`
	UnreadComments  int      `json:"unreadComments"`
	Options         []string `json:"options,omitempty"`
	TriggerCause    *string  `json:"triggerCause,omitempty"`
	TriggerTargetID *string  `json:"triggerTargetId,omitempty"`
}

// FormModel joins a section's fields with the submission's responses into an
// ordered FieldView list. A field without a response renders its default
// value, unapproved, with no comments.
func FormModel(fields []store.Field, responses []store.FieldResponse) []FieldView {
	byField := make(map[string]store.FieldResponse, len(responses))
	for _, response := range responses {
		byField[response.FieldID] = response
	}

	views := make([]FieldView, 0, len(fields))
	for _, field := range fields {
		view := FieldView{
			FieldID:         field.ID,
			Name:            field.Name,
			SortOrder:       field.SortOrder,
			InputKind:       field.InputKind,
			Mandatory:       field.Mandatory,
			Hidden:          field.Hidden,
			Payload:         field.DefaultValue,
			Options:         field.Options,
			TriggerCause:    field.TriggerCause,
			TriggerTargetID: field.TriggerTargetID,
		}
		if response, ok := byField[field.ID]; ok {
			view.ResponseID = response.ID
			view.Approved = response.Approved
			view.UnreadComments = response.UnreadCount
			if raw, hasValue := CurrentRaw(response); hasValue {
				if _, parsed := Decode(raw); parsed {
					view.Payload = raw
				}
			}
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].SortOrder < views[j].SortOrder })
	return views
}

// DataFields filters out structural layout fields, which never carry a
// response.
func DataFields(fields []store.Field, structural StructuralSet) []store.Field {
	kept := make([]store.Field, 0, len(fields))
	for _, field := range fields {
		if structural.Structural(field.InputKind) {
			continue
		}
		kept = append(kept, field)
	}
	return kept
}
