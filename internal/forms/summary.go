package forms

import "labbook/api/internal/store"

// SectionSummary is the aggregate view of one section's approval and unread
// comment state.
type SectionSummary struct {
	SectionID    string `json:"sectionId"`
	Name         string `json:"name"`
	SortOrder    int    `json:"sortOrder"`
	Approved     bool   `json:"approved"`
	CommentCount int    `json:"commentCount"`
}

// Summaries computes per-section aggregates, ascending by section sort order.
// The approval aggregate counts only trigger-relevant responses; the unread
// comment count deliberately sums across every response in the section,
// relevant or not.
func Summaries(sections []store.Section, fields []store.Field, responses []store.FieldResponse) []SectionSummary {
	eval := NewEvaluator(fields, responses)

	fieldSection := make(map[string]string, len(fields))
	for _, field := range fields {
		fieldSection[field.ID] = field.SectionID
	}

	summaries := make([]SectionSummary, 0, len(sections))
	for _, section := range sections {
		summary := SectionSummary{
			SectionID: section.ID,
			Name:      section.Name,
			SortOrder: section.SortOrder,
		}
		relevant := 0
		allApproved := true
		for _, response := range responses {
			if fieldSection[response.FieldID] != section.ID {
				continue
			}
			summary.CommentCount += response.UnreadCount
			if !eval.Relevant(response.FieldID) {
				continue
			}
			relevant++
			if !response.Approved {
				allApproved = false
			}
		}
		summary.Approved = relevant > 0 && allApproved
		summaries = append(summaries, summary)
	}
	return summaries
}
