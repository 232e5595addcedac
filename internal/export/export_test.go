package export

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Plan v1.2", "My-Plan-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "submission"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderFormHTML(t *testing.T) {
	sub := Submission{
		Title:       "Aspirin Synthesis Plan",
		Kind:        "plan",
		OwnerName:   "Ada",
		StageName:   "Draft",
		ProjectName: "Green Chemistry 101",
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sections: []Section{
			{
				Name: "Hazards",
				Fields: []Field{
					{Name: "Solvent used", InputKind: "multiple", Value: "Ethanol", Options: []string{"Ethanol", "Acetone"}, Approved: true},
					{Name: "Notes", InputKind: "text", Value: "Keep away from <open flame>"},
				},
			},
		},
	}

	html, err := RenderFormHTML(sub)
	if err != nil {
		t.Fatalf("RenderFormHTML() error = %v", err)
	}

	for _, want := range []string{"Aspirin Synthesis Plan", "Green Chemistry 101", "Hazards", "Solvent used", "Ethanol"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}

	// Field values come from users and must be escaped.
	if strings.Contains(html, "<open flame>") {
		t.Error("field value was not HTML-escaped")
	}
	if !strings.Contains(html, "&lt;open flame&gt;") {
		t.Error("expected escaped field value in output")
	}
}
