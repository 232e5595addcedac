package forms

import "encoding/json"

// FilePayload is one file reference inside a file-bearing field's payload.
// Location is an opaque blob locator; IsNew and IsMarkedForDeletion tell the
// save pipeline which blobs to upload or remove.
type FilePayload struct {
	Name                string `json:"name"`
	Location            string `json:"location"`
	Caption             string `json:"caption,omitempty"`
	IsNew               bool   `json:"isNew,omitempty"`
	IsMarkedForDeletion bool   `json:"isMarkedForDeletion,omitempty"`
}

// ParseFilePayloads extracts file references from a raw payload. Payloads
// hold either a single file object or an array of them; anything else yields
// an empty list.
func ParseFilePayloads(raw string) []FilePayload {
	var many []FilePayload
	if err := json.Unmarshal([]byte(raw), &many); err == nil {
		return filesWithLocationOrName(many)
	}
	var one FilePayload
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		return filesWithLocationOrName([]FilePayload{one})
	}
	return nil
}

func filesWithLocationOrName(files []FilePayload) []FilePayload {
	kept := files[:0]
	for _, f := range files {
		if f.Location != "" || f.Name != "" {
			kept = append(kept, f)
		}
	}
	return kept
}

// EncodeFilePayloads serializes the kept file list back into a payload.
func EncodeFilePayloads(files []FilePayload) string {
	raw, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
