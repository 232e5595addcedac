package forms

// Input kinds the engine treats specially. Everything else is an opaque
// data-bearing kind.
const (
	InputKindContent        = "content"
	InputKindHeader         = "header"
	InputKindText           = "text"
	InputKindDescription    = "description"
	InputKindNumber         = "number"
	InputKindRadio          = "radio"
	InputKindMultiple       = "multiple"
	InputKindSortedMultiple = "sorted-multiple"
	InputKindFile           = "file"
	InputKindImageFile      = "image-file"
)

// StructuralSet holds the input kinds that carry no answer and exist only
// for form layout. The set is injected configuration, not a fixed list.
type StructuralSet map[string]struct{}

func NewStructuralSet(kinds []string) StructuralSet {
	set := make(StructuralSet, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return set
}

func (s StructuralSet) Structural(inputKind string) bool {
	_, ok := s[inputKind]
	return ok
}

// FileKind reports whether an input kind's payload references stored blobs.
func FileKind(inputKind string) bool {
	return inputKind == InputKindFile || inputKind == InputKindImageFile
}
