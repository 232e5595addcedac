package app

// Stage display names seeded per workflow type.
const (
	StageDraft           = "Draft"
	StageInReview        = "InReview"
	StageAwaitingChanges = "AwaitingChanges"
	StageApproved        = "Approved"
	StageInactive        = "Inactive"
	StageInProgress      = "InProgress"
	StageSubmitted       = "Submitted"
)

// RecordKind describes one submission workflow. The lifecycle engine is
// generic over this descriptor; adding a kind means adding a row here and
// seeding its stages.
type RecordKind struct {
	Name         string
	StageType    string
	SectionType  string
	InitialStage string
	// Companion names a kind created alongside this one, sharing the owner
	// and project. CompanionAdvance is the explicit stage the companion is
	// moved to when this kind reaches Approved.
	Companion        string
	CompanionAdvance string
}

const (
	KindPlan             = "plan"
	KindReport           = "report"
	KindNote             = "note"
	KindLiteratureReview = "literature-review"
)

var recordKinds = map[string]RecordKind{
	KindPlan: {
		Name:             KindPlan,
		StageType:        KindPlan,
		SectionType:      KindPlan,
		InitialStage:     StageDraft,
		Companion:        KindNote,
		CompanionAdvance: StageInProgress,
	},
	KindReport: {
		Name:         KindReport,
		StageType:    KindReport,
		SectionType:  KindReport,
		InitialStage: StageDraft,
	},
	KindNote: {
		Name:         KindNote,
		StageType:    KindNote,
		SectionType:  KindNote,
		InitialStage: StageInactive,
	},
	KindLiteratureReview: {
		Name:         KindLiteratureReview,
		StageType:    KindLiteratureReview,
		SectionType:  KindLiteratureReview,
		InitialStage: StageDraft,
	},
}

func kindByName(name string) (RecordKind, bool) {
	kind, ok := recordKinds[name]
	return kind, ok
}
