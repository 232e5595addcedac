package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"labbook/api/internal/authpw"
	"labbook/api/internal/rbac"
	"labbook/api/internal/store"
	"labbook/api/internal/util"
)

// Bootstrap seeds the stage graphs, their permission ranges, and a starter
// project with users so a fresh deployment is usable immediately. It is a
// no-op when the plan workflow already exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	_, err := s.store.GetStage(ctx, KindPlan, StageDraft)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check seed state: %w", err)
	}

	for _, kind := range []string{KindPlan, KindReport, KindLiteratureReview} {
		if err := s.seedReviewedWorkflow(ctx, kind); err != nil {
			return err
		}
	}
	if err := s.seedNoteWorkflow(ctx); err != nil {
		return err
	}
	if err := s.seedDemoProject(ctx); err != nil {
		return err
	}
	return s.seedDemoUsers(ctx)
}

// seedReviewedWorkflow builds the reviewer-gated graph:
// Draft(1) -> InReview(2) -> AwaitingChanges(5) -> Approved(10). The gap in
// sort orders leaves room for custom stages; InReview carries an explicit
// next pointer so the implicit successor rule is skipped there.
func (s *Service) seedReviewedWorkflow(ctx context.Context, stageType string) error {
	stages := []store.Stage{
		{ID: util.NewID("stg"), StageType: stageType, DisplayName: StageDraft, SortOrder: 1},
		{ID: util.NewID("stg"), StageType: stageType, DisplayName: StageInReview, SortOrder: 2},
		{ID: util.NewID("stg"), StageType: stageType, DisplayName: StageAwaitingChanges, SortOrder: 5},
		{ID: util.NewID("stg"), StageType: stageType, DisplayName: StageApproved, SortOrder: 10},
	}
	for _, stage := range stages {
		if err := s.store.InsertStage(ctx, stage); err != nil {
			return fmt.Errorf("seed stage %s/%s: %w", stageType, stage.DisplayName, err)
		}
	}
	if err := s.store.SetStageNext(ctx, stages[1].ID, stages[2].ID); err != nil {
		return fmt.Errorf("link %s InReview: %w", stageType, err)
	}

	permissions := []store.StagePermission{
		{StageType: stageType, Key: "edit", MinSortOrder: 1, MaxSortOrder: 1},
		{StageType: stageType, Key: "submit", MinSortOrder: 1, MaxSortOrder: 1},
		{StageType: stageType, Key: "review", MinSortOrder: 2, MaxSortOrder: 9},
		{StageType: stageType, Key: "edit", MinSortOrder: 5, MaxSortOrder: 5},
		{StageType: stageType, Key: "export", MinSortOrder: 1, MaxSortOrder: 10},
	}
	return s.insertPermissions(ctx, permissions)
}

// seedNoteWorkflow builds the unreviewed note graph:
// Inactive(1) -> InProgress(2) -> Submitted(10).
func (s *Service) seedNoteWorkflow(ctx context.Context) error {
	stages := []store.Stage{
		{ID: util.NewID("stg"), StageType: KindNote, DisplayName: StageInactive, SortOrder: 1},
		{ID: util.NewID("stg"), StageType: KindNote, DisplayName: StageInProgress, SortOrder: 2},
		{ID: util.NewID("stg"), StageType: KindNote, DisplayName: StageSubmitted, SortOrder: 10},
	}
	for _, stage := range stages {
		if err := s.store.InsertStage(ctx, stage); err != nil {
			return fmt.Errorf("seed stage note/%s: %w", stage.DisplayName, err)
		}
	}

	permissions := []store.StagePermission{
		{StageType: KindNote, Key: "edit", MinSortOrder: 2, MaxSortOrder: 9},
		{StageType: KindNote, Key: "export", MinSortOrder: 2, MaxSortOrder: 10},
	}
	return s.insertPermissions(ctx, permissions)
}

func (s *Service) insertPermissions(ctx context.Context, permissions []store.StagePermission) error {
	for _, permission := range permissions {
		permission.ID = util.NewID("prm")
		if err := s.store.InsertStagePermission(ctx, permission); err != nil {
			return fmt.Errorf("seed permission %s/%s: %w", permission.StageType, permission.Key, err)
		}
	}
	return nil
}

// seedDemoProject creates a starter project with one section per kind,
// including a trigger pair and a file field on the plan form so every input
// path is exercised out of the box.
func (s *Service) seedDemoProject(ctx context.Context) error {
	project := store.Project{
		ID:   util.NewID("prj"),
		Name: "Acid-Base Titration",
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return fmt.Errorf("seed project: %w", err)
	}

	planSection := store.Section{
		ID:          util.NewID("sec"),
		ProjectID:   project.ID,
		SectionType: KindPlan,
		Name:        "Experimental Setup",
		SortOrder:   1,
	}
	safetySection := store.Section{
		ID:          util.NewID("sec"),
		ProjectID:   project.ID,
		SectionType: KindPlan,
		Name:        "Safety",
		SortOrder:   2,
	}
	reportSection := store.Section{
		ID:          util.NewID("sec"),
		ProjectID:   project.ID,
		SectionType: KindReport,
		Name:        "Results",
		SortOrder:   1,
	}
	noteSection := store.Section{
		ID:          util.NewID("sec"),
		ProjectID:   project.ID,
		SectionType: KindNote,
		Name:        "Lab Notes",
		SortOrder:   1,
	}
	reviewSection := store.Section{
		ID:          util.NewID("sec"),
		ProjectID:   project.ID,
		SectionType: KindLiteratureReview,
		Name:        "Sources",
		SortOrder:   1,
	}
	for _, section := range []store.Section{planSection, safetySection, reportSection, noteSection, reviewSection} {
		if err := s.store.InsertSection(ctx, section); err != nil {
			return fmt.Errorf("seed section %s: %w", section.Name, err)
		}
	}

	hazardous := store.Field{
		ID:           util.NewID("fld"),
		SectionID:    safetySection.ID,
		Name:         "Hazardous reagents used?",
		SortOrder:    2,
		InputKind:    "radio",
		Mandatory:    true,
		DefaultValue: `"No"`,
		Options:      []string{"Yes", "No"},
	}
	yes := "Yes"
	fields := []store.Field{
		{
			ID:           util.NewID("fld"),
			SectionID:    planSection.ID,
			Name:         "Setup",
			SortOrder:    1,
			InputKind:    "header",
			DefaultValue: `""`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    planSection.ID,
			Name:         "Hypothesis",
			SortOrder:    2,
			InputKind:    "text",
			Mandatory:    true,
			DefaultValue: `""`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    planSection.ID,
			Name:         "Equipment",
			SortOrder:    3,
			InputKind:    "multiple",
			DefaultValue: `[]`,
			Options:      []string{"Burette", "Pipette", "pH meter", "Conical flask"},
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    planSection.ID,
			Name:         "Setup photo",
			SortOrder:    4,
			InputKind:    "image-file",
			DefaultValue: `[]`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    safetySection.ID,
			Name:         "Precautions",
			SortOrder:    1,
			InputKind:    "header",
			DefaultValue: `""`,
		},
		hazardous,
		{
			ID:              util.NewID("fld"),
			SectionID:       safetySection.ID,
			Name:            "Hazard mitigation",
			SortOrder:       3,
			InputKind:       "description",
			DefaultValue:    `""`,
			TriggerCause:    &yes,
			TriggerTargetID: &hazardous.ID,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    reportSection.ID,
			Name:         "Titration volume (mL)",
			SortOrder:    1,
			InputKind:    "number",
			Mandatory:    true,
			DefaultValue: `0`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    reportSection.ID,
			Name:         "Observations",
			SortOrder:    2,
			InputKind:    "description",
			DefaultValue: `""`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    noteSection.ID,
			Name:         "Daily log",
			SortOrder:    1,
			InputKind:    "description",
			DefaultValue: `""`,
		},
		{
			ID:           util.NewID("fld"),
			SectionID:    reviewSection.ID,
			Name:         "References",
			SortOrder:    1,
			InputKind:    "sorted-multiple",
			DefaultValue: `[]`,
		},
	}
	for _, field := range fields {
		if err := s.store.InsertField(ctx, field); err != nil {
			return fmt.Errorf("seed field %s: %w", field.Name, err)
		}
	}
	return nil
}

func (s *Service) seedDemoUsers(ctx context.Context) error {
	users := []authpw.SignUpRequest{
		{Email: "student@labbook.local", Password: "student-demo-pw", DisplayName: "Demo Student", Role: string(rbac.RoleStudent)},
		{Email: "instructor@labbook.local", Password: "instructor-demo-pw", DisplayName: "Demo Instructor", Role: string(rbac.RoleInstructor)},
	}
	for _, req := range users {
		if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check user %s: %w", req.Email, err)
		}
		if _, err := s.authpw.SignUp(ctx, req); err != nil {
			return fmt.Errorf("seed user %s: %w", req.Email, err)
		}
	}
	return nil
}
