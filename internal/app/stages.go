package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"labbook/api/internal/search"
	"labbook/api/internal/store"
	"labbook/api/internal/util"
)

// StageResult reports where a submission landed after an advance and which
// permission keys are active there.
type StageResult struct {
	StageName   string   `json:"stageName"`
	SortOrder   int      `json:"sortOrder"`
	Permissions []string `json:"permissions"`
}

// AdvanceStage moves a submission to its next stage. With an explicit stage
// name the target is looked up by display name; an unknown name is a
// configuration error, never a silent no-op. Without one, the current
// stage's next-stage pointer wins over the sort-order successor. A nil
// result with nil error means the workflow is terminal here, an expected
// outcome the handler maps to a conflict.
func (s *Service) AdvanceStage(ctx context.Context, submissionID, explicitName string, actor Session) (*StageResult, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	kind, ok := kindByName(submission.Kind)
	if !ok {
		return nil, domainError(http.StatusInternalServerError, "UNKNOWN_KIND", "Unknown submission kind", submission.Kind)
	}

	current, err := s.store.GetStageByID(ctx, submission.StageID)
	if err != nil {
		return nil, err
	}

	var next store.Stage
	if explicitName != "" {
		next, err = s.store.GetStage(ctx, kind.StageType, explicitName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusInternalServerError, "STAGE_CONFIG",
				fmt.Sprintf("Stage %q is not configured for %s", explicitName, kind.StageType), nil)
		}
		if err != nil {
			return nil, err
		}
	} else if current.NextStageID != nil {
		next, err = s.store.GetStageByID(ctx, *current.NextStageID)
		if err != nil {
			return nil, err
		}
	} else {
		next, err = s.store.GetStageBySortOrder(ctx, kind.StageType, current.SortOrder+1)
		if errors.Is(err, sql.ErrNoRows) {
			// Terminal for this path.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateSubmissionStage(ctx, submission.ID, next.ID); err != nil {
		return nil, err
	}

	permissions, err := s.store.ListStagePermissions(ctx, kind.StageType, next.SortOrder)
	if err != nil {
		return nil, err
	}

	s.notifyStageChange(ctx, submission, next, actor)
	s.indexSubmission(ctx, submission.ID)

	if next.DisplayName == StageApproved && kind.Companion != "" {
		if err := s.advanceCompanion(ctx, submission, kind, actor); err != nil {
			return nil, err
		}
	}

	return &StageResult{
		StageName:   next.DisplayName,
		SortOrder:   next.SortOrder,
		Permissions: permissions,
	}, nil
}

// advanceCompanion moves the paired record (the plan's note) to its working
// stage once this record is approved.
func (s *Service) advanceCompanion(ctx context.Context, submission store.Submission, kind RecordKind, actor Session) error {
	companion, err := s.store.GetSubmissionByParent(ctx, submission.ID)
	if err != nil {
		return err
	}
	if companion == nil || companion.Kind != kind.Companion {
		return nil
	}
	_, err = s.AdvanceStage(ctx, companion.ID, kind.CompanionAdvance, actor)
	return err
}

func (s *Service) notifyStageChange(ctx context.Context, submission store.Submission, next store.Stage, actor Session) {
	if actor.UserID == submission.OwnerID {
		return
	}
	_ = s.store.InsertNotification(ctx, store.Notification{
		ID:           util.NewID("ntf"),
		RecipientID:  submission.OwnerID,
		SubmissionID: submission.ID,
		Body:         fmt.Sprintf("%s moved %q to %s", actor.UserName, submission.Title, next.DisplayName),
		CreatedAt:    time.Now(),
	})
}

func (s *Service) indexSubmission(ctx context.Context, submissionID string) {
	if s.search == nil {
		return
	}
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return
	}
	s.search.IndexSubmission(search.SubmissionRecord{
		ID:        submission.ID,
		Title:     submission.Title,
		OwnerName: submission.OwnerName,
		Kind:      submission.Kind,
		ProjectID: submission.ProjectID,
		StageName: submission.StageName,
	})
}
