package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"labbook/api/internal/export"
	"labbook/api/internal/forms"
	"labbook/api/internal/rbac"
	"labbook/api/internal/store"
	"labbook/api/internal/util"
)

// SubmissionView is the list/detail shape handed to clients: the record plus
// the permission keys active at its current stage.
type SubmissionView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	OwnerID     string    `json:"ownerId"`
	OwnerName   string    `json:"ownerName"`
	StageName   string    `json:"stageName"`
	SortOrder   int       `json:"sortOrder"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Permissions []string  `json:"permissions"`
}

// SummariesView bundles a submission's per-section aggregates with its stage
// state.
type SummariesView struct {
	StageName   string                 `json:"stageName"`
	SortOrder   int                    `json:"sortOrder"`
	Permissions []string               `json:"permissions"`
	Sections    []forms.SectionSummary `json:"sections"`
}

// CreateSubmission starts a record of the given kind for the owner in a
// project. Creation is idempotent per (kind, project, owner): a repeat call
// returns the existing record untouched, with its answer rows backfilled for
// any fields added since. A plan also gets its companion note, created
// inactive and linked by parent.
func (s *Service) CreateSubmission(ctx context.Context, actor Session, projectID, kindName, title string) (SubmissionView, error) {
	kind, ok := kindByName(kindName)
	if !ok {
		return SubmissionView{}, domainError(http.StatusBadRequest, "UNKNOWN_KIND", "Unknown submission kind", kindName)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return SubmissionView{}, err
	}

	submission, err := s.ensureSubmission(ctx, actor.UserID, projectID, kind, title, nil)
	if err != nil {
		return SubmissionView{}, err
	}

	if kind.Companion != "" {
		companion, ok := kindByName(kind.Companion)
		if !ok {
			return SubmissionView{}, domainError(http.StatusInternalServerError, "UNKNOWN_KIND", "Unknown companion kind", kind.Companion)
		}
		if _, err := s.ensureSubmission(ctx, actor.UserID, projectID, companion, title, &submission.ID); err != nil {
			return SubmissionView{}, err
		}
	}

	return s.submissionView(ctx, submission.ID)
}

// ensureSubmission returns the owner's existing record of this kind in the
// project, creating it at the kind's initial stage when absent. Either way
// the answer rows are backfilled.
func (s *Service) ensureSubmission(ctx context.Context, ownerID, projectID string, kind RecordKind, title string, parentID *string) (store.Submission, error) {
	existing, err := s.store.GetSubmissionByOwner(ctx, kind.Name, projectID, ownerID)
	if err != nil {
		return store.Submission{}, err
	}
	if existing == nil {
		initial, err := s.store.GetStage(ctx, kind.StageType, kind.InitialStage)
		if err != nil {
			return store.Submission{}, err
		}
		created := store.Submission{
			ID:        util.NewID("sub"),
			Kind:      kind.Name,
			ProjectID: projectID,
			OwnerID:   ownerID,
			Title:     title,
			StageID:   initial.ID,
			ParentID:  parentID,
		}
		if err := s.store.InsertSubmission(ctx, created); err != nil {
			return store.Submission{}, err
		}
		existing = &created
	}
	if err := s.createResponses(ctx, *existing, kind); err != nil {
		return store.Submission{}, err
	}
	full, err := s.store.GetSubmission(ctx, existing.ID)
	if err != nil {
		return store.Submission{}, err
	}
	s.indexSubmission(ctx, full.ID)
	return full, nil
}

// createResponses backfills one answer row per data field the submission is
// missing, seeded with the field's default value. Structural layout fields
// never get a row.
func (s *Service) createResponses(ctx context.Context, submission store.Submission, kind RecordKind) error {
	fields, err := s.store.ListFieldsBySectionType(ctx, submission.ProjectID, kind.SectionType)
	if err != nil {
		return err
	}
	responses, err := s.store.ListFieldResponses(ctx, submission.ID)
	if err != nil {
		return err
	}
	answered := make(map[string]bool, len(responses))
	for _, response := range responses {
		answered[response.FieldID] = true
	}

	for _, field := range forms.DataFields(fields, s.structural) {
		if answered[field.ID] {
			continue
		}
		response := store.FieldResponse{
			ID:           util.NewID("rsp"),
			SubmissionID: submission.ID,
			FieldID:      field.ID,
		}
		if err := s.store.InsertFieldResponse(ctx, response); err != nil {
			return err
		}
		value := store.ResponseValue{
			ID:              util.NewID("val"),
			FieldResponseID: response.ID,
			Value:           field.DefaultValue,
			RecordedAt:      time.Now(),
		}
		if err := s.store.InsertResponseValue(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetSubmission(ctx context.Context, submissionID string) (SubmissionView, error) {
	return s.submissionView(ctx, submissionID)
}

func (s *Service) submissionView(ctx context.Context, submissionID string) (SubmissionView, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionView{}, err
	}
	kind, ok := kindByName(submission.Kind)
	if !ok {
		return SubmissionView{}, domainError(http.StatusInternalServerError, "UNKNOWN_KIND", "Unknown submission kind", submission.Kind)
	}
	permissions, err := s.store.ListStagePermissions(ctx, kind.StageType, submission.StageSortOrder)
	if err != nil {
		return SubmissionView{}, err
	}
	return viewOf(submission, permissions), nil
}

// ListSubmissions returns the project's records of a kind. Reviewers see
// every owner's; students only their own.
func (s *Service) ListSubmissions(ctx context.Context, actor Session, projectID, kindName string) ([]SubmissionView, error) {
	kind, ok := kindByName(kindName)
	if !ok {
		return nil, domainError(http.StatusBadRequest, "UNKNOWN_KIND", "Unknown submission kind", kindName)
	}

	var submissions []store.Submission
	var err error
	if rbac.Reviewer(rbac.Normalize(actor.Role)) {
		submissions, err = s.store.ListSubmissionsByProject(ctx, projectID, kind.Name)
	} else {
		submissions, err = s.store.ListSubmissionsByOwner(ctx, projectID, actor.UserID, kind.Name)
	}
	if err != nil {
		return nil, err
	}

	orders := make([]int, 0, len(submissions))
	seen := make(map[int]bool, len(submissions))
	for _, submission := range submissions {
		if !seen[submission.StageSortOrder] {
			seen[submission.StageSortOrder] = true
			orders = append(orders, submission.StageSortOrder)
		}
	}
	permsByOrder, err := s.store.ListStagePermissionsByOrders(ctx, kind.StageType, orders)
	if err != nil {
		return nil, err
	}

	views := make([]SubmissionView, 0, len(submissions))
	for _, submission := range submissions {
		views = append(views, viewOf(submission, permsByOrder[submission.StageSortOrder]))
	}
	return views, nil
}

func viewOf(submission store.Submission, permissions []string) SubmissionView {
	if permissions == nil {
		permissions = []string{}
	}
	return SubmissionView{
		ID:          submission.ID,
		Kind:        submission.Kind,
		ProjectID:   submission.ProjectID,
		Title:       submission.Title,
		OwnerID:     submission.OwnerID,
		OwnerName:   submission.OwnerName,
		StageName:   submission.StageName,
		SortOrder:   submission.StageSortOrder,
		UpdatedAt:   submission.UpdatedAt,
		Permissions: permissions,
	}
}

// GetSectionForm returns one section's render-ready field list for a
// submission.
func (s *Service) GetSectionForm(ctx context.Context, submissionID, sectionID string) ([]forms.FieldView, error) {
	if _, err := s.store.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	fields, err := s.store.ListFieldsBySection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListSectionFieldResponses(ctx, submissionID, sectionID)
	if err != nil {
		return nil, err
	}
	return forms.FormModel(fields, responses), nil
}

// SaveSectionForm records the submitted payloads for one section. The write
// mode follows the submission's stage: in AwaitingChanges each still
// unapproved answer gets a fresh history entry and approved answers are left
// alone; in every other stage the latest entry is overwritten in place.
// Fields without an answer row yet get one regardless of mode.
func (s *Service) SaveSectionForm(ctx context.Context, actor Session, submissionID, sectionID string, values map[string]string) ([]forms.FieldView, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.OwnerID != actor.UserID && !rbac.Reviewer(rbac.Normalize(actor.Role)) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner may edit this submission", nil)
	}

	fields, err := s.store.ListFieldsBySection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	fieldByID := make(map[string]store.Field, len(fields))
	for _, field := range fields {
		fieldByID[field.ID] = field
	}

	responses, err := s.store.ListSectionFieldResponses(ctx, submissionID, sectionID)
	if err != nil {
		return nil, err
	}
	responseByField := make(map[string]store.FieldResponse, len(responses))
	for _, response := range responses {
		responseByField[response.FieldID] = response
	}

	appendMode := submission.StageName == StageAwaitingChanges

	for fieldID, payload := range values {
		field, ok := fieldByID[fieldID]
		if !ok || s.structural.Structural(field.InputKind) {
			continue
		}
		if forms.FileKind(field.InputKind) {
			payload, err = s.reconcileFiles(ctx, payload)
			if err != nil {
				return nil, err
			}
		}

		response, ok := responseByField[fieldID]
		if !ok {
			response = store.FieldResponse{
				ID:           util.NewID("rsp"),
				SubmissionID: submissionID,
				FieldID:      fieldID,
			}
			if err := s.store.InsertFieldResponse(ctx, response); err != nil {
				return nil, err
			}
			if err := s.insertValue(ctx, response.ID, payload); err != nil {
				return nil, err
			}
			continue
		}

		if appendMode {
			if response.Approved {
				continue
			}
			if err := s.insertValue(ctx, response.ID, payload); err != nil {
				return nil, err
			}
			continue
		}

		if len(response.Values) == 0 {
			if err := s.insertValue(ctx, response.ID, payload); err != nil {
				return nil, err
			}
			continue
		}
		latest := response.Values[len(response.Values)-1]
		if err := s.store.UpdateResponseValue(ctx, latest.ID, payload); err != nil {
			return nil, err
		}
	}

	return s.GetSectionForm(ctx, submissionID, sectionID)
}

// insertValue appends a new history row. The timestamp is set here so the
// row sorts after everything already on record.
func (s *Service) insertValue(ctx context.Context, responseID, payload string) error {
	return s.store.InsertResponseValue(ctx, store.ResponseValue{
		ID:              util.NewID("val"),
		FieldResponseID: responseID,
		Value:           payload,
		RecordedAt:      time.Now(),
	})
}

// reconcileFiles applies the deletion marks in a file payload against blob
// storage and re-encodes the surviving list.
func (s *Service) reconcileFiles(ctx context.Context, payload string) (string, error) {
	files := forms.ParseFilePayloads(payload)
	if files == nil {
		return payload, nil
	}
	kept := make([]forms.FilePayload, 0, len(files))
	for _, file := range files {
		if file.IsMarkedForDeletion {
			if s.blobs != nil && file.Location != "" {
				if err := s.blobs.Delete(ctx, file.Location); err != nil {
					return "", err
				}
			}
			continue
		}
		file.IsNew = false
		kept = append(kept, file)
	}
	return forms.EncodeFilePayloads(kept), nil
}

// UploadFile stores a blob for later reference from a file field and returns
// its locator. A non-empty replaces locator swaps the old blob out in the
// same call, for image fields whose content changed.
func (s *Service) UploadFile(ctx context.Context, submissionID, filename, replaces string, r io.Reader, size int64, contentType string) (string, error) {
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "BLOB_UNAVAILABLE", "File storage is not configured", nil)
	}
	if _, err := s.store.GetSubmission(ctx, submissionID); err != nil {
		return "", err
	}
	if replaces != "" {
		return s.blobs.Replace(ctx, replaces, submissionID, filename, r, size, contentType)
	}
	return s.blobs.Upload(ctx, submissionID, filename, r, size, contentType)
}

// DownloadFile streams a stored blob.
func (s *Service) DownloadFile(ctx context.Context, locator string) (io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "BLOB_UNAVAILABLE", "File storage is not configured", nil)
	}
	return s.blobs.Get(ctx, locator)
}

// ListSummaries computes the submission's per-section approval and unread
// comment aggregates.
func (s *Service) ListSummaries(ctx context.Context, submissionID string) (SummariesView, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return SummariesView{}, err
	}
	kind, ok := kindByName(submission.Kind)
	if !ok {
		return SummariesView{}, domainError(http.StatusInternalServerError, "UNKNOWN_KIND", "Unknown submission kind", submission.Kind)
	}

	sections, err := s.store.ListSectionsBySectionType(ctx, submission.ProjectID, kind.SectionType)
	if err != nil {
		return SummariesView{}, err
	}
	fields, err := s.store.ListFieldsBySectionType(ctx, submission.ProjectID, kind.SectionType)
	if err != nil {
		return SummariesView{}, err
	}
	responses, err := s.store.ListFieldResponses(ctx, submissionID)
	if err != nil {
		return SummariesView{}, err
	}
	permissions, err := s.store.ListStagePermissions(ctx, kind.StageType, submission.StageSortOrder)
	if err != nil {
		return SummariesView{}, err
	}

	return SummariesView{
		StageName:   submission.StageName,
		SortOrder:   submission.StageSortOrder,
		Permissions: permissions,
		Sections:    forms.Summaries(sections, fields, responses),
	}, nil
}

// ExportSubmission renders the whole submission as a PDF or DOCX document.
// Only trigger-relevant answers appear; structural fields render as layout.
func (s *Service) ExportSubmission(ctx context.Context, submissionID string, format export.Format) (*export.Result, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	kind, ok := kindByName(submission.Kind)
	if !ok {
		return nil, domainError(http.StatusInternalServerError, "UNKNOWN_KIND", "Unknown submission kind", submission.Kind)
	}
	project, err := s.store.GetProject(ctx, submission.ProjectID)
	if err != nil {
		return nil, err
	}

	sections, err := s.store.ListSectionsBySectionType(ctx, submission.ProjectID, kind.SectionType)
	if err != nil {
		return nil, err
	}
	allFields, err := s.store.ListFieldsBySectionType(ctx, submission.ProjectID, kind.SectionType)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListFieldResponses(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	responseByField := make(map[string]store.FieldResponse, len(responses))
	for _, response := range responses {
		responseByField[response.FieldID] = response
	}
	eval := forms.NewEvaluator(allFields, responses)

	doc := export.Submission{
		Title:       submission.Title,
		Kind:        submission.Kind,
		OwnerName:   submission.OwnerName,
		StageName:   submission.StageName,
		ProjectName: project.Name,
		UpdatedAt:   submission.UpdatedAt,
	}
	for _, section := range sections {
		out := export.Section{Name: section.Name}
		for _, field := range allFields {
			if field.SectionID != section.ID || field.Hidden {
				continue
			}
			if s.structural.Structural(field.InputKind) {
				out.Fields = append(out.Fields, export.Field{Name: field.Name, InputKind: field.InputKind})
				continue
			}
			if !eval.Relevant(field.ID) {
				continue
			}
			response := responseByField[field.ID]
			value := forms.ResolveCurrent(response, field)
			out.Fields = append(out.Fields, export.Field{
				Name:      field.Name,
				InputKind: field.InputKind,
				Value:     renderValue(value),
				Options:   field.Options,
				Approved:  response.Approved,
			})
		}
		doc.Sections = append(doc.Sections, out)
	}

	return s.export.Export(doc, format)
}

func renderValue(value forms.Value) string {
	if scalar, ok := value.Scalar(); ok {
		return scalar
	}
	if value.Kind == forms.KindList {
		return strings.Join(value.List, ", ")
	}
	if len(value.Raw) > 0 {
		return string(value.Raw)
	}
	return ""
}
