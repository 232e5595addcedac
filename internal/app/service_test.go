package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"labbook/api/internal/authpw"
	"labbook/api/internal/config"
	"labbook/api/internal/export"
	"labbook/api/internal/forms"
	"labbook/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn    func(context.Context, string) (store.User, error)
	getUserByEmailFn func(context.Context, string) (store.User, error)
	createUserFn     func(context.Context, store.User) error

	getProjectFn   func(context.Context, string) (store.Project, error)
	listProjectsFn func(context.Context) ([]store.Project, error)

	insertStageFn          func(context.Context, store.Stage) error
	setStageNextFn         func(context.Context, string, string) error
	getStageFn             func(context.Context, string, string) (store.Stage, error)
	getStageByIDFn         func(context.Context, string) (store.Stage, error)
	getStageBySortOrderFn  func(context.Context, string, int) (store.Stage, error)
	listStagePermissionsFn func(context.Context, string, int) ([]string, error)
	listPermsByOrdersFn    func(context.Context, string, []int) (map[int][]string, error)

	listSectionsFn            func(context.Context, string, string) ([]store.Section, error)
	getFieldFn                func(context.Context, string) (store.Field, error)
	getFieldByResponseFn      func(context.Context, string) (store.Field, error)
	listFieldsBySectionTypeFn func(context.Context, string, string) ([]store.Field, error)
	listFieldsBySectionFn     func(context.Context, string) ([]store.Field, error)

	insertSubmissionFn       func(context.Context, store.Submission) error
	getSubmissionFn          func(context.Context, string) (store.Submission, error)
	getSubmissionByOwnerFn   func(context.Context, string, string, string) (*store.Submission, error)
	getSubmissionByParentFn  func(context.Context, string) (*store.Submission, error)
	listSubmissionsByOwnerFn func(context.Context, string, string, string) ([]store.Submission, error)
	listSubmissionsByProjFn  func(context.Context, string, string) ([]store.Submission, error)
	updateSubmissionStageFn  func(context.Context, string, string) error

	insertFieldResponseFn       func(context.Context, store.FieldResponse) error
	getFieldResponseFn          func(context.Context, string) (store.FieldResponse, error)
	listFieldResponsesFn        func(context.Context, string) ([]store.FieldResponse, error)
	listSectionFieldResponsesFn func(context.Context, string, string) ([]store.FieldResponse, error)
	insertResponseValueFn       func(context.Context, store.ResponseValue) error
	updateResponseValueFn       func(context.Context, string, string) error
	setResponseApprovedFn       func(context.Context, string, bool) error

	insertCommentFn func(context.Context, store.Comment) error
	getCommentFn    func(context.Context, string) (store.Comment, error)

	insertNotificationFn func(context.Context, store.Notification) error
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) InsertProject(context.Context, store.Project) error { return nil }
func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{ID: projectID, Name: "Project"}, nil
}
func (f *fakeStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) InsertStage(ctx context.Context, stage store.Stage) error {
	if f.insertStageFn != nil {
		return f.insertStageFn(ctx, stage)
	}
	return nil
}
func (f *fakeStore) SetStageNext(ctx context.Context, stageID, nextID string) error {
	if f.setStageNextFn != nil {
		return f.setStageNextFn(ctx, stageID, nextID)
	}
	return nil
}
func (f *fakeStore) GetStage(ctx context.Context, stageType, displayName string) (store.Stage, error) {
	if f.getStageFn != nil {
		return f.getStageFn(ctx, stageType, displayName)
	}
	return store.Stage{}, sql.ErrNoRows
}
func (f *fakeStore) GetStageByID(ctx context.Context, stageID string) (store.Stage, error) {
	if f.getStageByIDFn != nil {
		return f.getStageByIDFn(ctx, stageID)
	}
	return store.Stage{}, sql.ErrNoRows
}
func (f *fakeStore) GetStageBySortOrder(ctx context.Context, stageType string, sortOrder int) (store.Stage, error) {
	if f.getStageBySortOrderFn != nil {
		return f.getStageBySortOrderFn(ctx, stageType, sortOrder)
	}
	return store.Stage{}, sql.ErrNoRows
}
func (f *fakeStore) InsertStagePermission(context.Context, store.StagePermission) error { return nil }
func (f *fakeStore) ListStagePermissions(ctx context.Context, stageType string, sortOrder int) ([]string, error) {
	if f.listStagePermissionsFn != nil {
		return f.listStagePermissionsFn(ctx, stageType, sortOrder)
	}
	return nil, nil
}
func (f *fakeStore) ListStagePermissionsByOrders(ctx context.Context, stageType string, orders []int) (map[int][]string, error) {
	if f.listPermsByOrdersFn != nil {
		return f.listPermsByOrdersFn(ctx, stageType, orders)
	}
	return map[int][]string{}, nil
}

func (f *fakeStore) InsertSection(context.Context, store.Section) error { return nil }
func (f *fakeStore) GetSection(context.Context, string) (store.Section, error) {
	return store.Section{}, sql.ErrNoRows
}
func (f *fakeStore) ListSectionsBySectionType(ctx context.Context, projectID, sectionType string) ([]store.Section, error) {
	if f.listSectionsFn != nil {
		return f.listSectionsFn(ctx, projectID, sectionType)
	}
	return nil, nil
}
func (f *fakeStore) InsertField(context.Context, store.Field) error { return nil }
func (f *fakeStore) GetField(ctx context.Context, fieldID string) (store.Field, error) {
	if f.getFieldFn != nil {
		return f.getFieldFn(ctx, fieldID)
	}
	return store.Field{}, sql.ErrNoRows
}
func (f *fakeStore) GetFieldByResponse(ctx context.Context, responseID string) (store.Field, error) {
	if f.getFieldByResponseFn != nil {
		return f.getFieldByResponseFn(ctx, responseID)
	}
	return store.Field{}, sql.ErrNoRows
}
func (f *fakeStore) ListFieldsBySectionType(ctx context.Context, projectID, sectionType string) ([]store.Field, error) {
	if f.listFieldsBySectionTypeFn != nil {
		return f.listFieldsBySectionTypeFn(ctx, projectID, sectionType)
	}
	return nil, nil
}
func (f *fakeStore) ListFieldsBySection(ctx context.Context, sectionID string) ([]store.Field, error) {
	if f.listFieldsBySectionFn != nil {
		return f.listFieldsBySectionFn(ctx, sectionID)
	}
	return nil, nil
}

func (f *fakeStore) InsertSubmission(ctx context.Context, submission store.Submission) error {
	if f.insertSubmissionFn != nil {
		return f.insertSubmissionFn(ctx, submission)
	}
	return nil
}
func (f *fakeStore) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	if f.getSubmissionFn != nil {
		return f.getSubmissionFn(ctx, submissionID)
	}
	return store.Submission{}, sql.ErrNoRows
}
func (f *fakeStore) GetSubmissionByOwner(ctx context.Context, kind, projectID, ownerID string) (*store.Submission, error) {
	if f.getSubmissionByOwnerFn != nil {
		return f.getSubmissionByOwnerFn(ctx, kind, projectID, ownerID)
	}
	return nil, nil
}
func (f *fakeStore) GetSubmissionByParent(ctx context.Context, parentID string) (*store.Submission, error) {
	if f.getSubmissionByParentFn != nil {
		return f.getSubmissionByParentFn(ctx, parentID)
	}
	return nil, nil
}
func (f *fakeStore) ListSubmissionsByOwner(ctx context.Context, projectID, ownerID, kind string) ([]store.Submission, error) {
	if f.listSubmissionsByOwnerFn != nil {
		return f.listSubmissionsByOwnerFn(ctx, projectID, ownerID, kind)
	}
	return nil, nil
}
func (f *fakeStore) ListSubmissionsByProject(ctx context.Context, projectID, kind string) ([]store.Submission, error) {
	if f.listSubmissionsByProjFn != nil {
		return f.listSubmissionsByProjFn(ctx, projectID, kind)
	}
	return nil, nil
}
func (f *fakeStore) UpdateSubmissionStage(ctx context.Context, submissionID, stageID string) error {
	if f.updateSubmissionStageFn != nil {
		return f.updateSubmissionStageFn(ctx, submissionID, stageID)
	}
	return nil
}

func (f *fakeStore) InsertFieldResponse(ctx context.Context, response store.FieldResponse) error {
	if f.insertFieldResponseFn != nil {
		return f.insertFieldResponseFn(ctx, response)
	}
	return nil
}
func (f *fakeStore) GetFieldResponse(ctx context.Context, responseID string) (store.FieldResponse, error) {
	if f.getFieldResponseFn != nil {
		return f.getFieldResponseFn(ctx, responseID)
	}
	return store.FieldResponse{}, sql.ErrNoRows
}
func (f *fakeStore) ListFieldResponses(ctx context.Context, submissionID string) ([]store.FieldResponse, error) {
	if f.listFieldResponsesFn != nil {
		return f.listFieldResponsesFn(ctx, submissionID)
	}
	return nil, nil
}
func (f *fakeStore) ListSectionFieldResponses(ctx context.Context, submissionID, sectionID string) ([]store.FieldResponse, error) {
	if f.listSectionFieldResponsesFn != nil {
		return f.listSectionFieldResponsesFn(ctx, submissionID, sectionID)
	}
	return nil, nil
}
func (f *fakeStore) InsertResponseValue(ctx context.Context, value store.ResponseValue) error {
	if f.insertResponseValueFn != nil {
		return f.insertResponseValueFn(ctx, value)
	}
	return nil
}
func (f *fakeStore) UpdateResponseValue(ctx context.Context, valueID, newValue string) error {
	if f.updateResponseValueFn != nil {
		return f.updateResponseValueFn(ctx, valueID, newValue)
	}
	return nil
}
func (f *fakeStore) SetFieldResponseApproved(ctx context.Context, responseID string, approved bool) error {
	if f.setResponseApprovedFn != nil {
		return f.setResponseApprovedFn(ctx, responseID, approved)
	}
	return nil
}

func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) ListComments(context.Context, string) ([]store.Comment, error) {
	return nil, nil
}
func (f *fakeStore) UpdateComment(context.Context, string, string) error { return nil }
func (f *fakeStore) MarkCommentRead(context.Context, string) error       { return nil }
func (f *fakeStore) DeleteComment(context.Context, string) error         { return nil }

func (f *fakeStore) InsertNotification(ctx context.Context, notification store.Notification) error {
	if f.insertNotificationFn != nil {
		return f.insertNotificationFn(ctx, notification)
	}
	return nil
}
func (f *fakeStore) ListNotifications(context.Context, string, int) ([]store.Notification, error) {
	return nil, nil
}

func (f *fakeStore) SaveRefreshSession(context.Context, string, store.User, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeBlobs struct {
	uploaded []string
	replaced []string
	deleted  []string
}

func (f *fakeBlobs) Upload(_ context.Context, prefix, name string, _ io.Reader, _ int64, _ string) (string, error) {
	locator := prefix + "/" + name
	f.uploaded = append(f.uploaded, locator)
	return locator, nil
}
func (f *fakeBlobs) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}
func (f *fakeBlobs) Delete(_ context.Context, locator string) error {
	f.deleted = append(f.deleted, locator)
	return nil
}
func (f *fakeBlobs) Replace(_ context.Context, oldLocator, prefix, name string, _ io.Reader, _ int64, _ string) (string, error) {
	f.replaced = append(f.replaced, oldLocator)
	locator := prefix + "/" + name
	f.uploaded = append(f.uploaded, locator)
	return locator, nil
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		TokenSecret:     "test-secret",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		StructuralKinds: []string{"content", "header"},
	}
	return &Service{
		cfg:        cfg,
		store:      fs,
		sessions:   fs,
		authpw:     authpw.NewService(fs),
		export:     export.NewService(),
		structural: forms.NewStructuralSet(cfg.StructuralKinds),
	}
}

func studentSession() Session {
	return Session{UserID: "usr-student", UserName: "Sam", Role: "student"}
}

func instructorSession() Session {
	return Session{UserID: "usr-instructor", UserName: "Prof. Lee", Role: "instructor"}
}

func TestCreateSubmissionReturnsExistingRecord(t *testing.T) {
	existing := store.Submission{
		ID:        "sub-1",
		Kind:      KindReport,
		ProjectID: "prj-1",
		OwnerID:   "usr-student",
		StageName: StageDraft,
	}
	inserted := 0
	fs := &fakeStore{
		getSubmissionByOwnerFn: func(_ context.Context, kind, projectID, ownerID string) (*store.Submission, error) {
			if kind != KindReport || projectID != "prj-1" || ownerID != "usr-student" {
				t.Fatalf("unexpected owner lookup: %s %s %s", kind, projectID, ownerID)
			}
			return &existing, nil
		},
		getSubmissionFn: func(_ context.Context, submissionID string) (store.Submission, error) {
			if submissionID != "sub-1" {
				return store.Submission{}, sql.ErrNoRows
			}
			return existing, nil
		},
		insertSubmissionFn: func(context.Context, store.Submission) error {
			inserted++
			return nil
		},
	}
	svc := newTestService(fs)

	view, err := svc.CreateSubmission(context.Background(), studentSession(), "prj-1", KindReport, "Repeat title")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.ID != "sub-1" {
		t.Fatalf("expected existing submission sub-1, got %s", view.ID)
	}
	if inserted != 0 {
		t.Fatalf("expected no insert for existing submission, got %d", inserted)
	}
}

func TestCreateSubmissionStartsAtInitialStageWithCompanionNote(t *testing.T) {
	stages := map[string]store.Stage{
		KindPlan + "/" + StageDraft:    {ID: "stg-plan-draft", StageType: KindPlan, DisplayName: StageDraft, SortOrder: 1},
		KindNote + "/" + StageInactive: {ID: "stg-note-inactive", StageType: KindNote, DisplayName: StageInactive, SortOrder: 1},
	}
	created := map[string]store.Submission{}
	fs := &fakeStore{
		getStageFn: func(_ context.Context, stageType, displayName string) (store.Stage, error) {
			stage, ok := stages[stageType+"/"+displayName]
			if !ok {
				return store.Stage{}, sql.ErrNoRows
			}
			return stage, nil
		},
		insertSubmissionFn: func(_ context.Context, submission store.Submission) error {
			created[submission.Kind] = submission
			return nil
		},
		getSubmissionFn: func(_ context.Context, submissionID string) (store.Submission, error) {
			for _, submission := range created {
				if submission.ID == submissionID {
					return submission, nil
				}
			}
			return store.Submission{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateSubmission(context.Background(), studentSession(), "prj-1", KindPlan, "Titration plan"); err != nil {
		t.Fatalf("create: %v", err)
	}

	plan, ok := created[KindPlan]
	if !ok {
		t.Fatalf("expected plan submission")
	}
	if plan.StageID != "stg-plan-draft" {
		t.Fatalf("expected plan at draft stage, got %s", plan.StageID)
	}
	note, ok := created[KindNote]
	if !ok {
		t.Fatalf("expected companion note submission")
	}
	if note.StageID != "stg-note-inactive" {
		t.Fatalf("expected note at inactive stage, got %s", note.StageID)
	}
	if note.ParentID == nil || *note.ParentID != plan.ID {
		t.Fatalf("expected note linked to plan %s, got %v", plan.ID, note.ParentID)
	}
}

func TestCreateSubmissionBackfillsMissingResponsesWithDefaults(t *testing.T) {
	existing := store.Submission{
		ID:        "sub-1",
		Kind:      KindReport,
		ProjectID: "prj-1",
		OwnerID:   "usr-student",
	}
	var responses []store.FieldResponse
	var values []store.ResponseValue
	fs := &fakeStore{
		getSubmissionByOwnerFn: func(context.Context, string, string, string) (*store.Submission, error) {
			return &existing, nil
		},
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return existing, nil
		},
		listFieldsBySectionTypeFn: func(context.Context, string, string) ([]store.Field, error) {
			return []store.Field{
				{ID: "fld-header", InputKind: "header", DefaultValue: `""`},
				{ID: "fld-answered", InputKind: "text", DefaultValue: `""`},
				{ID: "fld-new", InputKind: "number", DefaultValue: `0`},
			}, nil
		},
		listFieldResponsesFn: func(context.Context, string) ([]store.FieldResponse, error) {
			return []store.FieldResponse{{ID: "rsp-1", FieldID: "fld-answered"}}, nil
		},
		insertFieldResponseFn: func(_ context.Context, response store.FieldResponse) error {
			responses = append(responses, response)
			return nil
		},
		insertResponseValueFn: func(_ context.Context, value store.ResponseValue) error {
			values = append(values, value)
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateSubmission(context.Background(), studentSession(), "prj-1", KindReport, "Results"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(responses) != 1 {
		t.Fatalf("expected one backfilled response, got %d", len(responses))
	}
	if responses[0].FieldID != "fld-new" {
		t.Fatalf("expected backfill for fld-new, got %s", responses[0].FieldID)
	}
	if len(values) != 1 || values[0].Value != `0` {
		t.Fatalf("expected one seeded default value, got %+v", values)
	}
	if values[0].RecordedAt.IsZero() {
		t.Fatal("expected seeded value recorded-at set")
	}
}

func draftSaveFixture(stageName string) (*fakeStore, *[]store.ResponseValue, *[]string) {
	inserted := &[]store.ResponseValue{}
	updated := &[]string{}
	fs := &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{
				ID:        "sub-1",
				Kind:      KindPlan,
				ProjectID: "prj-1",
				OwnerID:   "usr-student",
				StageName: stageName,
			}, nil
		},
		listFieldsBySectionFn: func(context.Context, string) ([]store.Field, error) {
			return []store.Field{
				{ID: "fld-1", SectionID: "sec-1", InputKind: "text", DefaultValue: `""`},
				{ID: "fld-2", SectionID: "sec-1", InputKind: "text", DefaultValue: `""`},
			}, nil
		},
		listSectionFieldResponsesFn: func(context.Context, string, string) ([]store.FieldResponse, error) {
			return []store.FieldResponse{
				{
					ID: "rsp-1", FieldID: "fld-1",
					Values: []store.ResponseValue{
						{ID: "val-old", Value: `"first"`, RecordedAt: time.Now().Add(-2 * time.Hour)},
						{ID: "val-latest", Value: `"second"`, RecordedAt: time.Now().Add(-time.Hour)},
					},
				},
				{
					ID: "rsp-2", FieldID: "fld-2", Approved: true,
					Values: []store.ResponseValue{{ID: "val-approved", Value: `"locked"`, RecordedAt: time.Now().Add(-time.Hour)}},
				},
			}, nil
		},
		insertResponseValueFn: func(_ context.Context, value store.ResponseValue) error {
			*inserted = append(*inserted, value)
			return nil
		},
		updateResponseValueFn: func(_ context.Context, valueID, _ string) error {
			*updated = append(*updated, valueID)
			return nil
		},
	}
	return fs, inserted, updated
}

func TestSaveSectionFormOverwritesLatestValueInDraft(t *testing.T) {
	fs, inserted, updated := draftSaveFixture(StageDraft)
	svc := newTestService(fs)

	_, err := svc.SaveSectionForm(context.Background(), studentSession(), "sub-1", "sec-1",
		map[string]string{"fld-1": `"revised"`})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(*inserted) != 0 {
		t.Fatalf("expected no history growth in draft, got %d inserts", len(*inserted))
	}
	if len(*updated) != 1 || (*updated)[0] != "val-latest" {
		t.Fatalf("expected latest value val-latest overwritten, got %v", *updated)
	}
}

func TestSaveSectionFormAppendsHistoryInAwaitingChanges(t *testing.T) {
	fs, inserted, updated := draftSaveFixture(StageAwaitingChanges)
	svc := newTestService(fs)

	_, err := svc.SaveSectionForm(context.Background(), studentSession(), "sub-1", "sec-1",
		map[string]string{"fld-1": `"revised"`})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(*updated) != 0 {
		t.Fatalf("expected no in-place update in awaiting changes, got %v", *updated)
	}
	if len(*inserted) != 1 || (*inserted)[0].Value != `"revised"` {
		t.Fatalf("expected one appended history entry, got %+v", *inserted)
	}
	if (*inserted)[0].FieldResponseID != "rsp-1" {
		t.Fatalf("expected append on rsp-1, got %s", (*inserted)[0].FieldResponseID)
	}
	if !(*inserted)[0].RecordedAt.After(time.Now().Add(-time.Hour)) {
		t.Fatalf("expected appended entry recorded after val-latest, got %v", (*inserted)[0].RecordedAt)
	}
}

func TestSaveSectionFormSkipsApprovedAnswersInAwaitingChanges(t *testing.T) {
	fs, inserted, updated := draftSaveFixture(StageAwaitingChanges)
	svc := newTestService(fs)

	_, err := svc.SaveSectionForm(context.Background(), studentSession(), "sub-1", "sec-1",
		map[string]string{"fld-2": `"tampered"`})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(*inserted) != 0 || len(*updated) != 0 {
		t.Fatalf("expected approved answer untouched, got inserts=%v updates=%v", *inserted, *updated)
	}
}

func TestSaveSectionFormRejectsNonOwner(t *testing.T) {
	fs, _, _ := draftSaveFixture(StageDraft)
	svc := newTestService(fs)

	_, err := svc.SaveSectionForm(context.Background(), Session{UserID: "usr-other", Role: "student"}, "sub-1", "sec-1",
		map[string]string{"fld-1": `"revised"`})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func commentFixture() *fakeStore {
	comments := map[string]store.Comment{}
	fs := &fakeStore{
		getFieldResponseFn: func(context.Context, string) (store.FieldResponse, error) {
			return store.FieldResponse{ID: "rsp-1", SubmissionID: "sub-1", FieldID: "fld-1"}, nil
		},
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{ID: "sub-1", OwnerID: "usr-student"}, nil
		},
		insertCommentFn: func(_ context.Context, comment store.Comment) error {
			comments[comment.ID] = comment
			return nil
		},
	}
	fs.getCommentFn = func(_ context.Context, commentID string) (store.Comment, error) {
		comment, ok := comments[commentID]
		if !ok {
			return store.Comment{}, sql.ErrNoRows
		}
		return comment, nil
	}
	return fs
}

func TestReviewerCommentWithdrawsApproval(t *testing.T) {
	fs := commentFixture()
	var approvedSet *bool
	fs.setResponseApprovedFn = func(_ context.Context, responseID string, approved bool) error {
		if responseID != "rsp-1" {
			t.Fatalf("unexpected response %s", responseID)
		}
		approvedSet = &approved
		return nil
	}
	svc := newTestService(fs)

	if _, err := svc.AddComment(context.Background(), instructorSession(), "rsp-1", "Please cite a source"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if approvedSet == nil || *approvedSet {
		t.Fatalf("expected reviewer comment to set approved=false, got %v", approvedSet)
	}
}

func TestStudentCommentRestoresApproval(t *testing.T) {
	fs := commentFixture()
	var approvedSet *bool
	fs.setResponseApprovedFn = func(_ context.Context, _ string, approved bool) error {
		approvedSet = &approved
		return nil
	}
	svc := newTestService(fs)

	if _, err := svc.AddComment(context.Background(), studentSession(), "rsp-1", "Added the citation"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if approvedSet == nil || !*approvedSet {
		t.Fatalf("expected student comment to set approved=true, got %v", approvedSet)
	}
}

func TestAddCommentPersistsAuthorAndTimestamp(t *testing.T) {
	fs := commentFixture()
	var saved *store.Comment
	insert := fs.insertCommentFn
	fs.insertCommentFn = func(ctx context.Context, comment store.Comment) error {
		saved = &comment
		return insert(ctx, comment)
	}
	svc := newTestService(fs)

	before := time.Now()
	if _, err := svc.AddComment(context.Background(), instructorSession(), "rsp-1", "Please cite a source"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if saved == nil {
		t.Fatal("expected comment insert")
	}
	if saved.AuthorName != "Prof. Lee" || saved.AuthorRole != "instructor" {
		t.Fatalf("expected author carried through, got name=%q role=%q", saved.AuthorName, saved.AuthorRole)
	}
	if saved.CreatedAt.Before(before) {
		t.Fatalf("expected created-at set at insert time, got %v", saved.CreatedAt)
	}
}

func TestAddCommentNotificationNamesField(t *testing.T) {
	fs := commentFixture()
	fs.getFieldFn = func(_ context.Context, fieldID string) (store.Field, error) {
		if fieldID != "fld-1" {
			t.Fatalf("unexpected field lookup %s", fieldID)
		}
		return store.Field{ID: "fld-1", Name: "Hazard mitigation"}, nil
	}
	var notified *store.Notification
	fs.insertNotificationFn = func(_ context.Context, notification store.Notification) error {
		notified = &notification
		return nil
	}
	svc := newTestService(fs)

	if _, err := svc.AddComment(context.Background(), instructorSession(), "rsp-1", "Add gloves to the list"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if notified == nil {
		t.Fatal("expected owner notification")
	}
	if !strings.Contains(notified.Body, `"Hazard mitigation"`) {
		t.Fatalf("expected notification to name the field, got %q", notified.Body)
	}
	if notified.CreatedAt.IsZero() {
		t.Fatal("expected notification created-at set")
	}
}

func advanceFixture(current store.Stage) *fakeStore {
	return &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{
				ID:        "sub-1",
				Kind:      KindPlan,
				ProjectID: "prj-1",
				OwnerID:   "usr-student",
				StageID:   current.ID,
				StageName: current.DisplayName,
			}, nil
		},
		getStageByIDFn: func(_ context.Context, stageID string) (store.Stage, error) {
			if stageID == current.ID {
				return current, nil
			}
			return store.Stage{}, sql.ErrNoRows
		},
	}
}

func TestAdvanceStageUnknownExplicitNameIsConfigError(t *testing.T) {
	fs := advanceFixture(store.Stage{ID: "stg-draft", StageType: KindPlan, DisplayName: StageDraft, SortOrder: 1})
	svc := newTestService(fs)

	_, err := svc.AdvanceStage(context.Background(), "sub-1", "NoSuchStage", instructorSession())

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Status != http.StatusInternalServerError || domainErr.Code != "STAGE_CONFIG" {
		t.Fatalf("expected STAGE_CONFIG 500, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestAdvanceStagePrefersNextPointerOverSortOrder(t *testing.T) {
	awaiting := store.Stage{ID: "stg-awaiting", StageType: KindPlan, DisplayName: StageAwaitingChanges, SortOrder: 5}
	current := store.Stage{ID: "stg-review", StageType: KindPlan, DisplayName: StageInReview, SortOrder: 2, NextStageID: &awaiting.ID}
	fs := advanceFixture(current)
	fs.getStageByIDFn = func(_ context.Context, stageID string) (store.Stage, error) {
		switch stageID {
		case current.ID:
			return current, nil
		case awaiting.ID:
			return awaiting, nil
		}
		return store.Stage{}, sql.ErrNoRows
	}
	fs.getStageBySortOrderFn = func(context.Context, string, int) (store.Stage, error) {
		t.Fatal("sort-order lookup must not run when a next pointer exists")
		return store.Stage{}, nil
	}
	var movedTo string
	fs.updateSubmissionStageFn = func(_ context.Context, _, stageID string) error {
		movedTo = stageID
		return nil
	}
	svc := newTestService(fs)

	result, err := svc.AdvanceStage(context.Background(), "sub-1", "", instructorSession())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if movedTo != awaiting.ID {
		t.Fatalf("expected move to %s, got %s", awaiting.ID, movedTo)
	}
	if result == nil || result.StageName != StageAwaitingChanges {
		t.Fatalf("expected AwaitingChanges result, got %+v", result)
	}
}

func TestAdvanceStageFallsBackToSortOrderSuccessor(t *testing.T) {
	current := store.Stage{ID: "stg-draft", StageType: KindPlan, DisplayName: StageDraft, SortOrder: 1}
	fs := advanceFixture(current)
	fs.getStageBySortOrderFn = func(_ context.Context, stageType string, sortOrder int) (store.Stage, error) {
		if stageType != KindPlan || sortOrder != 2 {
			t.Fatalf("unexpected sort-order lookup %s/%d", stageType, sortOrder)
		}
		return store.Stage{ID: "stg-review", StageType: KindPlan, DisplayName: StageInReview, SortOrder: 2}, nil
	}
	svc := newTestService(fs)

	result, err := svc.AdvanceStage(context.Background(), "sub-1", "", instructorSession())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result == nil || result.StageName != StageInReview {
		t.Fatalf("expected InReview, got %+v", result)
	}
}

func TestAdvanceStageTerminalReturnsNilResult(t *testing.T) {
	current := store.Stage{ID: "stg-approved", StageType: KindPlan, DisplayName: StageApproved, SortOrder: 10}
	fs := advanceFixture(current)
	var moved bool
	fs.updateSubmissionStageFn = func(context.Context, string, string) error {
		moved = true
		return nil
	}
	svc := newTestService(fs)

	result, err := svc.AdvanceStage(context.Background(), "sub-1", "", instructorSession())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result at terminal stage, got %+v", result)
	}
	if moved {
		t.Fatal("expected no stage update at terminal stage")
	}
}

func TestApprovingPlanActivatesCompanionNote(t *testing.T) {
	approved := store.Stage{ID: "stg-approved", StageType: KindPlan, DisplayName: StageApproved, SortOrder: 10}
	current := store.Stage{ID: "stg-awaiting", StageType: KindPlan, DisplayName: StageAwaitingChanges, SortOrder: 5}
	noteInactive := store.Stage{ID: "stg-note-inactive", StageType: KindNote, DisplayName: StageInactive, SortOrder: 1}
	noteInProgress := store.Stage{ID: "stg-note-progress", StageType: KindNote, DisplayName: StageInProgress, SortOrder: 2}

	note := store.Submission{ID: "sub-note", Kind: KindNote, ProjectID: "prj-1", OwnerID: "usr-student", StageID: noteInactive.ID}
	moves := map[string]string{}
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, submissionID string) (store.Submission, error) {
			if submissionID == "sub-note" {
				return note, nil
			}
			return store.Submission{
				ID: "sub-plan", Kind: KindPlan, ProjectID: "prj-1", OwnerID: "usr-student", StageID: current.ID,
			}, nil
		},
		getStageByIDFn: func(_ context.Context, stageID string) (store.Stage, error) {
			for _, stage := range []store.Stage{approved, current, noteInactive, noteInProgress} {
				if stage.ID == stageID {
					return stage, nil
				}
			}
			return store.Stage{}, sql.ErrNoRows
		},
		getStageFn: func(_ context.Context, stageType, displayName string) (store.Stage, error) {
			switch {
			case stageType == KindPlan && displayName == StageApproved:
				return approved, nil
			case stageType == KindNote && displayName == StageInProgress:
				return noteInProgress, nil
			}
			return store.Stage{}, sql.ErrNoRows
		},
		getSubmissionByParentFn: func(_ context.Context, parentID string) (*store.Submission, error) {
			if parentID == "sub-plan" {
				return &note, nil
			}
			return nil, nil
		},
		updateSubmissionStageFn: func(_ context.Context, submissionID, stageID string) error {
			moves[submissionID] = stageID
			return nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.AdvanceStage(context.Background(), "sub-plan", StageApproved, instructorSession())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result == nil || result.StageName != StageApproved {
		t.Fatalf("expected Approved result, got %+v", result)
	}
	if moves["sub-plan"] != approved.ID {
		t.Fatalf("expected plan moved to approved, got %s", moves["sub-plan"])
	}
	if moves["sub-note"] != noteInProgress.ID {
		t.Fatalf("expected note moved to in progress, got %s", moves["sub-note"])
	}
}

func TestAdvanceStageNotifiesOwnerOnReviewerMove(t *testing.T) {
	current := store.Stage{ID: "stg-draft", StageType: KindPlan, DisplayName: StageDraft, SortOrder: 1}
	fs := advanceFixture(current)
	fs.getStageBySortOrderFn = func(context.Context, string, int) (store.Stage, error) {
		return store.Stage{ID: "stg-review", StageType: KindPlan, DisplayName: StageInReview, SortOrder: 2}, nil
	}
	var notified *store.Notification
	fs.insertNotificationFn = func(_ context.Context, notification store.Notification) error {
		notified = &notification
		return nil
	}
	svc := newTestService(fs)

	if _, err := svc.AdvanceStage(context.Background(), "sub-1", "", instructorSession()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if notified == nil || notified.RecipientID != "usr-student" {
		t.Fatalf("expected owner notification, got %+v", notified)
	}
	if notified.CreatedAt.IsZero() {
		t.Fatal("expected notification created-at set")
	}
}

func TestListSummariesReportsStageAndSectionState(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{
				ID: "sub-1", Kind: KindPlan, ProjectID: "prj-1",
				StageName: StageInReview, StageSortOrder: 2,
			}, nil
		},
		listSectionsFn: func(context.Context, string, string) ([]store.Section, error) {
			return []store.Section{{ID: "sec-1", Name: "Setup", SortOrder: 1}}, nil
		},
		listFieldsBySectionTypeFn: func(context.Context, string, string) ([]store.Field, error) {
			return []store.Field{{ID: "fld-1", SectionID: "sec-1", InputKind: "text"}}, nil
		},
		listFieldResponsesFn: func(context.Context, string) ([]store.FieldResponse, error) {
			return []store.FieldResponse{{ID: "rsp-1", FieldID: "fld-1", Approved: true, UnreadCount: 3}}, nil
		},
		listStagePermissionsFn: func(_ context.Context, stageType string, sortOrder int) ([]string, error) {
			if stageType != KindPlan || sortOrder != 2 {
				t.Fatalf("unexpected permission lookup %s/%d", stageType, sortOrder)
			}
			return []string{"review"}, nil
		},
	}
	svc := newTestService(fs)

	view, err := svc.ListSummaries(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if view.StageName != StageInReview || len(view.Permissions) != 1 || view.Permissions[0] != "review" {
		t.Fatalf("unexpected stage state: %+v", view)
	}
	if len(view.Sections) != 1 || !view.Sections[0].Approved || view.Sections[0].CommentCount != 3 {
		t.Fatalf("unexpected section summary: %+v", view.Sections)
	}
}

func TestSaveSectionFormDeletesMarkedFilesFromBlobStore(t *testing.T) {
	var saved []string
	fs := &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{ID: "sub-1", Kind: KindPlan, OwnerID: "usr-student", StageName: StageDraft}, nil
		},
		listFieldsBySectionFn: func(context.Context, string) ([]store.Field, error) {
			return []store.Field{{ID: "fld-photo", SectionID: "sec-1", InputKind: "image-file", DefaultValue: `[]`}}, nil
		},
		listSectionFieldResponsesFn: func(context.Context, string, string) ([]store.FieldResponse, error) {
			return []store.FieldResponse{{
				ID: "rsp-1", FieldID: "fld-photo",
				Values: []store.ResponseValue{{ID: "val-1", Value: `[]`}},
			}}, nil
		},
		updateResponseValueFn: func(_ context.Context, _, newValue string) error {
			saved = append(saved, newValue)
			return nil
		},
	}
	blobs := &fakeBlobs{}
	svc := newTestService(fs)
	svc.blobs = blobs

	payload := `[{"name":"old.png","location":"sub-1/blob-old/old.png","isMarkedForDeletion":true},` +
		`{"name":"keep.png","location":"sub-1/blob-keep/keep.png","isNew":true}]`
	_, err := svc.SaveSectionForm(context.Background(), studentSession(), "sub-1", "sec-1",
		map[string]string{"fld-photo": payload})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(blobs.deleted) != 1 || blobs.deleted[0] != "sub-1/blob-old/old.png" {
		t.Fatalf("expected marked blob deleted, got %v", blobs.deleted)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one stored payload, got %v", saved)
	}
	kept := forms.ParseFilePayloads(saved[0])
	if len(kept) != 1 || kept[0].Name != "keep.png" || kept[0].IsNew {
		t.Fatalf("expected surviving file with isNew cleared, got %+v", kept)
	}
}

func TestUploadFileReplacesOldBlob(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{ID: "sub-1"}, nil
		},
	}
	blobs := &fakeBlobs{}
	svc := newTestService(fs)
	svc.blobs = blobs

	locator, err := svc.UploadFile(context.Background(), "sub-1", "new.png", "sub-1/blob-old/old.png",
		bytes.NewBufferString("png bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if locator != "sub-1/new.png" {
		t.Fatalf("unexpected locator %s", locator)
	}
	if len(blobs.replaced) != 1 || blobs.replaced[0] != "sub-1/blob-old/old.png" {
		t.Fatalf("expected old blob replaced, got %v", blobs.replaced)
	}
}

func TestListSubmissionsScopesStudentsToTheirOwn(t *testing.T) {
	ownerCalls, projectCalls := 0, 0
	fs := &fakeStore{
		listSubmissionsByOwnerFn: func(context.Context, string, string, string) ([]store.Submission, error) {
			ownerCalls++
			return nil, nil
		},
		listSubmissionsByProjFn: func(context.Context, string, string) ([]store.Submission, error) {
			projectCalls++
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.ListSubmissions(context.Background(), studentSession(), "prj-1", KindPlan); err != nil {
		t.Fatalf("student list: %v", err)
	}
	if _, err := svc.ListSubmissions(context.Background(), instructorSession(), "prj-1", KindPlan); err != nil {
		t.Fatalf("instructor list: %v", err)
	}
	if ownerCalls != 1 || projectCalls != 1 {
		t.Fatalf("expected one owner-scoped and one project-scoped list, got %d/%d", ownerCalls, projectCalls)
	}
}
