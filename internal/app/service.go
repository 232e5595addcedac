package app

import (
	"context"
	"io"
	"time"

	"labbook/api/internal/auth"
	"labbook/api/internal/authpw"
	"labbook/api/internal/blob"
	"labbook/api/internal/config"
	"labbook/api/internal/export"
	"labbook/api/internal/forms"
	"labbook/api/internal/rbac"
	"labbook/api/internal/search"
	"labbook/api/internal/store"
	"labbook/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context) ([]store.Project, error)

	InsertStage(context.Context, store.Stage) error
	SetStageNext(context.Context, string, string) error
	GetStage(context.Context, string, string) (store.Stage, error)
	GetStageByID(context.Context, string) (store.Stage, error)
	GetStageBySortOrder(context.Context, string, int) (store.Stage, error)
	InsertStagePermission(context.Context, store.StagePermission) error
	ListStagePermissions(context.Context, string, int) ([]string, error)
	ListStagePermissionsByOrders(context.Context, string, []int) (map[int][]string, error)

	InsertSection(context.Context, store.Section) error
	GetSection(context.Context, string) (store.Section, error)
	ListSectionsBySectionType(context.Context, string, string) ([]store.Section, error)
	InsertField(context.Context, store.Field) error
	GetField(context.Context, string) (store.Field, error)
	GetFieldByResponse(context.Context, string) (store.Field, error)
	ListFieldsBySectionType(context.Context, string, string) ([]store.Field, error)
	ListFieldsBySection(context.Context, string) ([]store.Field, error)

	InsertSubmission(context.Context, store.Submission) error
	GetSubmission(context.Context, string) (store.Submission, error)
	GetSubmissionByOwner(context.Context, string, string, string) (*store.Submission, error)
	GetSubmissionByParent(context.Context, string) (*store.Submission, error)
	ListSubmissionsByOwner(context.Context, string, string, string) ([]store.Submission, error)
	ListSubmissionsByProject(context.Context, string, string) ([]store.Submission, error)
	UpdateSubmissionStage(context.Context, string, string) error

	InsertFieldResponse(context.Context, store.FieldResponse) error
	GetFieldResponse(context.Context, string) (store.FieldResponse, error)
	ListFieldResponses(context.Context, string) ([]store.FieldResponse, error)
	ListSectionFieldResponses(context.Context, string, string) ([]store.FieldResponse, error)
	InsertResponseValue(context.Context, store.ResponseValue) error
	UpdateResponseValue(context.Context, string, string) error
	SetFieldResponseApproved(context.Context, string, bool) error

	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	UpdateComment(context.Context, string, string) error
	MarkCommentRead(context.Context, string) error
	DeleteComment(context.Context, string) error

	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)

	Ping(ctx context.Context) error
}

// sessionStore keeps refresh tokens. Backed by Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type blobStore interface {
	Upload(ctx context.Context, prefix, name string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
	Replace(ctx context.Context, oldLocator, prefix, name string, r io.Reader, size int64, contentType string) (string, error)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	authpw     *authpw.Service
	blobs      blobStore
	search     *search.Service
	export     *export.Service
	structural forms.StructuralSet
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, blobs *blob.Store, searchSvc *search.Service) *Service {
	svc := &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   sessions,
		search:     searchSvc,
		export:     export.NewService(),
		structural: forms.NewStructuralSet(cfg.StructuralKinds),
	}
	svc.authpw = authpw.NewService(dataStore)
	if svc.sessions == nil {
		svc.sessions = dataStore
	}
	if blobs != nil {
		svc.blobs = blobs
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SearchService() *search.Service {
	return s.search
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) ListNotifications(ctx context.Context, session Session, limit int) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, session.UserID, limit)
}
