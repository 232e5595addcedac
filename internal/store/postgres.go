package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, LOWER($3), $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role FROM users WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ---- refresh sessions / token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- projects ----

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, project.ID, project.Name)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id=$1
	`, projectID).Scan(&project.ID, &project.Name, &project.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ---- stages ----

func (s *PostgresStore) InsertStage(ctx context.Context, stage Stage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (id, stage_type, display_name, sort_order, next_stage_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, stage.ID, stage.StageType, stage.DisplayName, stage.SortOrder, stage.NextStageID)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetStageNext(ctx context.Context, stageID, nextStageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stages SET next_stage_id=$2 WHERE id=$1`, stageID, nextStageID)
	if err != nil {
		return fmt.Errorf("set next stage: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStage(ctx context.Context, stageType, displayName string) (Stage, error) {
	return s.scanStage(s.db.QueryRowContext(ctx, `
		SELECT id, stage_type, display_name, sort_order, next_stage_id
		FROM stages WHERE stage_type=$1 AND display_name=$2
	`, stageType, displayName))
}

func (s *PostgresStore) GetStageByID(ctx context.Context, stageID string) (Stage, error) {
	return s.scanStage(s.db.QueryRowContext(ctx, `
		SELECT id, stage_type, display_name, sort_order, next_stage_id
		FROM stages WHERE id=$1
	`, stageID))
}

func (s *PostgresStore) GetStageBySortOrder(ctx context.Context, stageType string, sortOrder int) (Stage, error) {
	return s.scanStage(s.db.QueryRowContext(ctx, `
		SELECT id, stage_type, display_name, sort_order, next_stage_id
		FROM stages WHERE stage_type=$1 AND sort_order=$2
	`, stageType, sortOrder))
}

func (s *PostgresStore) scanStage(row *sql.Row) (Stage, error) {
	var stage Stage
	err := row.Scan(&stage.ID, &stage.StageType, &stage.DisplayName, &stage.SortOrder, &stage.NextStageID)
	if err != nil {
		return Stage{}, err
	}
	return stage, nil
}

func (s *PostgresStore) InsertStagePermission(ctx context.Context, permission StagePermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_permissions (id, stage_type, permission_key, min_sort_order, max_sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, permission.ID, permission.StageType, permission.Key, permission.MinSortOrder, permission.MaxSortOrder)
	if err != nil {
		return fmt.Errorf("insert stage permission: %w", err)
	}
	return nil
}

// ListStagePermissions returns the permission keys active at the given sort
// order: the union of all rows whose inclusive range contains it.
func (s *PostgresStore) ListStagePermissions(ctx context.Context, stageType string, sortOrder int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission_key FROM stage_permissions
		WHERE stage_type=$1 AND min_sort_order <= $2 AND max_sort_order >= $2
		ORDER BY permission_key
	`, stageType, sortOrder)
	if err != nil {
		return nil, fmt.Errorf("list stage permissions: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan stage permission: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListStagePermissionsByOrders resolves permission sets for several stages at
// once, keyed by sort order. Used by submission list views.
func (s *PostgresStore) ListStagePermissionsByOrders(ctx context.Context, stageType string, sortOrders []int) (map[int][]string, error) {
	if len(sortOrders) == 0 {
		return map[int][]string{}, nil
	}
	orders := make([]int64, len(sortOrders))
	for i, so := range sortOrders {
		orders[i] = int64(so)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.sort_order, sp.permission_key
		FROM unnest($2::bigint[]) AS o(sort_order)
		JOIN stage_permissions sp
			ON sp.stage_type=$1 AND sp.min_sort_order <= o.sort_order AND sp.max_sort_order >= o.sort_order
		ORDER BY o.sort_order, sp.permission_key
	`, stageType, orders)
	if err != nil {
		return nil, fmt.Errorf("list stage permissions by orders: %w", err)
	}
	defer rows.Close()

	result := make(map[int][]string)
	for rows.Next() {
		var sortOrder int
		var key string
		if err := rows.Scan(&sortOrder, &key); err != nil {
			return nil, fmt.Errorf("scan stage permission: %w", err)
		}
		result[sortOrder] = append(result[sortOrder], key)
	}
	return result, rows.Err()
}

// ---- sections and fields ----

func (s *PostgresStore) InsertSection(ctx context.Context, section Section) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, project_id, section_type, name, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, section.ID, section.ProjectID, section.SectionType, section.Name, section.SortOrder)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (Section, error) {
	var section Section
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, section_type, name, sort_order FROM sections WHERE id=$1
	`, sectionID).Scan(&section.ID, &section.ProjectID, &section.SectionType, &section.Name, &section.SortOrder)
	if err != nil {
		return Section{}, err
	}
	return section, nil
}

func (s *PostgresStore) ListSectionsBySectionType(ctx context.Context, projectID, sectionType string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, section_type, name, sort_order
		FROM sections
		WHERE project_id=$1 AND section_type=$2
		ORDER BY sort_order
	`, projectID, sectionType)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		var item Section
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.SectionType, &item.Name, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertField(ctx context.Context, field Field) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fields (id, section_id, name, sort_order, input_kind, mandatory, hidden, default_value, trigger_cause, trigger_target_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, field.ID, field.SectionID, field.Name, field.SortOrder, field.InputKind,
		field.Mandatory, field.Hidden, field.DefaultValue, field.TriggerCause, field.TriggerTargetID)
	if err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	for _, option := range field.Options {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO field_options (field_id, name) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, field.ID, option); err != nil {
			return fmt.Errorf("insert field option: %w", err)
		}
	}
	return nil
}

const fieldColumns = `
	f.id, f.section_id, f.name, f.sort_order, f.input_kind, f.mandatory, f.hidden,
	f.default_value, f.trigger_cause, f.trigger_target_id, sec.name, sec.sort_order
`

func (s *PostgresStore) GetField(ctx context.Context, fieldID string) (Field, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fieldColumns+`
		FROM fields f
		JOIN sections sec ON sec.id = f.section_id
		WHERE f.id=$1
	`, fieldID)
	field, err := scanField(row)
	if err != nil {
		return Field{}, err
	}
	if err := s.loadFieldOptions(ctx, []*Field{&field}); err != nil {
		return Field{}, err
	}
	return field, nil
}

// GetFieldByResponse resolves the schema field a response answers.
func (s *PostgresStore) GetFieldByResponse(ctx context.Context, responseID string) (Field, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fieldColumns+`
		FROM field_responses fr
		JOIN fields f ON f.id = fr.field_id
		JOIN sections sec ON sec.id = f.section_id
		WHERE fr.id=$1
	`, responseID)
	field, err := scanField(row)
	if err != nil {
		return Field{}, err
	}
	if err := s.loadFieldOptions(ctx, []*Field{&field}); err != nil {
		return Field{}, err
	}
	return field, nil
}

// ListFieldsBySectionType returns a section type's fields ordered by section
// sort order, then field sort order.
func (s *PostgresStore) ListFieldsBySectionType(ctx context.Context, projectID, sectionType string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fieldColumns+`
		FROM fields f
		JOIN sections sec ON sec.id = f.section_id
		WHERE sec.project_id=$1 AND sec.section_type=$2
		ORDER BY sec.sort_order, f.sort_order
	`, projectID, sectionType)
	if err != nil {
		return nil, fmt.Errorf("list fields by section type: %w", err)
	}
	return s.collectFields(ctx, rows)
}

func (s *PostgresStore) ListFieldsBySection(ctx context.Context, sectionID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fieldColumns+`
		FROM fields f
		JOIN sections sec ON sec.id = f.section_id
		WHERE f.section_id=$1
		ORDER BY f.sort_order
	`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list fields by section: %w", err)
	}
	return s.collectFields(ctx, rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanField(row rowScanner) (Field, error) {
	var field Field
	err := row.Scan(&field.ID, &field.SectionID, &field.Name, &field.SortOrder, &field.InputKind,
		&field.Mandatory, &field.Hidden, &field.DefaultValue, &field.TriggerCause, &field.TriggerTargetID,
		&field.SectionName, &field.SectionSortOrder)
	if err != nil {
		return Field{}, err
	}
	return field, nil
}

func (s *PostgresStore) collectFields(ctx context.Context, rows *sql.Rows) ([]Field, error) {
	defer rows.Close()
	items := make([]Field, 0)
	for rows.Next() {
		field, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		items = append(items, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}

	refs := make([]*Field, len(items))
	for i := range items {
		refs[i] = &items[i]
	}
	if err := s.loadFieldOptions(ctx, refs); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) loadFieldOptions(ctx context.Context, fields []*Field) error {
	if len(fields) == 0 {
		return nil
	}
	ids := make([]string, len(fields))
	byID := make(map[string]*Field, len(fields))
	for i, field := range fields {
		ids[i] = field.ID
		byID[field.ID] = field
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, name FROM field_options
		WHERE field_id = ANY($1)
		ORDER BY field_id, name
	`, ids)
	if err != nil {
		return fmt.Errorf("list field options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fieldID, name string
		if err := rows.Scan(&fieldID, &name); err != nil {
			return fmt.Errorf("scan field option: %w", err)
		}
		if field, ok := byID[fieldID]; ok {
			field.Options = append(field.Options, name)
		}
	}
	return rows.Err()
}

// ---- submissions ----

const submissionColumns = `
	sub.id, sub.kind, sub.project_id, sub.owner_id, sub.title, sub.stage_id, sub.parent_id,
	sub.created_at, sub.updated_at, st.display_name, st.sort_order, u.display_name
`

const submissionJoins = `
	FROM submissions sub
	JOIN stages st ON st.id = sub.stage_id
	JOIN users u ON u.id = sub.owner_id
`

func (s *PostgresStore) InsertSubmission(ctx context.Context, submission Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, kind, project_id, owner_id, title, stage_id, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, submission.ID, submission.Kind, submission.ProjectID, submission.OwnerID,
		submission.Title, submission.StageID, submission.ParentID)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	return scanSubmission(s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+submissionJoins+`
		WHERE sub.id=$1
	`, submissionID))
}

// GetSubmissionByOwner returns nil when the owner has no record of this kind
// for the project yet.
func (s *PostgresStore) GetSubmissionByOwner(ctx context.Context, kind, projectID, ownerID string) (*Submission, error) {
	submission, err := scanSubmission(s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+submissionJoins+`
		WHERE sub.kind=$1 AND sub.project_id=$2 AND sub.owner_id=$3
	`, kind, projectID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *PostgresStore) GetSubmissionByParent(ctx context.Context, parentID string) (*Submission, error) {
	submission, err := scanSubmission(s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+submissionJoins+`
		WHERE sub.parent_id=$1
	`, parentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *PostgresStore) ListSubmissionsByOwner(ctx context.Context, projectID, ownerID, kind string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+submissionJoins+`
		WHERE sub.project_id=$1 AND sub.owner_id=$2 AND sub.kind=$3
		ORDER BY sub.created_at
	`, projectID, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func (s *PostgresStore) ListSubmissionsByProject(ctx context.Context, projectID, kind string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+submissionJoins+`
		WHERE sub.project_id=$1 AND sub.kind=$2
		ORDER BY sub.created_at
	`, projectID, kind)
	if err != nil {
		return nil, fmt.Errorf("list submissions by project: %w", err)
	}
	return collectSubmissions(rows)
}

func (s *PostgresStore) UpdateSubmissionStage(ctx context.Context, submissionID, stageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET stage_id=$2, updated_at=NOW() WHERE id=$1
	`, submissionID, stageID)
	if err != nil {
		return fmt.Errorf("update submission stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission stage: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanSubmission(row rowScanner) (Submission, error) {
	var submission Submission
	err := row.Scan(&submission.ID, &submission.Kind, &submission.ProjectID, &submission.OwnerID,
		&submission.Title, &submission.StageID, &submission.ParentID,
		&submission.CreatedAt, &submission.UpdatedAt,
		&submission.StageName, &submission.StageSortOrder, &submission.OwnerName)
	if err != nil {
		return Submission{}, err
	}
	return submission, nil
}

func collectSubmissions(rows *sql.Rows) ([]Submission, error) {
	defer rows.Close()
	items := make([]Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, submission)
	}
	return items, rows.Err()
}

// ---- field responses ----

func (s *PostgresStore) InsertFieldResponse(ctx context.Context, response FieldResponse) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_responses (id, submission_id, field_id, approved)
		VALUES ($1, $2, $3, $4)
	`, response.ID, response.SubmissionID, response.FieldID, response.Approved)
	if err != nil {
		return fmt.Errorf("insert field response: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFieldResponse(ctx context.Context, responseID string) (FieldResponse, error) {
	var response FieldResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT fr.id, fr.submission_id, fr.field_id, fr.approved, f.section_id
		FROM field_responses fr
		JOIN fields f ON f.id = fr.field_id
		WHERE fr.id=$1
	`, responseID).Scan(&response.ID, &response.SubmissionID, &response.FieldID, &response.Approved, &response.SectionID)
	if err != nil {
		return FieldResponse{}, err
	}
	if err := s.loadResponseValues(ctx, []*FieldResponse{&response}); err != nil {
		return FieldResponse{}, err
	}
	return response, nil
}

// ListFieldResponses loads a submission's responses with their full value
// history (oldest first) and comment counters.
func (s *PostgresStore) ListFieldResponses(ctx context.Context, submissionID string) ([]FieldResponse, error) {
	return s.listResponses(ctx, submissionID, "")
}

func (s *PostgresStore) ListSectionFieldResponses(ctx context.Context, submissionID, sectionID string) ([]FieldResponse, error) {
	return s.listResponses(ctx, submissionID, sectionID)
}

func (s *PostgresStore) listResponses(ctx context.Context, submissionID, sectionID string) ([]FieldResponse, error) {
	query := `
		SELECT fr.id, fr.submission_id, fr.field_id, fr.approved, f.section_id,
			(SELECT COUNT(*) FROM comments c WHERE c.field_response_id = fr.id),
			(SELECT COUNT(*) FROM comments c WHERE c.field_response_id = fr.id AND NOT c.read)
		FROM field_responses fr
		JOIN fields f ON f.id = fr.field_id
		WHERE fr.submission_id=$1
	`
	args := []any{submissionID}
	if sectionID != "" {
		query += ` AND f.section_id=$2`
		args = append(args, sectionID)
	}
	query += ` ORDER BY f.sort_order`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list field responses: %w", err)
	}
	defer rows.Close()

	items := make([]FieldResponse, 0)
	for rows.Next() {
		var item FieldResponse
		if err := rows.Scan(&item.ID, &item.SubmissionID, &item.FieldID, &item.Approved,
			&item.SectionID, &item.CommentCount, &item.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan field response: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field responses: %w", err)
	}

	refs := make([]*FieldResponse, len(items))
	for i := range items {
		refs[i] = &items[i]
	}
	if err := s.loadResponseValues(ctx, refs); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) loadResponseValues(ctx context.Context, responses []*FieldResponse) error {
	if len(responses) == 0 {
		return nil
	}
	ids := make([]string, len(responses))
	byID := make(map[string]*FieldResponse, len(responses))
	for i, response := range responses {
		ids[i] = response.ID
		byID[response.ID] = response
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field_response_id, value, recorded_at
		FROM field_response_values
		WHERE field_response_id = ANY($1)
		ORDER BY recorded_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("list response values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var value ResponseValue
		if err := rows.Scan(&value.ID, &value.FieldResponseID, &value.Value, &value.RecordedAt); err != nil {
			return fmt.Errorf("scan response value: %w", err)
		}
		if response, ok := byID[value.FieldResponseID]; ok {
			response.Values = append(response.Values, value)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) InsertResponseValue(ctx context.Context, value ResponseValue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_response_values (id, field_response_id, value, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, value.ID, value.FieldResponseID, value.Value, value.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert response value: %w", err)
	}
	return nil
}

// UpdateResponseValue overwrites one history row in place. Draft saves only.
func (s *PostgresStore) UpdateResponseValue(ctx context.Context, valueID, newValue string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE field_response_values SET value=$2, recorded_at=NOW() WHERE id=$1
	`, valueID, newValue)
	if err != nil {
		return fmt.Errorf("update response value: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update response value: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetFieldResponseApproved(ctx context.Context, responseID string, approved bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE field_responses SET approved=$2 WHERE id=$1
	`, responseID, approved)
	if err != nil {
		return fmt.Errorf("set field response approved: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set field response approved: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- comments ----

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, field_response_id, author_id, author_name, author_role, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, comment.ID, comment.FieldResponseID, comment.AuthorID, comment.AuthorName,
		comment.AuthorRole, comment.Body, comment.Read, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, field_response_id, author_id, author_name, author_role, body, read, created_at
		FROM comments WHERE id=$1
	`, commentID).Scan(&comment.ID, &comment.FieldResponseID, &comment.AuthorID, &comment.AuthorName,
		&comment.AuthorRole, &comment.Body, &comment.Read, &comment.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, responseID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field_response_id, author_id, author_name, author_role, body, read, created_at
		FROM comments WHERE field_response_id=$1
		ORDER BY created_at
	`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.FieldResponseID, &item.AuthorID, &item.AuthorName,
			&item.AuthorRole, &item.Body, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateComment replaces the body and resets the unread flag.
func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, body string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body=$2, read=FALSE WHERE id=$1
	`, commentID, body)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) MarkCommentRead(ctx context.Context, commentID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE comments SET read=TRUE WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("mark comment read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark comment read: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- notifications ----

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, submission_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, notification.ID, notification.RecipientID, notification.SubmissionID,
		notification.Body, notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, submission_id, body, created_at
		FROM notifications WHERE recipient_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.RecipientID, &item.SubmissionID, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
