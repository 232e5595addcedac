package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"labbook/api/internal/rbac"
	"labbook/api/internal/search"
	"labbook/api/internal/store"
	"labbook/api/internal/util"
)

// AddComment attaches a comment to one field answer and flips its approval
// by the author's role: a reviewer comment withdraws approval, a student
// comment restores it. Comments start unread.
func (s *Service) AddComment(ctx context.Context, actor Session, responseID, body string) (store.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, domainError(http.StatusBadRequest, "EMPTY_COMMENT", "Comment body is required", nil)
	}
	response, err := s.store.GetFieldResponse(ctx, responseID)
	if err != nil {
		return store.Comment{}, err
	}

	comment := store.Comment{
		ID:              util.NewID("cmt"),
		FieldResponseID: response.ID,
		AuthorID:        actor.UserID,
		AuthorName:      actor.UserName,
		AuthorRole:      string(rbac.Normalize(actor.Role)),
		Body:            body,
		CreatedAt:       time.Now(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}

	approved := !rbac.Reviewer(rbac.Normalize(actor.Role))
	if err := s.store.SetFieldResponseApproved(ctx, response.ID, approved); err != nil {
		return store.Comment{}, err
	}

	s.notifyComment(ctx, actor, response, body)
	s.indexComment(ctx, comment.ID)

	return s.store.GetComment(ctx, comment.ID)
}

// SetComment replaces a comment's body. Edited comments drop back to unread.
func (s *Service) SetComment(ctx context.Context, actor Session, commentID, body string) (store.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, domainError(http.StatusBadRequest, "EMPTY_COMMENT", "Comment body is required", nil)
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	if comment.AuthorID != actor.UserID {
		return store.Comment{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the author may edit a comment", nil)
	}
	if err := s.store.UpdateComment(ctx, commentID, body); err != nil {
		return store.Comment{}, err
	}
	s.indexComment(ctx, commentID)
	return s.store.GetComment(ctx, commentID)
}

func (s *Service) DeleteComment(ctx context.Context, actor Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.UserID && !rbac.Reviewer(rbac.Normalize(actor.Role)) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author may delete a comment", nil)
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	return nil
}

func (s *Service) MarkCommentRead(ctx context.Context, commentID string) error {
	if _, err := s.store.GetComment(ctx, commentID); err != nil {
		return err
	}
	return s.store.MarkCommentRead(ctx, commentID)
}

func (s *Service) ListComments(ctx context.Context, responseID string) ([]store.Comment, error) {
	if _, err := s.store.GetFieldResponse(ctx, responseID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, responseID)
}

// notifyComment tells the submission owner about reviewer feedback. Owners
// commenting on their own answers notify nobody.
func (s *Service) notifyComment(ctx context.Context, actor Session, response store.FieldResponse, body string) {
	submission, err := s.store.GetSubmission(ctx, response.SubmissionID)
	if err != nil || submission.OwnerID == actor.UserID {
		return
	}
	if len(body) > 120 {
		body = body[:120]
	}
	message := fmt.Sprintf("%s commented: %s", actor.UserName, body)
	if field, err := s.store.GetField(ctx, response.FieldID); err == nil && field.Name != "" {
		message = fmt.Sprintf("%s commented on %q: %s", actor.UserName, field.Name, body)
	}
	_ = s.store.InsertNotification(ctx, store.Notification{
		ID:           util.NewID("ntf"),
		RecipientID:  submission.OwnerID,
		SubmissionID: submission.ID,
		Body:         message,
		CreatedAt:    time.Now(),
	})
}

func (s *Service) indexComment(ctx context.Context, commentID string) {
	if s.search == nil {
		return
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return
	}
	response, err := s.store.GetFieldResponse(ctx, comment.FieldResponseID)
	if err != nil {
		return
	}
	submission, err := s.store.GetSubmission(ctx, response.SubmissionID)
	if err != nil {
		return
	}
	record := search.CommentRecord{
		ID:           comment.ID,
		Body:         comment.Body,
		AuthorName:   comment.AuthorName,
		SubmissionID: submission.ID,
		ProjectID:    submission.ProjectID,
		Kind:         submission.Kind,
	}
	if field, err := s.store.GetFieldByResponse(ctx, comment.FieldResponseID); err == nil {
		record.FieldName = field.Name
	}
	s.search.IndexComment(record)
}
