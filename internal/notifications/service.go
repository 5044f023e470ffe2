package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

// Service lists credit alerts for back-office staff and tracks which were read.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, storeID *uuid.UUID) (int64, error)
}

type service struct {
	repo  Repository
	clock clock.Clock
}

// ListParams filters notifications. A nil StoreID lists every store.
type ListParams struct {
	StoreID    *uuid.UUID
	UnreadOnly bool
	pagination.Params
}

type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	StoreID   uuid.UUID              `json:"store_id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ListResult wraps one page of notifications with the unread total for the same scope.
type ListResult struct {
	Items       []NotificationDTO `json:"items"`
	UnreadCount int64             `json:"unread_count"`
	NextCursor  string            `json:"next_cursor,omitempty"`
}

func NewService(repo Repository, clk clock.Clock) (Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &service{repo: repo, clock: clk}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.List(ctx, listFilter{StoreID: params.StoreID, UnreadOnly: params.UnreadOnly}, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.StoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	rows, next := pagination.Trim(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{At: n.CreatedAt, ID: n.ID}
	})
	result := &ListResult{Items: make([]NotificationDTO, 0, len(rows)), UnreadCount: unread, NextCursor: next}
	for _, row := range rows {
		result.Items = append(result.Items, toDTO(row))
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	found, err := s.repo.MarkRead(ctx, notificationID, s.clock.Now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, storeID *uuid.UUID) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, storeID, s.clock.Now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func toDTO(m models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        m.ID,
		StoreID:   m.StoreID,
		Type:      m.Type,
		Title:     m.Title,
		Message:   m.Message,
		Link:      m.Link,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}
