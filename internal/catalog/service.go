package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// Service coordinates catalog item operations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds the catalog service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns items matching the filters with the total count.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	return s.repo.List(ctx, filters)
}

// Get loads one item by id.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	if id == "" {
		vErr := shared.NewValidationError()
		vErr.Add("id", "is required")
		return Item{}, vErr
	}
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new item.
func (s *Service) Create(ctx context.Context, item Item, operatorID string) (Item, error) {
	if err := validateItem(item); err != nil {
		return Item{}, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, operatorID, "catalog:create", created.ID, created.Name)
	return created, nil
}

// Update validates and stores changes to an existing item.
func (s *Service) Update(ctx context.Context, id string, item Item, operatorID string) error {
	if id == "" {
		vErr := shared.NewValidationError()
		vErr.Add("id", "is required")
		return vErr
	}
	if err := validateItem(item); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, item); err != nil {
		return err
	}
	s.recordAudit(ctx, operatorID, "catalog:update", id, item.Name)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, operatorID, action, itemID, name string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  operatorID,
		Action:   action,
		Entity:   "item",
		EntityID: itemID,
		Meta:     map[string]any{"name": name},
	})
}
