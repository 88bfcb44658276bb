package abha

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *AbhaNumber) error
	GetByID(ctx context.Context, id uuid.UUID) (*AbhaNumber, error)
	GetByHealthID(ctx context.Context, healthID string) (*AbhaNumber, error)
	GetByAbhaNumber(ctx context.Context, abhaNumber string) (*AbhaNumber, error)
	Update(ctx context.Context, a *AbhaNumber) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*AbhaNumber, int, error)

	// ListByMobile returns every identity whose stored mobile matches the
	// normalized number. Discovery narrows these further by demographics.
	ListByMobile(ctx context.Context, mobile string) ([]*AbhaNumber, error)

	// Care contexts
	AddCareContext(ctx context.Context, cc *LinkedCareContext) error
	GetCareContext(ctx context.Context, abhaNumberID uuid.UUID, reference string) (*LinkedCareContext, error)
	ListCareContexts(ctx context.Context, abhaNumberID uuid.UUID) ([]*LinkedCareContext, error)
	MarkCareContextLinked(ctx context.Context, id uuid.UUID, linked bool) error
}
