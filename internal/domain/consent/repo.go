package consent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Consent requests (HIU side)
	CreateRequest(ctx context.Context, req *ConsentRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error)
	GetRequestByExternalID(ctx context.Context, externalID uuid.UUID) (*ConsentRequest, error)
	GetRequestByConsentID(ctx context.Context, consentID string) (*ConsentRequest, error)
	UpdateRequest(ctx context.Context, req *ConsentRequest) error
	ListRequests(ctx context.Context, limit, offset int) ([]*ConsentRequest, int, error)
	ListRequestsByPatient(ctx context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentRequest, int, error)

	// Consent artefacts (both sides)
	CreateArtefact(ctx context.Context, art *ConsentArtefact) error
	GetArtefactByID(ctx context.Context, id uuid.UUID) (*ConsentArtefact, error)
	GetArtefactByArtefactID(ctx context.Context, artefactID uuid.UUID) (*ConsentArtefact, error)
	GetArtefactByConsentID(ctx context.Context, consentID string) (*ConsentArtefact, error)
	UpdateArtefact(ctx context.Context, art *ConsentArtefact) error
	ListArtefactsByRequest(ctx context.Context, requestID uuid.UUID) ([]*ConsentArtefact, error)
	ListArtefactsByPatient(ctx context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentArtefact, int, error)
}
