package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ohcnetwork/abdm-gateway/internal/platform/fidelius"
)

// Archiver flags stored health information files once the consent that
// covered them ends.
type Archiver interface {
	Archive(ctx context.Context, artefactID string) (int, error)
}

type Service struct {
	repo  Repository
	files Archiver
	log   zerolog.Logger
}

func NewService(repo Repository, files Archiver, log zerolog.Logger) *Service {
	return &Service{repo: repo, files: files, log: log}
}

// CreateRequest validates and persists a new consent request in REQUESTED
// status, filling unset permission fields with the standard defaults.
func (s *Service) CreateRequest(ctx context.Context, req *ConsentRequest) error {
	req.ApplyDefaults(time.Now().UTC())
	if req.ExternalID == uuid.Nil {
		req.ExternalID = uuid.New()
	}

	if !ValidPurpose(req.Purpose) {
		return fmt.Errorf("unknown purpose %q", req.Purpose)
	}
	if len(req.HITypes) == 0 {
		return fmt.Errorf("at least one health information type is required")
	}
	for _, t := range req.HITypes {
		if !ValidHIType(t) {
			return fmt.Errorf("unknown health information type %q", t)
		}
	}
	// A single-instant range (from == to) is a valid request.
	if req.ToTime.Before(req.FromTime) {
		return fmt.Errorf("permission range end must not precede start")
	}
	if req.Expiry.Before(req.ToTime) {
		return fmt.Errorf("expiry must not precede the permission range end")
	}
	if !req.Expiry.After(time.Now().UTC()) {
		return fmt.Errorf("expiry must be in the future")
	}

	return s.repo.CreateRequest(ctx, req)
}

// UpdateRequestStatus moves a consent request through its lifecycle.
func (s *Service) UpdateRequestStatus(ctx context.Context, req *ConsentRequest, status string) error {
	if !CanTransition(req.Status, status) {
		return fmt.Errorf("consent request %s cannot move from %s to %s", req.ID, req.Status, status)
	}
	req.Status = status
	return s.repo.UpdateRequest(ctx, req)
}

// AssignConsentID records the id the consent manager handed back for a
// registered request.
func (s *Service) AssignConsentID(ctx context.Context, req *ConsentRequest, consentID string) error {
	req.ConsentID = &consentID
	return s.repo.UpdateRequest(ctx, req)
}

// RebindArtefactCorrelation swaps the artefact's correlation key. The data
// flow reuses consent_id first for the health information request id and
// then for the transaction id of the transfer session.
func (s *Service) RebindArtefactCorrelation(ctx context.Context, art *ConsentArtefact, correlationID string) error {
	art.ConsentID = &correlationID
	return s.repo.UpdateArtefact(ctx, art)
}

// UpsertArtefact stores a consent artefact, creating it on first sight and
// updating it on re-notification. Key material is generated once, when the
// artefact is first persisted without any.
func (s *Service) UpsertArtefact(ctx context.Context, art *ConsentArtefact) error {
	if art.Status == "" {
		art.Status = StatusGranted
	}

	existing, err := s.repo.GetArtefactByArtefactID(ctx, art.ArtefactID)
	switch {
	case err == nil:
		if !CanTransition(existing.Status, art.Status) {
			return fmt.Errorf("consent artefact %s cannot move from %s to %s", art.ArtefactID, existing.Status, art.Status)
		}
		art.ID = existing.ID
		art.CreatedAt = existing.CreatedAt
		if art.KeyMaterialPrivateKey == "" {
			art.KeyMaterialAlgorithm = existing.KeyMaterialAlgorithm
			art.KeyMaterialCurve = existing.KeyMaterialCurve
			art.KeyMaterialPublicKey = existing.KeyMaterialPublicKey
			art.KeyMaterialPrivateKey = existing.KeyMaterialPrivateKey
			art.KeyMaterialNonce = existing.KeyMaterialNonce
		}
		if err := s.ensureKeyMaterial(art); err != nil {
			return err
		}
		if err := s.repo.UpdateArtefact(ctx, art); err != nil {
			return err
		}
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.ensureKeyMaterial(art); err != nil {
			return err
		}
		if err := s.repo.CreateArtefact(ctx, art); err != nil {
			return err
		}
	default:
		return err
	}

	s.archiveIfEnded(ctx, art)
	return nil
}

// UpdateArtefactStatus moves an artefact through its lifecycle and archives
// its files when the consent is revoked or expires.
func (s *Service) UpdateArtefactStatus(ctx context.Context, art *ConsentArtefact, status string) error {
	if !CanTransition(art.Status, status) {
		return fmt.Errorf("consent artefact %s cannot move from %s to %s", art.ArtefactID, art.Status, status)
	}
	art.Status = status
	if err := s.repo.UpdateArtefact(ctx, art); err != nil {
		return err
	}
	s.archiveIfEnded(ctx, art)
	return nil
}

func (s *Service) ensureKeyMaterial(art *ConsentArtefact) error {
	if art.KeyMaterialPrivateKey != "" {
		return nil
	}
	km, err := fidelius.GenerateKeyMaterial()
	if err != nil {
		return fmt.Errorf("generating key material: %w", err)
	}
	art.KeyMaterialAlgorithm = fidelius.Algorithm
	art.KeyMaterialCurve = fidelius.Curve
	art.KeyMaterialPublicKey = km.PublicKey
	art.KeyMaterialPrivateKey = km.PrivateKey
	art.KeyMaterialNonce = km.Nonce
	return nil
}

// archiveIfEnded withdraws stored files when a consent ends. DENIED never
// had files to begin with, so only REVOKED and EXPIRED trigger archival.
func (s *Service) archiveIfEnded(ctx context.Context, art *ConsentArtefact) {
	if art.Status != StatusRevoked && art.Status != StatusExpired {
		return
	}
	n, err := s.files.Archive(ctx, art.ArtefactID.String())
	if err != nil {
		s.log.Error().Err(err).Str("artefact_id", art.ArtefactID.String()).Msg("archiving consent files failed")
		return
	}
	if n > 0 {
		s.log.Info().Str("artefact_id", art.ArtefactID.String()).Int("files", n).Msg("archived consent files")
	}
}

// GetRequest and friends are thin pass-throughs kept on the service so
// handlers never touch the repository directly.

func (s *Service) GetRequest(ctx context.Context, id string) (*ConsentRequest, error) {
	parsed, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRequestByID(ctx, parsed)
}

func (s *Service) GetRequestByExternalID(ctx context.Context, externalID string) (*ConsentRequest, error) {
	parsed, err := parseUUID(externalID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRequestByExternalID(ctx, parsed)
}

func (s *Service) GetRequestByConsentID(ctx context.Context, consentID string) (*ConsentRequest, error) {
	return s.repo.GetRequestByConsentID(ctx, consentID)
}

func (s *Service) GetArtefactByConsentID(ctx context.Context, consentID string) (*ConsentArtefact, error) {
	return s.repo.GetArtefactByConsentID(ctx, consentID)
}

func (s *Service) GetArtefactByArtefactID(ctx context.Context, artefactID uuid.UUID) (*ConsentArtefact, error) {
	return s.repo.GetArtefactByArtefactID(ctx, artefactID)
}

func (s *Service) ListArtefactsByRequest(ctx context.Context, requestID uuid.UUID) ([]*ConsentArtefact, error) {
	return s.repo.ListArtefactsByRequest(ctx, requestID)
}

func (s *Service) ListRequests(ctx context.Context, limit, offset int) ([]*ConsentRequest, int, error) {
	return s.repo.ListRequests(ctx, limit, offset)
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
