package abha

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

var validGenders = map[string]bool{
	"M": true,
	"F": true,
	"O": true,
	"U": true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAbhaNumber registers an ABHA identity shared by the central
// registry. HealthID (the ABHA address) is the handle every exchange flow
// keys on, so it is mandatory.
func (s *Service) CreateAbhaNumber(ctx context.Context, a *AbhaNumber) error {
	if a.HealthID == "" {
		return fmt.Errorf("health_id is required")
	}
	if a.Gender != "" && !validGenders[a.Gender] {
		return fmt.Errorf("invalid gender: %s", a.Gender)
	}
	if a.Name == "" {
		a.Name = joinName(a.FirstName, a.MiddleName, a.LastName)
	}
	a.Mobile = NormalizeMobile(a.Mobile)
	return s.repo.Create(ctx, a)
}

func (s *Service) GetAbhaNumber(ctx context.Context, id uuid.UUID) (*AbhaNumber, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByIdentifier resolves an ABHA identity by ABHA address or the
// 14-digit number, whichever the caller sent.
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (*AbhaNumber, error) {
	if a, err := s.repo.GetByHealthID(ctx, identifier); err == nil {
		return a, nil
	}
	return s.repo.GetByAbhaNumber(ctx, identifier)
}

func (s *Service) UpdateAbhaNumber(ctx context.Context, a *AbhaNumber) error {
	if a.Gender != "" && !validGenders[a.Gender] {
		return fmt.Errorf("invalid gender: %s", a.Gender)
	}
	a.Mobile = NormalizeMobile(a.Mobile)
	return s.repo.Update(ctx, a)
}

func (s *Service) DeleteAbhaNumber(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListAbhaNumbers(ctx context.Context, limit, offset int) ([]*AbhaNumber, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByMobile(ctx context.Context, mobile string) ([]*AbhaNumber, error) {
	return s.repo.ListByMobile(ctx, mobile)
}

// AddCareContext records an episode of care for later linking. Duplicate
// references for the same identity upsert instead of erroring.
func (s *Service) AddCareContext(ctx context.Context, cc *LinkedCareContext) error {
	if cc.AbhaNumberID == uuid.Nil {
		return fmt.Errorf("abha_number_id is required")
	}
	if cc.CareContextReference == "" {
		return fmt.Errorf("care_context_reference is required")
	}
	if cc.PatientReference == "" {
		return fmt.Errorf("patient_reference is required")
	}
	return s.repo.AddCareContext(ctx, cc)
}

func (s *Service) ListCareContexts(ctx context.Context, abhaNumberID uuid.UUID) ([]*LinkedCareContext, error) {
	return s.repo.ListCareContexts(ctx, abhaNumberID)
}

func (s *Service) GetCareContext(ctx context.Context, abhaNumberID uuid.UUID, reference string) (*LinkedCareContext, error) {
	return s.repo.GetCareContext(ctx, abhaNumberID, reference)
}

func (s *Service) MarkCareContextLinked(ctx context.Context, id uuid.UUID, linked bool) error {
	return s.repo.MarkCareContextLinked(ctx, id, linked)
}

func joinName(parts ...string) string {
	name := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += p
	}
	return name
}
