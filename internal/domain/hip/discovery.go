package hip

import (
	"context"

	"github.com/google/uuid"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
)

const errPatientNotFound = "ABDM-1010"

// HandleDiscover resolves a discovery claim against the local ABHA registry
// and replies with the unlinked care contexts of the matched patient, or an
// ABDM-1010 error when nobody matches. callbackRequestID is the REQUEST-ID
// the consent manager sent; the reply correlates on it.
func (s *Service) HandleDiscover(ctx context.Context, req DiscoverRequest, callbackRequestID string) error {
	matched, matchedBy := s.matchPatient(ctx, req.Patient)

	reply := onDiscoverPayload{
		TransactionID: req.TransactionID,
		Response:      responseRef{RequestID: callbackRequestID},
	}

	if matched == nil {
		s.log.Info().Str("transaction_id", req.TransactionID).Msg("discovery found no patient")
		reply.Error = &gatewayError{Code: errPatientNotFound, Message: "Patient not found"}
	} else {
		patient, err := s.discoveredPatient(ctx, matched)
		if err != nil {
			return err
		}
		reply.Patient = &patient
		reply.MatchedBy = []string{matchedBy}
	}

	_, err := s.gw.Post(ctx, "/v3/user-initiated-linking/patient/care-context/on-discover", reply, s.headers(uuid.NewString()))
	return err
}

// matchPatient tries the ABHA identifiers first; an exact hit is
// authoritative. Only when no identifier matches does it fall back to
// mobile plus demographics.
func (s *Service) matchPatient(ctx context.Context, claim DiscoverPatient) (*abha.AbhaNumber, string) {
	if claim.ID != "" {
		if a, err := s.abha.GetByIdentifier(ctx, claim.ID); err == nil {
			return a, MatchedByAbhaNumber
		}
	}
	if num := identifierValue(claim, IdentifierAbhaNumber); num != "" {
		if a, err := s.abha.GetByIdentifier(ctx, num); err == nil {
			return a, MatchedByAbhaNumber
		}
	}

	mobile := identifierValue(claim, IdentifierMobile)
	if mobile == "" {
		return nil, ""
	}
	candidates, err := s.abha.ListByMobile(ctx, mobile)
	if err != nil {
		s.log.Error().Err(err).Msg("listing discovery candidates failed")
		return nil, ""
	}
	demographic := matchByDemographics(candidates, claim, s.threshold)
	if len(demographic) == 0 {
		return nil, ""
	}
	return demographic[0], MatchedByMobile
}

func (s *Service) discoveredPatient(ctx context.Context, a *abha.AbhaNumber) (matchedPatient, error) {
	ccs, err := s.abha.ListCareContexts(ctx, a.ID)
	if err != nil {
		return matchedPatient{}, err
	}

	patient := matchedPatient{
		ReferenceNumber: a.HealthID,
		Display:         a.Name,
		HIType:          "DischargeSummary",
	}
	for _, cc := range ccs {
		if cc.Linked {
			continue
		}
		if patient.ReferenceNumber == "" {
			patient.ReferenceNumber = cc.PatientReference
		}
		patient.CareContexts = append(patient.CareContexts, careContextRef{
			ReferenceNumber: cc.CareContextReference,
			Display:         cc.Display,
		})
	}
	patient.Count = len(patient.CareContexts)
	return patient, nil
}
