package hip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/cache"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

// Sentinel errors the handler maps to HTTP statuses.
var (
	ErrLinkSessionNotFound = errors.New("link session not found or expired")
	ErrInvalidOTP          = errors.New("invalid otp")
)

// linkSession is the correlation entry for one user-initiated link attempt.
type linkSession struct {
	ReferenceID string `json:"reference_id"`
	OTP         string `json:"otp"`
	AbhaAddress string `json:"abha_address"`
}

// pendingLinkToken is the correlation entry between token generation and
// the on-generate-token callback.
type pendingLinkToken struct {
	AbhaAddress  string   `json:"abha_address"`
	CareContexts []string `json:"care_contexts"`
}

// HandleLinkInit starts patient-initiated linking: generate an OTP, stash
// it against a fresh reference id and tell the consent manager how the
// patient will be authenticated.
func (s *Service) HandleLinkInit(ctx context.Context, req LinkInitRequest, callbackRequestID string) error {
	otp, err := generateOTP()
	if err != nil {
		return err
	}

	referenceID := uuid.NewString()
	session, err := json.Marshal(linkSession{
		ReferenceID: referenceID,
		OTP:         otp,
		AbhaAddress: req.AbhaAddress,
	})
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, linkOTPCachePrefix+referenceID, session, linkSessionTTL); err != nil {
		return fmt.Errorf("storing link session: %w", err)
	}

	// Delivery to the patient's registered mobile is the backend's job;
	// the sandbox reads it from the logs.
	s.log.Debug().Str("reference_id", referenceID).Str("otp", otp).Msg("link otp issued")

	reply := onLinkInitPayload{
		TransactionID: req.TransactionID,
		Link: linkRef{
			ReferenceNumber:    referenceID,
			AuthenticationType: "DIRECT",
			Meta: linkMeta{
				CommunicationMedium: "MOBILE",
				CommunicationHint:   "OTP",
				CommunicationExpiry: gateway.Timestamp(time.Now().Add(linkSessionTTL)),
			},
		},
		Response: responseRef{RequestID: callbackRequestID},
	}
	_, err = s.gw.Post(ctx, "/v3/user-initiated-linking/patient/care-context/on-init", reply, s.headers(uuid.NewString()))
	return err
}

// HandleLinkConfirm checks the OTP against the stored session and, when it
// matches, confirms the patient's care contexts and marks them linked.
func (s *Service) HandleLinkConfirm(ctx context.Context, req LinkConfirmRequest, callbackRequestID string) error {
	key := linkOTPCachePrefix + req.Confirmation.LinkRefNumber

	// A wrong OTP must not consume the session; the patient may retype it
	// until the entry expires.
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			s.log.Warn().Str("reference_id", req.Confirmation.LinkRefNumber).Msg("link confirmation for unknown session")
			return ErrLinkSessionNotFound
		}
		return err
	}

	var session linkSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("decoding link session: %w", err)
	}
	if session.OTP != req.Confirmation.Token {
		s.log.Warn().Str("reference_id", req.Confirmation.LinkRefNumber).Msg("link confirmation with wrong otp")
		return ErrInvalidOTP
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}

	a, err := s.abha.GetByIdentifier(ctx, session.AbhaAddress)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", session.AbhaAddress, err)
	}

	patient, refs, err := s.linkedPatient(ctx, a)
	if err != nil {
		return err
	}

	reply := onLinkConfirmPayload{
		TransactionID: req.TransactionID,
		Patient:       &patient,
		Response:      responseRef{RequestID: callbackRequestID},
	}
	if _, err := s.gw.Post(ctx, "/v3/user-initiated-linking/patient/care-context/on-confirm", reply, s.headers(uuid.NewString())); err != nil {
		return err
	}

	for _, id := range refs {
		if err := s.abha.MarkCareContextLinked(ctx, id, true); err != nil {
			s.log.Error().Err(err).Str("care_context_id", id.String()).Msg("marking care context linked failed")
		}
	}
	return nil
}

// LinkCareContexts starts HIP-initiated linking for the given care context
// references. A link token must first be minted by the consent manager, so
// the pending request is parked until the on-generate-token callback.
func (s *Service) LinkCareContexts(ctx context.Context, abhaIdentifier string, careContextRefs []string) error {
	if len(careContextRefs) == 0 {
		return fmt.Errorf("provide at least one care context to link")
	}

	a, err := s.abha.GetByIdentifier(ctx, abhaIdentifier)
	if err != nil {
		return fmt.Errorf("patient does not have an ABHA number on record")
	}

	requestID := uuid.NewString()
	pending, err := json.Marshal(pendingLinkToken{
		AbhaAddress:  a.HealthID,
		CareContexts: careContextRefs,
	})
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, linkTokenCachePrefix+requestID, pending, s.correlationTTL); err != nil {
		return fmt.Errorf("storing pending link request: %w", err)
	}

	payload := generateTokenPayload{
		AbhaNumber:  a.AbhaNumber,
		AbhaAddress: a.HealthID,
		Name:        a.Name,
		Gender:      a.Gender,
		YearOfBirth: a.YearOfBirth(),
	}
	_, err = s.gw.Post(ctx, "/v3/token/generate-token", payload, s.headers(requestID))
	return err
}

// HandleOnGenerateToken claims the pending link request correlated by the
// callback's response.requestId and pushes the care contexts with the
// minted link token.
func (s *Service) HandleOnGenerateToken(ctx context.Context, resp GenerateTokenResponse) error {
	raw, err := s.store.GetAndDelete(ctx, linkTokenCachePrefix+resp.Response.RequestID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			s.log.Warn().Str("request_id", resp.Response.RequestID).Msg("link token callback for unknown request")
			return ErrLinkSessionNotFound
		}
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("token generation failed: %s", resp.Error.Message)
	}

	var pending pendingLinkToken
	if err := json.Unmarshal(raw, &pending); err != nil {
		return fmt.Errorf("decoding pending link request: %w", err)
	}

	a, err := s.abha.GetByIdentifier(ctx, pending.AbhaAddress)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", pending.AbhaAddress, err)
	}

	patient, refs, err := s.patientForRefs(ctx, a, pending.CareContexts)
	if err != nil {
		return err
	}

	payload := linkCareContextPayload{
		AbhaNumber:  a.AbhaNumber,
		AbhaAddress: a.HealthID,
		Patient:     []matchedPatient{patient},
	}
	h := s.headers(uuid.NewString())
	h.LinkToken = resp.LinkToken
	if _, err := s.gw.Post(ctx, "/v3/link/carecontext", payload, h); err != nil {
		return err
	}

	for _, id := range refs {
		if err := s.abha.MarkCareContextLinked(ctx, id, true); err != nil {
			s.log.Error().Err(err).Str("care_context_id", id.String()).Msg("marking care context linked failed")
		}
	}
	return nil
}

// linkedPatient builds the confirmation body covering every care context
// on record for the identity.
func (s *Service) linkedPatient(ctx context.Context, a *abha.AbhaNumber) (matchedPatient, []uuid.UUID, error) {
	return s.patientForRefs(ctx, a, nil)
}

// patientForRefs builds the wire patient for the selected care context
// references, or all of them when refs is nil. Returns the row ids so the
// caller can flag them linked after the gateway accepts.
func (s *Service) patientForRefs(ctx context.Context, a *abha.AbhaNumber, refs []string) (matchedPatient, []uuid.UUID, error) {
	ccs, err := s.abha.ListCareContexts(ctx, a.ID)
	if err != nil {
		return matchedPatient{}, nil, err
	}

	selected := make(map[string]bool, len(refs))
	for _, ref := range refs {
		selected[ref] = true
	}

	patient := matchedPatient{
		ReferenceNumber: a.HealthID,
		Display:         a.Name,
		HIType:          "DischargeSummary",
	}
	var ids []uuid.UUID
	for _, cc := range ccs {
		if len(selected) > 0 && !selected[cc.CareContextReference] {
			continue
		}
		if patient.ReferenceNumber == "" {
			patient.ReferenceNumber = cc.PatientReference
		}
		patient.CareContexts = append(patient.CareContexts, careContextRef{
			ReferenceNumber: cc.CareContextReference,
			Display:         cc.Display,
		})
		ids = append(ids, cc.ID)
	}
	patient.Count = len(patient.CareContexts)
	return patient, ids, nil
}
