package hiu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/blobstore"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

// Sentinel errors the handler maps to HTTP statuses.
var (
	ErrRequestNotFound  = errors.New("consent request not found")
	ErrArtefactNotFound = errors.New("consent artefact not found")
	ErrNotRegistered    = errors.New("consent request not yet registered with the consent manager")
)

// transferPath is the callback route where providers push health
// information; the configured data push URL must point here.
const transferPath = "/v0.5/health-information/transfer"

// Sender posts payloads to the consent manager gateway.
type Sender interface {
	Post(ctx context.Context, path string, payload any, h gateway.Headers) ([]byte, error)
}

// Service implements the requester-side flows: registering consent
// requests, tracking their decisions, pulling artefacts and receiving the
// health information shared under them.
type Service struct {
	abha     *abha.Service
	consents *consent.Service
	gw       Sender
	files    blobstore.Store
	facility gateway.FacilityDirectory

	dataPushURL string
	log         zerolog.Logger
}

func NewService(
	abhaSvc *abha.Service,
	consents *consent.Service,
	gw Sender,
	files blobstore.Store,
	facility gateway.FacilityDirectory,
	dataPushURL string,
	log zerolog.Logger,
) *Service {
	return &Service{
		abha:        abhaSvc,
		consents:    consents,
		gw:          gw,
		files:       files,
		facility:    facility,
		dataPushURL: dataPushURL,
		log:         log,
	}
}

// CreateConsentRequestInput is the host API's view of a new consent
// request. Zero permission fields fall back to the standard defaults.
type CreateConsentRequestInput struct {
	AbhaIdentifier string    `json:"abha_identifier"`
	Purpose        string    `json:"purpose"`
	HITypes        []string  `json:"hi_types"`
	AccessMode     string    `json:"access_mode"`
	FromTime       time.Time `json:"from_time"`
	ToTime         time.Time `json:"to_time"`
	Expiry         time.Time `json:"expiry"`

	RequesterName       string `json:"requester_name"`
	RequesterIdentifier string `json:"requester_identifier"`
}

// CreateConsentRequest persists the request in REQUESTED status and
// registers it with the consent manager. The row's external id doubles as
// the wire requestId, which the on-init callback echoes back.
func (s *Service) CreateConsentRequest(ctx context.Context, in CreateConsentRequestInput) (*consent.ConsentRequest, error) {
	if in.RequesterName == "" {
		return nil, fmt.Errorf("requester name is required")
	}

	a, err := s.abha.GetByIdentifier(ctx, in.AbhaIdentifier)
	if err != nil {
		return nil, fmt.Errorf("patient does not have an ABHA number on record")
	}

	req := &consent.ConsentRequest{
		PatientAbhaID:       a.ID,
		Purpose:             in.Purpose,
		HITypes:             in.HITypes,
		AccessMode:          in.AccessMode,
		FromTime:            in.FromTime,
		ToTime:              in.ToTime,
		Expiry:              in.Expiry,
		RequesterName:       in.RequesterName,
		RequesterIdentifier: in.RequesterIdentifier,
	}
	if err := s.consents.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	hiuID, err := s.facility.FacilityID(ctx, a.HealthID)
	if err != nil {
		return nil, fmt.Errorf("resolving facility for %s: %w", a.HealthID, err)
	}

	payload := consentRequestInitPayload{
		RequestID: req.ExternalID.String(),
		Timestamp: gateway.Timestamp(time.Now()),
		Consent: consentRequestBody{
			Purpose: purposeRef{Text: consent.PurposeLabels[req.Purpose], Code: req.Purpose},
			Patient: idRef{ID: a.HealthID},
			HIU:     idRef{ID: hiuID},
			Requester: consentRequester{
				Name:       req.RequesterName,
				Identifier: requesterIdentifier{Type: "USERNAME", Value: req.RequesterIdentifier},
			},
			HITypes: req.HITypes,
			Permission: permissionWire{
				AccessMode: req.AccessMode,
				DateRange: dateRange{
					From: gateway.Timestamp(req.FromTime),
					To:   gateway.Timestamp(req.ToTime),
				},
				DataEraseAt: gateway.Timestamp(req.Expiry),
				Frequency: frequencyWire{
					Unit:    req.FrequencyUnit,
					Value:   req.FrequencyValue,
					Repeats: req.FrequencyRepeats,
				},
			},
		},
	}
	if _, err := s.gw.Post(ctx, "/v0.5/consent-requests/init", payload, gateway.Headers{}); err != nil {
		return nil, err
	}
	return req, nil
}

// PollConsentStatus returns the local request and asks the consent manager
// for its current status; the answer lands on the on-status callback.
func (s *Service) PollConsentStatus(ctx context.Context, requestID string) (*consent.ConsentRequest, error) {
	req, err := s.consents.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.ConsentID == nil {
		return nil, ErrNotRegistered
	}

	payload := consentStatusPayload{
		RequestID:        uuid.NewString(),
		Timestamp:        gateway.Timestamp(time.Now()),
		ConsentRequestID: *req.ConsentID,
	}
	if _, err := s.gw.Post(ctx, "/v0.5/consent-requests/status", payload, gateway.Headers{}); err != nil {
		return nil, err
	}
	return req, nil
}

// HandleOnConsentInit stores the consent request id the consent manager
// assigned. The callback correlates on resp.requestId, which is the
// external id this side sent on init.
func (s *Service) HandleOnConsentInit(ctx context.Context, cb OnConsentInitCallback) error {
	req, err := s.consents.GetRequestByExternalID(ctx, cb.Resp.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("request_id", cb.Resp.RequestID).Msg("consent on-init for unknown request")
			return ErrRequestNotFound
		}
		return err
	}
	if cb.Error != nil {
		s.log.Warn().Str("request_id", cb.Resp.RequestID).Str("message", cb.Error.Message).Msg("consent manager rejected consent request")
		return s.consents.UpdateRequestStatus(ctx, req, consent.StatusDenied)
	}
	return s.consents.AssignConsentID(ctx, req, cb.ConsentRequest.ID)
}

// HandleOnConsentStatus applies a polled status answer: the decision plus
// any artefacts already minted for it.
func (s *Service) HandleOnConsentStatus(ctx context.Context, cb OnConsentStatusCallback) error {
	return s.applyDecision(ctx, cb.ConsentRequest.ID, cb.ConsentRequest.Status, cb.ConsentRequest.ConsentArtefacts, "")
}

// HandleConsentNotify applies the patient's decision, acknowledges it and
// immediately fetches every artefact so the signed detail lands before any
// data is requested.
func (s *Service) HandleConsentNotify(ctx context.Context, cb ConsentNotifyCallback) error {
	return s.applyDecision(ctx, cb.Notification.ConsentRequestID, cb.Notification.Status, cb.Notification.ConsentArtefacts, cb.RequestID)
}

// applyDecision updates the request status and upserts a skeleton artefact
// per reference, copying the permission granted on the request until the
// fetched detail replaces it. ackRequestID is set for notify deliveries,
// which must be acknowledged.
func (s *Service) applyDecision(ctx context.Context, consentRequestID, status string, refs []artefactRef, ackRequestID string) error {
	req, err := s.consents.GetRequestByConsentID(ctx, consentRequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("consent_request_id", consentRequestID).Msg("consent decision for unknown request")
			return ErrRequestNotFound
		}
		return err
	}

	if err := s.consents.UpdateRequestStatus(ctx, req, status); err != nil {
		return err
	}

	var acks []consentAcknowledgement
	if status != consent.StatusDenied {
		for _, ref := range refs {
			if err := s.upsertFromRequest(ctx, req, ref.ID, status); err != nil {
				s.log.Error().Err(err).Str("artefact_id", ref.ID).Msg("storing consent artefact failed")
				continue
			}
			acks = append(acks, consentAcknowledgement{ConsentID: ref.ID, Status: "OK"})
		}
	}

	if ackRequestID != "" {
		ack := hiuOnNotifyPayload{
			RequestID:       uuid.NewString(),
			Timestamp:       gateway.Timestamp(time.Now()),
			Resp:            responseRef{RequestID: ackRequestID},
			Acknowledgement: acks,
		}
		if _, err := s.gw.Post(ctx, "/v0.5/consents/hiu/on-notify", ack, gateway.Headers{}); err != nil {
			return err
		}
	}

	for _, a := range acks {
		if err := s.fetchArtefact(ctx, a.ConsentID); err != nil {
			s.log.Error().Err(err).Str("artefact_id", a.ConsentID).Msg("fetching consent artefact failed")
		}
	}
	return nil
}

// upsertFromRequest stores the artefact skeleton under the permission the
// request asked for. The consent manager's artefact id serves as both the
// artefact key and the initial correlation id.
func (s *Service) upsertFromRequest(ctx context.Context, req *consent.ConsentRequest, artefactID, status string) error {
	parsed, err := uuid.Parse(artefactID)
	if err != nil {
		return fmt.Errorf("invalid artefact id %q", artefactID)
	}

	consentID := artefactID
	art := &consent.ConsentArtefact{
		ArtefactID:       parsed,
		ConsentID:        &consentID,
		ConsentRequestID: &req.ID,
		PatientAbhaID:    req.PatientAbhaID,
		Purpose:          req.Purpose,
		HITypes:          req.HITypes,
		AccessMode:       req.AccessMode,
		FromTime:         req.FromTime,
		ToTime:           req.ToTime,
		Expiry:           req.Expiry,
		FrequencyUnit:    req.FrequencyUnit,
		FrequencyValue:   req.FrequencyValue,
		FrequencyRepeats: req.FrequencyRepeats,
		Status:           status,
	}
	return s.consents.UpsertArtefact(ctx, art)
}

// fetchArtefact asks the consent manager for the signed artefact detail.
func (s *Service) fetchArtefact(ctx context.Context, artefactID string) error {
	payload := consentFetchPayload{
		RequestID: uuid.NewString(),
		Timestamp: gateway.Timestamp(time.Now()),
		ConsentID: artefactID,
	}
	_, err := s.gw.Post(ctx, "/v0.5/consents/fetch", payload, gateway.Headers{})
	return err
}

// HandleOnConsentFetch overwrites the artefact skeleton with the signed
// detail and immediately requests the health information it covers.
func (s *Service) HandleOnConsentFetch(ctx context.Context, cb OnConsentFetchCallback) error {
	detail := cb.Consent.ConsentDetail
	if detail == nil {
		s.log.Warn().Str("request_id", cb.Resp.RequestID).Msg("consent on-fetch without detail")
		return nil
	}

	artefactID, err := uuid.Parse(detail.ConsentID)
	if err != nil {
		return fmt.Errorf("invalid consent id %q", detail.ConsentID)
	}
	art, err := s.consents.GetArtefactByArtefactID(ctx, artefactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("artefact_id", detail.ConsentID).Msg("consent on-fetch for unknown artefact")
			return ErrArtefactNotFound
		}
		return err
	}

	art.HIP = detail.HIP.ID
	art.HIU = detail.HIU.ID
	art.CM = detail.ConsentManager.ID
	art.Purpose = detail.Purpose.Code
	art.HITypes = detail.HITypes
	art.AccessMode = detail.Permission.AccessMode
	art.FromTime = parseTime(detail.Permission.DateRange.From)
	art.ToTime = parseTime(detail.Permission.DateRange.To)
	art.Expiry = parseTime(detail.Permission.DataEraseAt)
	art.FrequencyUnit = detail.Permission.Frequency.Unit
	art.FrequencyValue = detail.Permission.Frequency.Value
	art.FrequencyRepeats = detail.Permission.Frequency.Repeats
	art.Signature = cb.Consent.Signature
	if cb.Consent.Status != "" {
		art.Status = cb.Consent.Status
	}
	art.CareContexts = art.CareContexts[:0]
	for _, cc := range detail.CareContexts {
		art.CareContexts = append(art.CareContexts, consent.CareContext{
			PatientReference:     cc.PatientReference,
			CareContextReference: cc.CareContextReference,
		})
	}
	if err := s.consents.UpsertArtefact(ctx, art); err != nil {
		return err
	}
	if art.Status != consent.StatusGranted {
		return nil
	}
	return s.requestHealthInformation(ctx, art)
}

// RequestHealthInformation re-requests the data covered by an artefact,
// for hosts that want to pull again after the first transfer.
func (s *Service) RequestHealthInformation(ctx context.Context, artefactID uuid.UUID) error {
	art, err := s.consents.GetArtefactByArtefactID(ctx, artefactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrArtefactNotFound
		}
		return err
	}
	return s.requestHealthInformation(ctx, art)
}

// requestHealthInformation sends the data flow request. The fresh request
// id replaces the artefact's correlation key; the on-request callback will
// replace it again with the session's transaction id.
func (s *Service) requestHealthInformation(ctx context.Context, art *consent.ConsentArtefact) error {
	requestID := uuid.NewString()
	if err := s.consents.RebindArtefactCorrelation(ctx, art, requestID); err != nil {
		return err
	}

	payload := healthInfoRequestPayload{
		RequestID: requestID,
		Timestamp: gateway.Timestamp(time.Now()),
	}
	payload.HIRequest.Consent = idRef{ID: art.ArtefactID.String()}
	payload.HIRequest.DataPushURL = s.dataPushURL
	payload.HIRequest.KeyMaterial.CryptoAlg = art.KeyMaterialAlgorithm
	payload.HIRequest.KeyMaterial.Curve = art.KeyMaterialCurve
	payload.HIRequest.KeyMaterial.DHPublicKey.Expiry = gateway.Timestamp(art.Expiry)
	payload.HIRequest.KeyMaterial.DHPublicKey.Parameters = fmt.Sprintf("%s/%s", art.KeyMaterialCurve, art.KeyMaterialAlgorithm)
	payload.HIRequest.KeyMaterial.DHPublicKey.KeyValue = art.KeyMaterialPublicKey
	payload.HIRequest.KeyMaterial.Nonce = art.KeyMaterialNonce
	payload.HIRequest.DateRange = dateRange{
		From: gateway.Timestamp(art.FromTime),
		To:   gateway.Timestamp(art.ToTime),
	}

	_, err := s.gw.Post(ctx, "/v0.5/health-information/cm/request", payload, gateway.Headers{})
	return err
}

// HandleOnHealthInfoRequest swaps the correlation key from the request id
// to the transaction id the transfer will arrive under.
func (s *Service) HandleOnHealthInfoRequest(ctx context.Context, cb OnHealthInfoRequestCallback) error {
	art, err := s.consents.GetArtefactByConsentID(ctx, cb.Resp.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("request_id", cb.Resp.RequestID).Msg("health information on-request for unknown artefact")
			return ErrArtefactNotFound
		}
		return err
	}
	if cb.Error != nil {
		s.log.Warn().Str("artefact_id", art.ArtefactID.String()).Str("message", cb.Error.Message).Msg("health information request rejected")
		return nil
	}
	return s.consents.RebindArtefactCorrelation(ctx, art, cb.HIRequest.TransactionID)
}

// FindPatient asks the consent manager whether the patient is registered.
func (s *Service) FindPatient(ctx context.Context, abhaIdentifier string) error {
	a, err := s.abha.GetByIdentifier(ctx, abhaIdentifier)
	if err != nil {
		return fmt.Errorf("patient does not have an ABHA number on record")
	}
	hiuID, err := s.facility.FacilityID(ctx, a.HealthID)
	if err != nil {
		return fmt.Errorf("resolving facility for %s: %w", a.HealthID, err)
	}

	payload := patientsFindPayload{
		RequestID: uuid.NewString(),
		Timestamp: gateway.Timestamp(time.Now()),
	}
	payload.Query.Patient = idRef{ID: a.HealthID}
	payload.Query.Requester.Type = "HIU"
	payload.Query.Requester.ID = hiuID

	_, err = s.gw.Post(ctx, "/v0.5/patients/find", payload, gateway.Headers{})
	return err
}

// AuthenticateIdentity verifies the patient's ABHA identity with the
// consent manager. Unlike the consent flows this call answers in-band.
func (s *Service) AuthenticateIdentity(ctx context.Context, abhaIdentifier string) (*IdentityAuthResult, error) {
	a, err := s.abha.GetByIdentifier(ctx, abhaIdentifier)
	if err != nil {
		return nil, fmt.Errorf("patient does not have an ABHA number on record")
	}
	hiuID, err := s.facility.FacilityID(ctx, a.HealthID)
	if err != nil {
		return nil, fmt.Errorf("resolving facility for %s: %w", a.HealthID, err)
	}

	payload := identityAuthPayload{
		AbhaNumber:  strings.ReplaceAll(a.AbhaNumber, "-", ""),
		AbhaAddress: a.HealthID,
	}
	body, err := s.gw.Post(ctx, "/v3/identity/authentication", payload, gateway.Headers{RequestID: uuid.NewString(), HIUID: hiuID})
	if err != nil {
		return nil, err
	}

	var result IdentityAuthResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding identity authentication response: %w", err)
	}
	return &result, nil
}

// parseTime accepts the gateway's millisecond wire format as well as plain
// RFC 3339.
func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(gateway.TimestampFormat, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		return t
	}
	return time.Time{}
}
