package hip

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/fidelius"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

var (
	ErrPatientNotKnown = errors.New("patient not known to this facility")
	ErrConsentNotFound = errors.New("consent artefact not found")
)

// transferTimeout bounds one full transfer: bundle assembly, encryption,
// push and the closing notify.
const transferTimeout = 2 * time.Minute

// HandleConsentNotify records the consent artefact this facility was
// granted (or its revocation) and acknowledges the notification.
func (s *Service) HandleConsentNotify(ctx context.Context, req ConsentNotifyRequest, callbackRequestID string) error {
	notification := req.Notification

	if detail := notification.ConsentDetail; detail != nil {
		patient, err := s.abha.GetByIdentifier(ctx, detail.Patient.ID)
		if err != nil {
			s.log.Warn().Str("abha_address", detail.Patient.ID).Msg("consent notify for unknown patient")
			return ErrPatientNotKnown
		}

		artefactID, err := uuid.Parse(notification.ConsentID)
		if err != nil {
			return fmt.Errorf("invalid consent id %q", notification.ConsentID)
		}

		consentID := notification.ConsentID
		art := &consent.ConsentArtefact{
			ArtefactID:       artefactID,
			ConsentID:        &consentID,
			PatientAbhaID:    patient.ID,
			Purpose:          detail.Purpose.Code,
			HITypes:          detail.HITypes,
			AccessMode:       detail.Permission.AccessMode,
			HIP:              detail.HIP.ID,
			HIU:              detail.HIU.ID,
			CM:               detail.ConsentManager.ID,
			FromTime:         parseTime(detail.Permission.DateRange.From),
			ToTime:           parseTime(detail.Permission.DateRange.To),
			Expiry:           parseTime(detail.Permission.DataEraseAt),
			FrequencyUnit:    detail.Permission.Frequency.Unit,
			FrequencyValue:   detail.Permission.Frequency.Value,
			FrequencyRepeats: detail.Permission.Frequency.Repeats,
			Status:           notification.Status,
			Signature:        notification.Signature,
		}
		for _, cc := range detail.CareContexts {
			art.CareContexts = append(art.CareContexts, consent.CareContext{
				PatientReference:     cc.PatientReference,
				CareContextReference: cc.CareContextReference,
			})
		}
		if err := s.consents.UpsertArtefact(ctx, art); err != nil {
			return err
		}
	}

	ack := onConsentNotifyPayload{
		Acknowledgement: consentAcknowledgement{Status: "OK", ConsentID: notification.ConsentID},
		Response:        responseRef{RequestID: callbackRequestID},
	}
	_, err := s.gw.Post(ctx, "/v3/consent/request/hip/on-notify", ack, s.headers(uuid.NewString()))
	return err
}

// HandleHealthInfoRequest acknowledges a data request and kicks off the
// transfer in the background. The artefact must be on record; everything
// else is validated inside the transfer so failures surface as a FAILED
// session notification rather than a dropped callback.
func (s *Service) HandleHealthInfoRequest(ctx context.Context, req HealthInfoRequest, callbackRequestID string) error {
	art, err := s.consents.GetArtefactByConsentID(ctx, req.HIRequest.Consent.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("consent_id", req.HIRequest.Consent.ID).Msg("data request for unknown consent")
			return ErrConsentNotFound
		}
		return err
	}

	ack := onHealthInfoRequestPayload{Response: responseRef{RequestID: callbackRequestID}}
	ack.HIRequest.TransactionID = req.TransactionID
	ack.HIRequest.SessionStatus = consent.SessionAcknowledged
	if _, err := s.gw.Post(ctx, "/v3/data-flow/health-information/hip/on-request", ack, s.headers(uuid.NewString())); err != nil {
		return err
	}

	go func() {
		tctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
		defer cancel()
		s.transfer(tctx, art, req)
	}()
	return nil
}

// transfer assembles, encrypts and pushes every care context bundle, then
// notifies the session outcome.
func (s *Service) transfer(ctx context.Context, art *consent.ConsentArtefact, req HealthInfoRequest) {
	var (
		entries   []transferEntry
		statuses  []statusResponse
		succeeded int
	)

	if reason := s.validateRequest(art, req); reason != "" {
		s.log.Warn().Str("consent_id", req.HIRequest.Consent.ID).Str("reason", reason).Msg("rejecting data request")
		s.notify(ctx, art, req.TransactionID, consent.SessionFailed, []statusResponse{})
		return
	}

	sender, err := fidelius.GenerateKeyMaterial()
	if err != nil {
		s.log.Error().Err(err).Msg("generating transfer key material failed")
		s.notify(ctx, art, req.TransactionID, consent.SessionFailed, nil)
		return
	}

	receiverKey := req.HIRequest.KeyMaterial.DHPublicKey.KeyValue
	receiverNonce := req.HIRequest.KeyMaterial.Nonce

	for _, cc := range art.CareContexts {
		status := statusResponse{CareContextReference: cc.CareContextReference, HIStatus: "OK", Description: "Transferred"}

		bundle, err := s.records.Bundle(ctx, cc.PatientReference, cc.CareContextReference, art.HITypes)
		if err == nil {
			var encrypted string
			encrypted, err = fidelius.Encrypt(sender, receiverKey, receiverNonce, string(bundle))
			if err == nil {
				entries = append(entries, transferEntry{
					Content:              encrypted,
					Media:                "application/fhir+json",
					Checksum:             fmt.Sprintf("%x", md5.Sum(bundle)),
					CareContextReference: cc.CareContextReference,
				})
				succeeded++
			}
		}
		if err != nil {
			s.log.Error().Err(err).Str("care_context", cc.CareContextReference).Msg("preparing care context bundle failed")
			status.HIStatus = "ERRORED"
			status.Description = err.Error()
		}
		statuses = append(statuses, status)
	}

	sessionStatus := consent.SessionTransferred
	if succeeded == 0 || s.push(ctx, req, sender, entries) != nil {
		sessionStatus = consent.SessionFailed
	}
	s.notify(ctx, art, req.TransactionID, sessionStatus, statuses)
}

// validateRequest enforces the consent's bounds before any data moves.
// Returns a human readable reason when the request must be refused.
func (s *Service) validateRequest(art *consent.ConsentArtefact, req HealthInfoRequest) string {
	now := time.Now().UTC()
	if art.Status != consent.StatusGranted {
		return fmt.Sprintf("consent is %s", art.Status)
	}
	if !art.Expiry.IsZero() && !art.Expiry.After(now) {
		return "consent has expired"
	}

	from := parseTime(req.HIRequest.DateRange.From)
	to := parseTime(req.HIRequest.DateRange.To)
	if !from.IsZero() && !art.FromTime.IsZero() && from.Before(art.FromTime) {
		return "requested range starts before the granted range"
	}
	if !to.IsZero() && !art.ToTime.IsZero() && to.After(art.ToTime) {
		return "requested range ends after the granted range"
	}
	return ""
}

// push posts the encrypted page to the requester's data push URL. The push
// endpoint is not the gateway, so no session token is attached.
func (s *Service) push(ctx context.Context, req HealthInfoRequest, sender *fidelius.KeyMaterial, entries []transferEntry) error {
	payload := transferPayload{
		PageNumber:    1,
		PageCount:     1,
		TransactionID: req.TransactionID,
		Entries:       entries,
	}
	payload.KeyMaterial.CryptoAlg = fidelius.Algorithm
	payload.KeyMaterial.Curve = fidelius.Curve
	payload.KeyMaterial.DHPublicKey.Expiry = gateway.Timestamp(time.Now().Add(30 * time.Minute))
	payload.KeyMaterial.DHPublicKey.Parameters = fmt.Sprintf("%s/%s", fidelius.Curve, fidelius.Algorithm)
	payload.KeyMaterial.DHPublicKey.KeyValue = sender.PublicKey
	payload.KeyMaterial.Nonce = sender.Nonce

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.HIRequest.DataPushURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.pushClient.Do(httpReq)
	if err != nil {
		s.log.Error().Err(err).Str("url", req.HIRequest.DataPushURL).Msg("health information push failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("push endpoint returned %d", resp.StatusCode)
		s.log.Error().Err(err).Str("url", req.HIRequest.DataPushURL).Msg("health information push failed")
		return err
	}
	return nil
}

// notify reports the session outcome on the v0.5 notify endpoint.
func (s *Service) notify(ctx context.Context, art *consent.ConsentArtefact, transactionID, sessionStatus string, statuses []statusResponse) {
	payload := healthInfoNotifyPayload{
		RequestID: uuid.NewString(),
		Timestamp: gateway.Timestamp(time.Now()),
	}
	payload.Notification.ConsentID = art.ArtefactID.String()
	payload.Notification.TransactionID = transactionID
	payload.Notification.DoneAt = gateway.Timestamp(time.Now())
	payload.Notification.Notifier.Type = "HIP"
	payload.Notification.Notifier.ID = s.hipID
	payload.Notification.StatusNotification.SessionStatus = sessionStatus
	payload.Notification.StatusNotification.HIPID = s.hipID
	payload.Notification.StatusNotification.StatusResponses = statuses

	if _, err := s.gw.Post(ctx, "/v0.5/health-information/notify", payload, s.headers("")); err != nil {
		s.log.Error().Err(err).Str("transaction_id", transactionID).Msg("health information notify failed")
	}
}

// parseTime accepts the gateway's millisecond wire format as well as plain
// RFC 3339, which some consent managers send.
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
