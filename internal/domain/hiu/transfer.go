package hiu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/blobstore"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/fidelius"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

// HandleTransfer receives one page of health information pushed by a
// provider, decrypts it with the artefact's key material and stores the
// readable entries. A tampered entry fails its GCM tag check and is
// skipped; the page only counts as FAILED when nothing on it could be
// decrypted.
func (s *Service) HandleTransfer(ctx context.Context, req TransferRequest) error {
	art, err := s.consents.GetArtefactByConsentID(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("transaction_id", req.TransactionID).Msg("transfer for unknown session")
			return ErrArtefactNotFound
		}
		return err
	}

	receiver := &fidelius.KeyMaterial{
		PrivateKey: art.KeyMaterialPrivateKey,
		PublicKey:  art.KeyMaterialPublicKey,
		Nonce:      art.KeyMaterialNonce,
	}
	senderKey := req.KeyMaterial.DHPublicKey.KeyValue
	senderNonce := req.KeyMaterial.Nonce

	received := []receivedEntry{}
	attempted := 0
	for _, entry := range req.Entries {
		if entry.Link != "" {
			// Linked entries live on the provider's side; only inline
			// content is decrypted and stored.
			s.log.Info().Str("care_context", entry.CareContextReference).Msg("skipping linked transfer entry")
			continue
		}
		if entry.Content == "" {
			continue
		}
		attempted++

		plain, err := fidelius.Decrypt(receiver, senderKey, senderNonce, entry.Content)
		if err != nil {
			s.log.Error().Err(err).Str("care_context", entry.CareContextReference).Msg("decrypting transfer entry failed")
			continue
		}
		received = append(received, receivedEntry{
			CareContextReference: entry.CareContextReference,
			Content:              plain,
		})
	}

	// Every page is persisted, an empty one as an empty array, so the
	// stored files always account for the full pageCount.
	if err := s.storePage(ctx, art, req, received); err != nil {
		return err
	}

	sessionStatus := consent.SessionTransferred
	if attempted > 0 && len(received) == 0 {
		sessionStatus = consent.SessionFailed
	}
	s.notifyTransfer(ctx, art, req.TransactionID, sessionStatus)
	return nil
}

// storePage persists the decrypted page under the artefact.
func (s *Service) storePage(ctx context.Context, art *consent.ConsentArtefact, req TransferRequest, entries []receivedEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding received page: %w", err)
	}

	meta := blobstore.FileMetadata{
		FileName:    blobstore.FileName(req.PageNumber, req.PageCount, art.ArtefactID.String()),
		ArtefactID:  art.ArtefactID.String(),
		PageNumber:  req.PageNumber,
		PageCount:   req.PageCount,
		ContentType: "application/json",
	}
	if _, err := s.files.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storing received page: %w", err)
	}
	return nil
}

// notifyTransfer reports the session outcome back to the consent manager.
func (s *Service) notifyTransfer(ctx context.Context, art *consent.ConsentArtefact, transactionID, sessionStatus string) {
	hiuID := art.HIU
	if hiuID == "" {
		if patient, err := s.abha.GetAbhaNumber(ctx, art.PatientAbhaID); err == nil {
			hiuID, _ = s.facility.FacilityID(ctx, patient.HealthID)
		}
	}

	payload := healthInfoNotifyPayload{
		RequestID: uuid.NewString(),
		Timestamp: gateway.Timestamp(time.Now()),
	}
	payload.Notification.ConsentID = art.ArtefactID.String()
	payload.Notification.TransactionID = transactionID
	payload.Notification.DoneAt = gateway.Timestamp(time.Now())
	payload.Notification.Notifier.Type = "HIU"
	payload.Notification.Notifier.ID = hiuID
	payload.Notification.StatusNotification.SessionStatus = sessionStatus
	payload.Notification.StatusNotification.HIPID = art.HIP

	if _, err := s.gw.Post(ctx, "/v0.5/health-information/notify", payload, gateway.Headers{}); err != nil {
		s.log.Error().Err(err).Str("transaction_id", transactionID).Msg("health information notify failed")
	}
}
