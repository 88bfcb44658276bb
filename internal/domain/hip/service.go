package hip

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/cache"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

// OTP sessions live for five minutes, matching the expiry told to the
// consent manager. Pending link-token correlations use the configured
// correlation TTL instead.
const (
	linkOTPCachePrefix   = "abdm_user_initiated_linking__"
	linkTokenCachePrefix = "abdm_link_token__"
	linkSessionTTL       = 5 * time.Minute
)

// Sender posts payloads to the consent manager gateway.
type Sender interface {
	Post(ctx context.Context, path string, payload any, h gateway.Headers) ([]byte, error)
}

// Service implements the provider-side callbacks and the flows this
// facility initiates toward the consent manager.
type Service struct {
	abha       *abha.Service
	consents   *consent.Service
	gw         Sender
	store      cache.Store
	records    RecordSource
	pushClient *http.Client

	hipID          string
	threshold      float64
	correlationTTL time.Duration
	log            zerolog.Logger
}

func NewService(
	abhaSvc *abha.Service,
	consents *consent.Service,
	gw Sender,
	store cache.Store,
	records RecordSource,
	hipID string,
	threshold float64,
	correlationTTL time.Duration,
	log zerolog.Logger,
) *Service {
	if correlationTTL <= 0 {
		correlationTTL = 10 * time.Minute
	}
	return &Service{
		abha:           abhaSvc,
		consents:       consents,
		gw:             gw,
		store:          store,
		records:        records,
		pushClient:     &http.Client{Timeout: 30 * time.Second},
		hipID:          hipID,
		threshold:      threshold,
		correlationTTL: correlationTTL,
		log:            log,
	}
}

func (s *Service) headers(requestID string) gateway.Headers {
	return gateway.Headers{RequestID: requestID, HIPID: s.hipID}
}

// generateOTP returns a random six digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
