package hip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RecordSource produces the FHIR bundle for one care context. The facility
// backend owns the clinical data; the exchange only encrypts and ships it.
type RecordSource interface {
	Bundle(ctx context.Context, patientRef, careContextRef string, hiTypes []string) ([]byte, error)
}

type bundleRequest struct {
	PatientReference     string   `json:"patientReference"`
	CareContextReference string   `json:"careContextReference"`
	HITypes              []string `json:"hiTypes"`
}

// HTTPRecordSource fetches bundles from the facility backend.
type HTTPRecordSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRecordSource(baseURL string, timeout time.Duration) *HTTPRecordSource {
	return &HTTPRecordSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPRecordSource) Bundle(ctx context.Context, patientRef, careContextRef string, hiTypes []string) ([]byte, error) {
	body, err := json.Marshal(bundleRequest{
		PatientReference:     patientRef,
		CareContextReference: careContextRef,
		HITypes:              hiTypes,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v0.5/health-records/bundle", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle for %s: %w", careContextRef, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("read bundle for %s: %w", careContextRef, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned %d for care context %s", resp.StatusCode, careContextRef)
	}
	return data, nil
}
