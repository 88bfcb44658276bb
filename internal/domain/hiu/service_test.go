package hiu

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/blobstore"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
)

// fakeSender records every payload posted to the gateway.
type fakeSender struct {
	mu    sync.Mutex
	calls []sentCall
}

type sentCall struct {
	Path    string
	Payload any
	Headers gateway.Headers
}

func (f *fakeSender) Post(_ context.Context, path string, payload any, h gateway.Headers) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{Path: path, Payload: payload, Headers: h})
	return []byte(`{}`), nil
}

func (f *fakeSender) byPath(path string) *sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.calls {
		if f.calls[i].Path == path {
			return &f.calls[i]
		}
	}
	return nil
}

type fakeAbhaRepo struct {
	abhas map[uuid.UUID]*abha.AbhaNumber
}

func newFakeAbhaRepo() *fakeAbhaRepo {
	return &fakeAbhaRepo{abhas: make(map[uuid.UUID]*abha.AbhaNumber)}
}

func (m *fakeAbhaRepo) Create(_ context.Context, a *abha.AbhaNumber) error {
	a.ID = uuid.New()
	cp := *a
	m.abhas[a.ID] = &cp
	return nil
}

func (m *fakeAbhaRepo) GetByID(_ context.Context, id uuid.UUID) (*abha.AbhaNumber, error) {
	if a, ok := m.abhas[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeAbhaRepo) GetByHealthID(_ context.Context, healthID string) (*abha.AbhaNumber, error) {
	for _, a := range m.abhas {
		if a.HealthID == healthID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeAbhaRepo) GetByAbhaNumber(_ context.Context, abhaNumber string) (*abha.AbhaNumber, error) {
	for _, a := range m.abhas {
		if a.AbhaNumber == abhaNumber {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeAbhaRepo) Update(_ context.Context, a *abha.AbhaNumber) error {
	cp := *a
	m.abhas[a.ID] = &cp
	return nil
}

func (m *fakeAbhaRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.abhas, id)
	return nil
}

func (m *fakeAbhaRepo) List(_ context.Context, limit, offset int) ([]*abha.AbhaNumber, int, error) {
	return nil, 0, nil
}

func (m *fakeAbhaRepo) ListByMobile(_ context.Context, mobile string) ([]*abha.AbhaNumber, error) {
	return nil, nil
}

func (m *fakeAbhaRepo) AddCareContext(_ context.Context, cc *abha.LinkedCareContext) error {
	cc.ID = uuid.New()
	return nil
}

func (m *fakeAbhaRepo) GetCareContext(_ context.Context, abhaNumberID uuid.UUID, reference string) (*abha.LinkedCareContext, error) {
	return nil, pgx.ErrNoRows
}

func (m *fakeAbhaRepo) ListCareContexts(_ context.Context, abhaNumberID uuid.UUID) ([]*abha.LinkedCareContext, error) {
	return nil, nil
}

func (m *fakeAbhaRepo) MarkCareContextLinked(_ context.Context, id uuid.UUID, linked bool) error {
	return nil
}

type fakeConsentRepo struct {
	requests  map[uuid.UUID]*consent.ConsentRequest
	artefacts map[uuid.UUID]*consent.ConsentArtefact
}

func newFakeConsentRepo() *fakeConsentRepo {
	return &fakeConsentRepo{
		requests:  make(map[uuid.UUID]*consent.ConsentRequest),
		artefacts: make(map[uuid.UUID]*consent.ConsentArtefact),
	}
}

func (m *fakeConsentRepo) CreateRequest(_ context.Context, req *consent.ConsentRequest) error {
	req.ID = uuid.New()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *fakeConsentRepo) GetRequestByID(_ context.Context, id uuid.UUID) (*consent.ConsentRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) GetRequestByExternalID(_ context.Context, externalID uuid.UUID) (*consent.ConsentRequest, error) {
	for _, r := range m.requests {
		if r.ExternalID == externalID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) GetRequestByConsentID(_ context.Context, consentID string) (*consent.ConsentRequest, error) {
	for _, r := range m.requests {
		if r.ConsentID != nil && *r.ConsentID == consentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) UpdateRequest(_ context.Context, req *consent.ConsentRequest) error {
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *fakeConsentRepo) ListRequests(_ context.Context, limit, offset int) ([]*consent.ConsentRequest, int, error) {
	return nil, 0, nil
}

func (m *fakeConsentRepo) ListRequestsByPatient(_ context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*consent.ConsentRequest, int, error) {
	return nil, 0, nil
}

func (m *fakeConsentRepo) CreateArtefact(_ context.Context, art *consent.ConsentArtefact) error {
	art.ID = uuid.New()
	cp := *art
	m.artefacts[art.ID] = &cp
	return nil
}

func (m *fakeConsentRepo) GetArtefactByID(_ context.Context, id uuid.UUID) (*consent.ConsentArtefact, error) {
	if a, ok := m.artefacts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) GetArtefactByArtefactID(_ context.Context, artefactID uuid.UUID) (*consent.ConsentArtefact, error) {
	for _, a := range m.artefacts {
		if a.ArtefactID == artefactID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) GetArtefactByConsentID(_ context.Context, consentID string) (*consent.ConsentArtefact, error) {
	for _, a := range m.artefacts {
		if a.ConsentID != nil && *a.ConsentID == consentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *fakeConsentRepo) UpdateArtefact(_ context.Context, art *consent.ConsentArtefact) error {
	cp := *art
	m.artefacts[art.ID] = &cp
	return nil
}

func (m *fakeConsentRepo) ListArtefactsByRequest(_ context.Context, requestID uuid.UUID) ([]*consent.ConsentArtefact, error) {
	var out []*consent.ConsentArtefact
	for _, a := range m.artefacts {
		if a.ConsentRequestID != nil && *a.ConsentRequestID == requestID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *fakeConsentRepo) ListArtefactsByPatient(_ context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*consent.ConsentArtefact, int, error) {
	return nil, 0, nil
}

type testEnv struct {
	svc      *Service
	sender   *fakeSender
	abhaRepo *fakeAbhaRepo
	consents *fakeConsentRepo
	files    *blobstore.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sender := &fakeSender{}
	abhaRepo := newFakeAbhaRepo()
	consentRepo := newFakeConsentRepo()
	files := blobstore.NewInMemoryStore()

	abhaSvc := abha.NewService(abhaRepo)
	consentSvc := consent.NewService(consentRepo, files, zerolog.Nop())
	svc := NewService(
		abhaSvc,
		consentSvc,
		sender,
		files,
		gateway.StaticFacilityDirectory{ID: "HIU-1"},
		"https://hiu.example.com"+transferPath,
		zerolog.Nop(),
	)

	return &testEnv{
		svc:      svc,
		sender:   sender,
		abhaRepo: abhaRepo,
		consents: consentRepo,
		files:    files,
	}
}

func (e *testEnv) seedPatient(t *testing.T) *abha.AbhaNumber {
	t.Helper()
	a := &abha.AbhaNumber{
		HealthID:   "sita@sbx",
		AbhaNumber: "91-1234-5678-9012",
		Name:       "Sita Devi",
		Gender:     "F",
		Mobile:     "9876500001",
	}
	if err := e.abhaRepo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed abha: %v", err)
	}
	return a
}

// seedRequest creates a registered consent request, as it stands after the
// on-init callback.
func (e *testEnv) seedRequest(t *testing.T, patientID uuid.UUID) *consent.ConsentRequest {
	t.Helper()
	consentID := uuid.NewString()
	req := &consent.ConsentRequest{
		PatientAbhaID: patientID,
		HITypes:       []string{"DischargeSummary"},
		RequesterName: "Dr Rao",
	}
	if err := e.svc.consents.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	if err := e.svc.consents.AssignConsentID(context.Background(), req, consentID); err != nil {
		t.Fatalf("assign consent id: %v", err)
	}
	return req
}
