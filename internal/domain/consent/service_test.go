package consent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	requests  map[uuid.UUID]*ConsentRequest
	artefacts map[uuid.UUID]*ConsentArtefact
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		requests:  make(map[uuid.UUID]*ConsentRequest),
		artefacts: make(map[uuid.UUID]*ConsentArtefact),
	}
}

func (m *mockRepo) CreateRequest(_ context.Context, req *ConsentRequest) error {
	req.ID = uuid.New()
	if req.ExternalID == uuid.Nil {
		req.ExternalID = uuid.New()
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRepo) GetRequestByID(_ context.Context, id uuid.UUID) (*ConsentRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetRequestByExternalID(_ context.Context, externalID uuid.UUID) (*ConsentRequest, error) {
	for _, r := range m.requests {
		if r.ExternalID == externalID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetRequestByConsentID(_ context.Context, consentID string) (*ConsentRequest, error) {
	for _, r := range m.requests {
		if r.ConsentID != nil && *r.ConsentID == consentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) UpdateRequest(_ context.Context, req *ConsentRequest) error {
	if _, ok := m.requests[req.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRepo) ListRequests(_ context.Context, limit, offset int) ([]*ConsentRequest, int, error) {
	var out []*ConsentRequest
	for _, r := range m.requests {
		cp := *r
		out = append(out, &cp)
	}
	return out, len(m.requests), nil
}

func (m *mockRepo) ListRequestsByPatient(_ context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentRequest, int, error) {
	var out []*ConsentRequest
	for _, r := range m.requests {
		if r.PatientAbhaID == patientAbhaID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateArtefact(_ context.Context, art *ConsentArtefact) error {
	art.ID = uuid.New()
	cp := *art
	m.artefacts[art.ID] = &cp
	return nil
}

func (m *mockRepo) GetArtefactByID(_ context.Context, id uuid.UUID) (*ConsentArtefact, error) {
	if a, ok := m.artefacts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetArtefactByArtefactID(_ context.Context, artefactID uuid.UUID) (*ConsentArtefact, error) {
	for _, a := range m.artefacts {
		if a.ArtefactID == artefactID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetArtefactByConsentID(_ context.Context, consentID string) (*ConsentArtefact, error) {
	for _, a := range m.artefacts {
		if a.ConsentID != nil && *a.ConsentID == consentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) UpdateArtefact(_ context.Context, art *ConsentArtefact) error {
	if _, ok := m.artefacts[art.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *art
	m.artefacts[art.ID] = &cp
	return nil
}

func (m *mockRepo) ListArtefactsByRequest(_ context.Context, requestID uuid.UUID) ([]*ConsentArtefact, error) {
	var out []*ConsentArtefact
	for _, a := range m.artefacts {
		if a.ConsentRequestID != nil && *a.ConsentRequestID == requestID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ListArtefactsByPatient(_ context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentArtefact, int, error) {
	var out []*ConsentArtefact
	for _, a := range m.artefacts {
		if a.PatientAbhaID == patientAbhaID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type stubArchiver struct {
	archived []string
}

func (s *stubArchiver) Archive(_ context.Context, artefactID string) (int, error) {
	s.archived = append(s.archived, artefactID)
	return 1, nil
}

func newTestService() (*Service, *mockRepo, *stubArchiver) {
	repo := newMockRepo()
	files := &stubArchiver{}
	return NewService(repo, files, zerolog.Nop()), repo, files
}

func TestCreateRequest_AppliesDefaults(t *testing.T) {
	svc, repo, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription"},
	}
	if err := svc.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("create request: %v", err)
	}

	stored := repo.requests[req.ID]
	if stored.Status != StatusRequested {
		t.Errorf("expected REQUESTED, got %s", stored.Status)
	}
	if stored.Purpose != PurposeCareManagement {
		t.Errorf("expected default purpose, got %s", stored.Purpose)
	}
	if stored.ExternalID == uuid.Nil {
		t.Error("expected external id to be assigned")
	}
}

func TestCreateRequest_RejectsUnknownPurpose(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		Purpose:       "GOSSIP",
		HITypes:       []string{"Prescription"},
	}
	if err := svc.CreateRequest(context.Background(), req); err == nil {
		t.Fatal("expected unknown purpose to be rejected")
	}
}

func TestCreateRequest_RejectsUnknownHIType(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription", "Horoscope"},
	}
	if err := svc.CreateRequest(context.Background(), req); err == nil {
		t.Fatal("expected unknown hi type to be rejected")
	}
}

func TestCreateRequest_RequiresHITypes(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{PatientAbhaID: uuid.New()}
	if err := svc.CreateRequest(context.Background(), req); err == nil {
		t.Fatal("expected empty hi types to be rejected")
	}
}

func TestCreateRequest_AllowsSingleInstantRange(t *testing.T) {
	svc, _, _ := newTestService()

	at := time.Now().Add(-time.Hour)
	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription"},
		FromTime:      at,
		ToTime:        at,
		Expiry:        time.Now().Add(24 * time.Hour),
	}
	if err := svc.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("from == to must be accepted: %v", err)
	}
}

func TestCreateRequest_RejectsReversedRange(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription"},
		FromTime:      time.Now(),
		ToTime:        time.Now().Add(-time.Hour),
		Expiry:        time.Now().Add(24 * time.Hour),
	}
	if err := svc.CreateRequest(context.Background(), req); err == nil {
		t.Fatal("expected reversed range to be rejected")
	}
}

func TestCreateRequest_RejectsExpiryBeforeRangeEnd(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription"},
		FromTime:      time.Now().Add(-48 * time.Hour),
		ToTime:        time.Now().Add(48 * time.Hour),
		Expiry:        time.Now().Add(time.Hour),
	}
	if err := svc.CreateRequest(context.Background(), req); err == nil {
		t.Fatal("expected expiry before range end to be rejected")
	}
}

func TestUpdateRequestStatus_GuardsTransitions(t *testing.T) {
	svc, _, _ := newTestService()

	req := &ConsentRequest{
		PatientAbhaID: uuid.New(),
		HITypes:       []string{"Prescription"},
	}
	if err := svc.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := svc.UpdateRequestStatus(context.Background(), req, StatusGranted); err != nil {
		t.Fatalf("requested to granted should succeed: %v", err)
	}
	if err := svc.UpdateRequestStatus(context.Background(), req, StatusRequested); err == nil {
		t.Fatal("granted back to requested should fail")
	}
}

func TestUpsertArtefact_GeneratesKeyMaterialOnce(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	art := &ConsentArtefact{
		ArtefactID:    uuid.New(),
		PatientAbhaID: uuid.New(),
		Purpose:       PurposeCareManagement,
		HITypes:       []string{"Prescription"},
		AccessMode:    AccessModeView,
		FromTime:      time.Now().Add(-time.Hour),
		ToTime:        time.Now(),
		Expiry:        time.Now().Add(time.Hour),
	}
	if err := svc.UpsertArtefact(ctx, art); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if art.KeyMaterialPrivateKey == "" || art.KeyMaterialPublicKey == "" || art.KeyMaterialNonce == "" {
		t.Fatal("expected key material to be generated")
	}
	firstKey := art.KeyMaterialPrivateKey

	// Re-notification carries no key material; the stored one survives.
	again := &ConsentArtefact{
		ArtefactID:    art.ArtefactID,
		PatientAbhaID: art.PatientAbhaID,
		Purpose:       art.Purpose,
		HITypes:       art.HITypes,
		AccessMode:    art.AccessMode,
		Status:        StatusGranted,
	}
	if err := svc.UpsertArtefact(ctx, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.KeyMaterialPrivateKey != firstKey {
		t.Error("expected stored key material to be preserved on update")
	}
	if len(repo.artefacts) != 1 {
		t.Errorf("expected a single artefact row, got %d", len(repo.artefacts))
	}
}

func TestUpsertArtefact_RejectsInvalidTransition(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	art := &ConsentArtefact{
		ArtefactID:    uuid.New(),
		PatientAbhaID: uuid.New(),
		Status:        StatusRevoked,
	}
	if err := svc.UpsertArtefact(ctx, art); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	back := &ConsentArtefact{ArtefactID: art.ArtefactID, PatientAbhaID: art.PatientAbhaID, Status: StatusGranted}
	if err := svc.UpsertArtefact(ctx, back); err == nil {
		t.Fatal("revoked back to granted should fail")
	}
}

func TestUpdateArtefactStatus_ArchivesOnRevoked(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	art := &ConsentArtefact{
		ArtefactID:    uuid.New(),
		PatientAbhaID: uuid.New(),
		Status:        StatusGranted,
	}
	if err := svc.UpsertArtefact(ctx, art); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(files.archived) != 0 {
		t.Fatal("granted consent should not archive files")
	}

	if err := svc.UpdateArtefactStatus(ctx, art, StatusRevoked); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(files.archived) != 1 || files.archived[0] != art.ArtefactID.String() {
		t.Errorf("expected files archived for %s, got %v", art.ArtefactID, files.archived)
	}
}

func TestUpdateArtefactStatus_DeniedDoesNotArchive(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	art := &ConsentArtefact{
		ArtefactID:    uuid.New(),
		PatientAbhaID: uuid.New(),
		Status:        StatusRequested,
	}
	if err := svc.UpsertArtefact(ctx, art); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.UpdateArtefactStatus(ctx, art, StatusDenied); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if len(files.archived) != 0 {
		t.Errorf("denied consent should not archive files, got %v", files.archived)
	}
}
