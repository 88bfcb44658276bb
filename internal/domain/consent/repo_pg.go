package consent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohcnetwork/abdm-gateway/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reqCols = `id, external_id, consent_id, patient_abha_id,
	purpose, hi_types, access_mode,
	from_time, to_time, expiry,
	frequency_unit, frequency_value, frequency_repeats,
	status, requester_name, requester_identifier,
	created_at, updated_at`

func (r *repoPG) CreateRequest(ctx context.Context, req *ConsentRequest) error {
	req.ID = uuid.New()
	if req.ExternalID == uuid.Nil {
		req.ExternalID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_request (
			id, external_id, consent_id, patient_abha_id,
			purpose, hi_types, access_mode,
			from_time, to_time, expiry,
			frequency_unit, frequency_value, frequency_repeats,
			status, requester_name, requester_identifier
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
		)`,
		req.ID, req.ExternalID, req.ConsentID, req.PatientAbhaID,
		req.Purpose, req.HITypes, req.AccessMode,
		req.FromTime, req.ToTime, req.Expiry,
		req.FrequencyUnit, req.FrequencyValue, req.FrequencyRepeats,
		req.Status, req.RequesterName, req.RequesterIdentifier,
	)
	return err
}

func (r *repoPG) GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM consent_request WHERE id = $1`, id))
}

func (r *repoPG) GetRequestByExternalID(ctx context.Context, externalID uuid.UUID) (*ConsentRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM consent_request WHERE external_id = $1`, externalID))
}

func (r *repoPG) GetRequestByConsentID(ctx context.Context, consentID string) (*ConsentRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM consent_request WHERE consent_id = $1`, consentID))
}

func (r *repoPG) UpdateRequest(ctx context.Context, req *ConsentRequest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_request SET
			consent_id=$2, purpose=$3, hi_types=$4, access_mode=$5,
			from_time=$6, to_time=$7, expiry=$8,
			frequency_unit=$9, frequency_value=$10, frequency_repeats=$11,
			status=$12, requester_name=$13, requester_identifier=$14, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.ConsentID, req.Purpose, req.HITypes, req.AccessMode,
		req.FromTime, req.ToTime, req.Expiry,
		req.FrequencyUnit, req.FrequencyValue, req.FrequencyRepeats,
		req.Status, req.RequesterName, req.RequesterIdentifier,
	)
	return err
}

func (r *repoPG) ListRequests(ctx context.Context, limit, offset int) ([]*ConsentRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent_request`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reqCols+` FROM consent_request ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectRequests(rows, total)
}

func (r *repoPG) ListRequestsByPatient(ctx context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent_request WHERE patient_abha_id = $1`, patientAbhaID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reqCols+` FROM consent_request WHERE patient_abha_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientAbhaID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectRequests(rows, total)
}

const artCols = `id, artefact_id, consent_id, consent_request_id, patient_abha_id,
	purpose, hi_types, access_mode, care_contexts,
	hip, hiu, cm,
	from_time, to_time, expiry,
	frequency_unit, frequency_value, frequency_repeats,
	status,
	key_material_algorithm, key_material_curve, key_material_public_key,
	key_material_private_key, key_material_nonce, signature,
	created_at, updated_at`

func (r *repoPG) CreateArtefact(ctx context.Context, art *ConsentArtefact) error {
	art.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_artefact (
			id, artefact_id, consent_id, consent_request_id, patient_abha_id,
			purpose, hi_types, access_mode, care_contexts,
			hip, hiu, cm,
			from_time, to_time, expiry,
			frequency_unit, frequency_value, frequency_repeats,
			status,
			key_material_algorithm, key_material_curve, key_material_public_key,
			key_material_private_key, key_material_nonce, signature
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25
		)`,
		art.ID, art.ArtefactID, art.ConsentID, art.ConsentRequestID, art.PatientAbhaID,
		art.Purpose, art.HITypes, art.AccessMode, art.CareContexts,
		art.HIP, art.HIU, art.CM,
		art.FromTime, art.ToTime, art.Expiry,
		art.FrequencyUnit, art.FrequencyValue, art.FrequencyRepeats,
		art.Status,
		art.KeyMaterialAlgorithm, art.KeyMaterialCurve, art.KeyMaterialPublicKey,
		art.KeyMaterialPrivateKey, art.KeyMaterialNonce, art.Signature,
	)
	return err
}

func (r *repoPG) GetArtefactByID(ctx context.Context, id uuid.UUID) (*ConsentArtefact, error) {
	return scanArtefact(r.conn(ctx).QueryRow(ctx, `SELECT `+artCols+` FROM consent_artefact WHERE id = $1`, id))
}

func (r *repoPG) GetArtefactByArtefactID(ctx context.Context, artefactID uuid.UUID) (*ConsentArtefact, error) {
	return scanArtefact(r.conn(ctx).QueryRow(ctx, `SELECT `+artCols+` FROM consent_artefact WHERE artefact_id = $1`, artefactID))
}

func (r *repoPG) GetArtefactByConsentID(ctx context.Context, consentID string) (*ConsentArtefact, error) {
	return scanArtefact(r.conn(ctx).QueryRow(ctx, `SELECT `+artCols+` FROM consent_artefact WHERE consent_id = $1`, consentID))
}

func (r *repoPG) UpdateArtefact(ctx context.Context, art *ConsentArtefact) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_artefact SET
			consent_id=$2, consent_request_id=$3,
			purpose=$4, hi_types=$5, access_mode=$6, care_contexts=$7,
			hip=$8, hiu=$9, cm=$10,
			from_time=$11, to_time=$12, expiry=$13,
			frequency_unit=$14, frequency_value=$15, frequency_repeats=$16,
			status=$17,
			key_material_algorithm=$18, key_material_curve=$19, key_material_public_key=$20,
			key_material_private_key=$21, key_material_nonce=$22, signature=$23,
			updated_at=NOW()
		WHERE id = $1`,
		art.ID, art.ConsentID, art.ConsentRequestID,
		art.Purpose, art.HITypes, art.AccessMode, art.CareContexts,
		art.HIP, art.HIU, art.CM,
		art.FromTime, art.ToTime, art.Expiry,
		art.FrequencyUnit, art.FrequencyValue, art.FrequencyRepeats,
		art.Status,
		art.KeyMaterialAlgorithm, art.KeyMaterialCurve, art.KeyMaterialPublicKey,
		art.KeyMaterialPrivateKey, art.KeyMaterialNonce, art.Signature,
	)
	return err
}

func (r *repoPG) ListArtefactsByRequest(ctx context.Context, requestID uuid.UUID) ([]*ConsentArtefact, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+artCols+` FROM consent_artefact WHERE consent_request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	arts, _, err := collectArtefacts(rows, 0)
	return arts, err
}

func (r *repoPG) ListArtefactsByPatient(ctx context.Context, patientAbhaID uuid.UUID, limit, offset int) ([]*ConsentArtefact, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent_artefact WHERE patient_abha_id = $1`, patientAbhaID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+artCols+` FROM consent_artefact WHERE patient_abha_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientAbhaID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectArtefacts(rows, total)
}

func scanRequest(row pgx.Row) (*ConsentRequest, error) {
	var c ConsentRequest
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.ConsentID, &c.PatientAbhaID,
		&c.Purpose, &c.HITypes, &c.AccessMode,
		&c.FromTime, &c.ToTime, &c.Expiry,
		&c.FrequencyUnit, &c.FrequencyValue, &c.FrequencyRepeats,
		&c.Status, &c.RequesterName, &c.RequesterIdentifier,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectRequests(rows pgx.Rows, total int) ([]*ConsentRequest, int, error) {
	var reqs []*ConsentRequest
	for rows.Next() {
		var c ConsentRequest
		err := rows.Scan(
			&c.ID, &c.ExternalID, &c.ConsentID, &c.PatientAbhaID,
			&c.Purpose, &c.HITypes, &c.AccessMode,
			&c.FromTime, &c.ToTime, &c.Expiry,
			&c.FrequencyUnit, &c.FrequencyValue, &c.FrequencyRepeats,
			&c.Status, &c.RequesterName, &c.RequesterIdentifier,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, &c)
	}
	return reqs, total, nil
}

func scanArtefact(row pgx.Row) (*ConsentArtefact, error) {
	var a ConsentArtefact
	err := row.Scan(
		&a.ID, &a.ArtefactID, &a.ConsentID, &a.ConsentRequestID, &a.PatientAbhaID,
		&a.Purpose, &a.HITypes, &a.AccessMode, &a.CareContexts,
		&a.HIP, &a.HIU, &a.CM,
		&a.FromTime, &a.ToTime, &a.Expiry,
		&a.FrequencyUnit, &a.FrequencyValue, &a.FrequencyRepeats,
		&a.Status,
		&a.KeyMaterialAlgorithm, &a.KeyMaterialCurve, &a.KeyMaterialPublicKey,
		&a.KeyMaterialPrivateKey, &a.KeyMaterialNonce, &a.Signature,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectArtefacts(rows pgx.Rows, total int) ([]*ConsentArtefact, int, error) {
	var arts []*ConsentArtefact
	for rows.Next() {
		var a ConsentArtefact
		err := rows.Scan(
			&a.ID, &a.ArtefactID, &a.ConsentID, &a.ConsentRequestID, &a.PatientAbhaID,
			&a.Purpose, &a.HITypes, &a.AccessMode, &a.CareContexts,
			&a.HIP, &a.HIU, &a.CM,
			&a.FromTime, &a.ToTime, &a.Expiry,
			&a.FrequencyUnit, &a.FrequencyValue, &a.FrequencyRepeats,
			&a.Status,
			&a.KeyMaterialAlgorithm, &a.KeyMaterialCurve, &a.KeyMaterialPublicKey,
			&a.KeyMaterialPrivateKey, &a.KeyMaterialNonce, &a.Signature,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		arts = append(arts, &a)
	}
	return arts, total, nil
}
