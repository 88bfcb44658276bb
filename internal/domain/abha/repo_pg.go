package abha

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

const abhaCols = `id, abha_number, health_id,
	name, first_name, middle_name, last_name,
	gender, date_of_birth,
	address, district, state, pincode,
	mobile, email, profile_photo,
	new, txn_id, access_token, refresh_token,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *AbhaNumber) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO abha_number (
			id, abha_number, health_id,
			name, first_name, middle_name, last_name,
			gender, date_of_birth,
			address, district, state, pincode,
			mobile, email, profile_photo,
			new, txn_id, access_token, refresh_token
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
		)`,
		a.ID, a.AbhaNumber, a.HealthID,
		a.Name, a.FirstName, a.MiddleName, a.LastName,
		a.Gender, a.DateOfBirth,
		a.Address, a.District, a.State, a.Pincode,
		NormalizeMobile(a.Mobile), a.Email, a.ProfilePhoto,
		a.New, a.TxnID, a.AccessToken, a.RefreshToken,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AbhaNumber, error) {
	return scanAbha(r.conn(ctx).QueryRow(ctx, `SELECT `+abhaCols+` FROM abha_number WHERE id = $1`, id))
}

func (r *repoPG) GetByHealthID(ctx context.Context, healthID string) (*AbhaNumber, error) {
	return scanAbha(r.conn(ctx).QueryRow(ctx, `SELECT `+abhaCols+` FROM abha_number WHERE health_id = $1`, healthID))
}

func (r *repoPG) GetByAbhaNumber(ctx context.Context, abhaNumber string) (*AbhaNumber, error) {
	return scanAbha(r.conn(ctx).QueryRow(ctx, `SELECT `+abhaCols+` FROM abha_number WHERE abha_number = $1`, abhaNumber))
}

func (r *repoPG) Update(ctx context.Context, a *AbhaNumber) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE abha_number SET
			abha_number=$2, health_id=$3,
			name=$4, first_name=$5, middle_name=$6, last_name=$7,
			gender=$8, date_of_birth=$9,
			address=$10, district=$11, state=$12, pincode=$13,
			mobile=$14, email=$15, profile_photo=$16,
			new=$17, txn_id=$18, access_token=$19, refresh_token=$20,
			updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.AbhaNumber, a.HealthID,
		a.Name, a.FirstName, a.MiddleName, a.LastName,
		a.Gender, a.DateOfBirth,
		a.Address, a.District, a.State, a.Pincode,
		NormalizeMobile(a.Mobile), a.Email, a.ProfilePhoto,
		a.New, a.TxnID, a.AccessToken, a.RefreshToken,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM abha_number WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*AbhaNumber, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM abha_number`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+abhaCols+` FROM abha_number ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectAbhas(rows, total)
}

func (r *repoPG) ListByMobile(ctx context.Context, mobile string) ([]*AbhaNumber, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+abhaCols+` FROM abha_number WHERE mobile = $1`, NormalizeMobile(mobile))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	abhas, _, err := collectAbhas(rows, 0)
	return abhas, err
}

func (r *repoPG) AddCareContext(ctx context.Context, cc *LinkedCareContext) error {
	cc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO linked_care_context (
			id, abha_number_id, patient_reference, care_context_reference, display, hi_type, linked
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (abha_number_id, care_context_reference) DO UPDATE SET
			display = EXCLUDED.display, hi_type = EXCLUDED.hi_type, updated_at = NOW()`,
		cc.ID, cc.AbhaNumberID, cc.PatientReference, cc.CareContextReference, cc.Display, cc.HIType, cc.Linked,
	)
	return err
}

func (r *repoPG) GetCareContext(ctx context.Context, abhaNumberID uuid.UUID, reference string) (*LinkedCareContext, error) {
	return scanCareContext(r.conn(ctx).QueryRow(ctx, `
		SELECT id, abha_number_id, patient_reference, care_context_reference, display, hi_type, linked, created_at, updated_at
		FROM linked_care_context WHERE abha_number_id = $1 AND care_context_reference = $2`,
		abhaNumberID, reference))
}

func (r *repoPG) ListCareContexts(ctx context.Context, abhaNumberID uuid.UUID) ([]*LinkedCareContext, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, abha_number_id, patient_reference, care_context_reference, display, hi_type, linked, created_at, updated_at
		FROM linked_care_context WHERE abha_number_id = $1 ORDER BY created_at`, abhaNumberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ccs []*LinkedCareContext
	for rows.Next() {
		var cc LinkedCareContext
		if err := rows.Scan(&cc.ID, &cc.AbhaNumberID, &cc.PatientReference, &cc.CareContextReference,
			&cc.Display, &cc.HIType, &cc.Linked, &cc.CreatedAt, &cc.UpdatedAt); err != nil {
			return nil, err
		}
		ccs = append(ccs, &cc)
	}
	return ccs, nil
}

func (r *repoPG) MarkCareContextLinked(ctx context.Context, id uuid.UUID, linked bool) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE linked_care_context SET linked = $2, updated_at = NOW() WHERE id = $1`, id, linked)
	return err
}

func scanAbha(row pgx.Row) (*AbhaNumber, error) {
	var a AbhaNumber
	err := row.Scan(
		&a.ID, &a.AbhaNumber, &a.HealthID,
		&a.Name, &a.FirstName, &a.MiddleName, &a.LastName,
		&a.Gender, &a.DateOfBirth,
		&a.Address, &a.District, &a.State, &a.Pincode,
		&a.Mobile, &a.Email, &a.ProfilePhoto,
		&a.New, &a.TxnID, &a.AccessToken, &a.RefreshToken,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAbhas(rows pgx.Rows, total int) ([]*AbhaNumber, int, error) {
	var abhas []*AbhaNumber
	for rows.Next() {
		var a AbhaNumber
		err := rows.Scan(
			&a.ID, &a.AbhaNumber, &a.HealthID,
			&a.Name, &a.FirstName, &a.MiddleName, &a.LastName,
			&a.Gender, &a.DateOfBirth,
			&a.Address, &a.District, &a.State, &a.Pincode,
			&a.Mobile, &a.Email, &a.ProfilePhoto,
			&a.New, &a.TxnID, &a.AccessToken, &a.RefreshToken,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		abhas = append(abhas, &a)
	}
	return abhas, total, nil
}

func scanCareContext(row pgx.Row) (*LinkedCareContext, error) {
	var cc LinkedCareContext
	err := row.Scan(&cc.ID, &cc.AbhaNumberID, &cc.PatientReference, &cc.CareContextReference,
		&cc.Display, &cc.HIType, &cc.Linked, &cc.CreatedAt, &cc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cc, nil
}
