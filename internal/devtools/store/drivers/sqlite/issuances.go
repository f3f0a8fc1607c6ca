package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/domain"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
)

const issuanceColumns = `id, kind, subject, algorithm, issued_at, expires_at, fingerprint, created_at`

type issuancesRepo struct {
	db *sql.DB
}

func (r *issuancesRepo) Record(ctx context.Context, iss domain.Issuance) error {
	if iss.ID.IsZero() {
		return errors.New("store: issuance id is empty")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO issuances (`+issuanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		iss.ID.String(),
		iss.Kind,
		iss.Subject,
		iss.Algorithm,
		mapOptionalTime(iss.IssuedAt),
		mapOptionalTime(iss.ExpiresAt),
		iss.Fingerprint,
		toMillis(iss.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: issuance %s", store.ErrAlreadyExists, iss.ID)
	}
	return err
}

func (r *issuancesRepo) Get(ctx context.Context, id idx.ID) (domain.Issuance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE id = ?`, id.String())
	iss, err := scanIssuance(row)
	if err != nil {
		return domain.Issuance{}, mapNotFound(err)
	}
	return iss, nil
}

func (r *issuancesRepo) FindByFingerprint(ctx context.Context, fp string) (domain.Issuance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE fingerprint = ? ORDER BY id DESC LIMIT 1`, fp)
	iss, err := scanIssuance(row)
	if err != nil {
		return domain.Issuance{}, mapNotFound(err)
	}
	return iss, nil
}

func (r *issuancesRepo) List(ctx context.Context, limit int) ([]domain.Issuance, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Issuance
	for rows.Next() {
		iss, err := scanIssuance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

func (r *issuancesRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM issuances WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssuance(s scanner) (domain.Issuance, error) {
	var (
		iss       domain.Issuance
		id        string
		issuedAt  sql.NullInt64
		expiresAt sql.NullInt64
		createdAt int64
	)
	if err := s.Scan(&id, &iss.Kind, &iss.Subject, &iss.Algorithm, &issuedAt, &expiresAt, &iss.Fingerprint, &createdAt); err != nil {
		return domain.Issuance{}, err
	}
	iss.ID = idx.ID(id)
	iss.IssuedAt = mapNullTimePtr(issuedAt)
	iss.ExpiresAt = mapNullTimePtr(expiresAt)
	iss.CreatedAt = fromMillis(createdAt)
	return iss, nil
}
