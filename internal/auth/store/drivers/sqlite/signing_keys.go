package sqlite

import (
	"context"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
)

type signingKeysRepo struct {
	s *Store
}

const keyColumns = `id, kid, purpose, algorithm, public_key, private_key, encrypted, active, created_at`

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `SELECT `+keyColumns+` FROM signing_keys ORDER BY created_at DESC, id DESC`)
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context, purpose string) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+keyColumns+` FROM signing_keys WHERE purpose = ? AND active = 1 ORDER BY created_at DESC, id DESC`,
		purpose,
	)
}

func (r *signingKeysRepo) GetSigningKeyByKID(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM signing_keys WHERE kid = ?`, kid)
	key, err := scanSigningKey(row)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return key, nil
}

func (r *signingKeysRepo) ActivateSigningKey(ctx context.Context, key domain.SigningKey) error {
	return r.s.withTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx,
			`UPDATE signing_keys SET active = 0 WHERE purpose = ? AND active = 1`, key.Purpose,
		); err != nil {
			return err
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO signing_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			key.ID, key.KID, key.Purpose, key.Algorithm, key.PublicKey, key.PrivateKey, key.Encrypted,
			toMillis(key.CreatedAt),
		)
		return mapConstraint(err)
	})
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []domain.SigningKey
	for rows.Next() {
		key, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanSigningKey(row scanner) (domain.SigningKey, error) {
	var (
		k         domain.SigningKey
		createdAt int64
	)
	if err := row.Scan(
		&k.ID, &k.KID, &k.Purpose, &k.Algorithm, &k.PublicKey, &k.PrivateKey, &k.Encrypted, &k.Active, &createdAt,
	); err != nil {
		return domain.SigningKey{}, err
	}
	k.CreatedAt = fromMillis(createdAt)
	return k, nil
}
