package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
)

type authorizationCodesRepo struct {
	q dbtx
}

const codeColumns = `id, code_hash, client_id, user_id, tenant_id, redirect_uri, redirect_uri_provided,
	scopes, audience, nonce, code_challenge, code_challenge_method, expires_at, created_at`

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	audience, err := encodeList(code.Audience)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO authorization_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.CodeHash, code.ClientID, code.UserID, code.TenantID, code.RedirectURI, code.RedirectURIProvided,
		joinFields(code.Scopes), audience, code.Nonce, code.CodeChallenge, code.CodeChallengeMethod,
		toMillis(code.ExpiresAt), toMillis(code.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM authorization_codes WHERE code_hash = ?`, hash)
	return scanAuthorizationCode(row)
}

// ConsumeAuthorizationCode relies on DELETE ... RETURNING being a single
// statement: only one caller can see the row.
func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx, `DELETE FROM authorization_codes WHERE code_hash = ? RETURNING `+codeColumns, hash)
	return scanAuthorizationCode(row)
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAuthorizationCode(row scanner) (domain.AuthorizationCode, error) {
	var (
		c         domain.AuthorizationCode
		scopes    string
		audience  string
		expiresAt int64
		createdAt int64
	)
	err := row.Scan(
		&c.ID, &c.CodeHash, &c.ClientID, &c.UserID, &c.TenantID, &c.RedirectURI, &c.RedirectURIProvided, &scopes, &audience,
		&c.Nonce, &c.CodeChallenge, &c.CodeChallengeMethod, &expiresAt, &createdAt,
	)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}

	if c.Audience, err = decodeList(audience); err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.Scopes = splitFields(scopes)
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}
