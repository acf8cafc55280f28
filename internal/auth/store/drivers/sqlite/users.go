package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, email, password_hash, tenant_id, roles, active, profile, created_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email))
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	profile := []byte("{}")
	if len(u.Profile) > 0 {
		var err error
		if profile, err = json.Marshal(u.Profile); err != nil {
			return err
		}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.TenantID, joinFields(u.Roles), u.Active, string(profile), toMillis(u.CreatedAt),
	)
	return mapConstraint(err)
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u         domain.User
		roles     string
		profile   string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TenantID, &roles, &u.Active, &profile, &createdAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Roles = splitFields(roles)
	u.CreatedAt = fromMillis(createdAt)
	if profile != "" && profile != "{}" {
		if err := json.Unmarshal([]byte(profile), &u.Profile); err != nil {
			return domain.User{}, err
		}
	}
	return u, nil
}
