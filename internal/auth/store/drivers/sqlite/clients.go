package sqlite

import (
	"context"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
)

type clientsRepo struct {
	q dbtx
}

const clientColumns = `client_id, secrets, name, redirect_uris, allowed_scopes, grant_types,
	response_types, audiences, tenant_id, token_endpoint_auth_method, active, created_at`

func (r *clientsRepo) GetClientByID(ctx context.Context, clientID string) (domain.Client, error) {
	var (
		c            domain.Client
		secrets      string
		redirectURIs string
		scopes       string
		grantTypes   string
		respTypes    string
		audiences    string
		createdAt    int64
	)

	err := r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID).Scan(
		&c.ClientID, &secrets, &c.Name, &redirectURIs, &scopes, &grantTypes,
		&respTypes, &audiences, &c.TenantID, &c.TokenEndpointAuthMethod, &c.Active, &createdAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	if c.Secrets, err = decodeList(secrets); err != nil {
		return domain.Client{}, err
	}
	if c.RedirectURIs, err = decodeList(redirectURIs); err != nil {
		return domain.Client{}, err
	}
	if c.Audiences, err = decodeList(audiences); err != nil {
		return domain.Client{}, err
	}
	c.AllowedScopes = splitFields(scopes)
	c.GrantTypes = splitFields(grantTypes)
	c.ResponseTypes = splitFields(respTypes)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	secrets, err := encodeList(c.Secrets)
	if err != nil {
		return err
	}
	redirectURIs, err := encodeList(c.RedirectURIs)
	if err != nil {
		return err
	}
	audiences, err := encodeList(c.Audiences)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ClientID, secrets, c.Name, redirectURIs, joinFields(c.AllowedScopes), joinFields(c.GrantTypes),
		joinFields(c.ResponseTypes), audiences, c.TenantID, c.TokenEndpointAuthMethod, c.Active, toMillis(c.CreatedAt),
	)
	return mapConstraint(err)
}
