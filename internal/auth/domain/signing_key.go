package domain

import "time"

// SigningKey is a persisted RSA signing key. Only Active ever changes after
// insert, and rows are never deleted so old tokens keep verifying.
type SigningKey struct {
	ID         string // ULID
	KID        string // hex(sha256(public PEM))[:16]
	Purpose    string
	Algorithm  string
	PublicKey  []byte // SPKI PEM
	PrivateKey []byte // PKCS8 PEM, sealed when Encrypted
	Encrypted  bool
	Active     bool
	CreatedAt  time.Time
}
