package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

func (s *Store) AddUserKey(ctx context.Context, userID int64, key *model.AccountKey) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO account_keys (user_id, alg, public_key, created_at, revoked_at)
VALUES (?, ?, ?, ?, NULL)
`, userID, key.Alg, key.PublicKey, key.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateKey
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	key.ID = id
	key.UserID = userID
	return id, nil
}

func (s *Store) ListUserKeys(ctx context.Context, userID int64) ([]model.AccountKey, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, alg, public_key, created_at, revoked_at
FROM account_keys
WHERE user_id = ? AND revoked_at IS NULL
ORDER BY created_at ASC, id ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []model.AccountKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) RevokeUserKey(ctx context.Context, userID, keyID int64, revokedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE account_keys SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL
`, revokedAt.Unix(), keyID, userID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindKey(ctx context.Context, alg, publicKey string) (model.AccountKey, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, alg, public_key, created_at, revoked_at
FROM account_keys
WHERE alg = ? AND public_key = ?
LIMIT 1
`, alg, publicKey)
	return scanKey(row)
}

func scanKey(row scanner) (model.AccountKey, error) {
	var k model.AccountKey
	var created int64
	var revoked sql.NullInt64
	if err := row.Scan(&k.ID, &k.UserID, &k.Alg, &k.PublicKey, &created, &revoked); err != nil {
		return model.AccountKey{}, notFound(err)
	}
	k.CreatedAt = time.Unix(created, 0)
	if revoked.Valid {
		t := time.Unix(revoked.Int64, 0)
		k.RevokedAt = &t
	}
	return k, nil
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO auth_challenges (challenge, alg, expires_at, created_at)
VALUES (?, ?, ?, ?)
`, c.Challenge, c.Alg, c.ExpiresAt.Unix(), s.now().Unix())
	return err
}

// ConsumeChallenge returns the challenge and deletes it so it cannot be
// replayed.
func (s *Store) ConsumeChallenge(ctx context.Context, challenge string) (model.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT challenge, alg, expires_at
FROM auth_challenges
WHERE challenge = ?
`, challenge)
	var c model.Challenge
	var expires int64
	if err := row.Scan(&c.Challenge, &c.Alg, &expires); err != nil {
		return model.Challenge{}, notFound(err)
	}
	c.ExpiresAt = time.Unix(expires, 0)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_challenges WHERE challenge = ?`, challenge); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func (s *Store) CreateToken(ctx context.Context, token model.Token) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO auth_tokens (token, user_id, key_id, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
`, token.Token, token.UserID, nullableID(token.KeyID), token.ExpiresAt.Unix(), s.now().Unix())
	return err
}

func (s *Store) GetToken(ctx context.Context, token string) (model.Token, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, user_id, key_id, expires_at
FROM auth_tokens
WHERE token = ?
`, token)
	var t model.Token
	var keyID sql.NullInt64
	var expires int64
	if err := row.Scan(&t.Token, &t.UserID, &keyID, &expires); err != nil {
		return model.Token{}, notFound(err)
	}
	t.KeyID = keyID.Int64
	t.ExpiresAt = time.Unix(expires, 0)
	return t, nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
