package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email/password")
	ErrTokenExpired       = errors.New("token expired")
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrChallengeMismatch  = errors.New("challenge alg mismatch")
	ErrKeyRevoked         = errors.New("key revoked")
	ErrUnknownKey         = errors.New("key is not attached to any user")
)

type Service struct {
	store        store.Store
	tokenTTL     time.Duration
	challengeTTL time.Duration
	now          func() time.Time
}

// Identity is the authenticated caller behind a bearer token.
type Identity struct {
	UserID int64
	KeyID  int64
}

func NewService(store store.Store, tokenTTL, challengeTTL time.Duration) *Service {
	return &Service{
		store:        store,
		tokenTTL:     tokenTTL,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// Register creates a regular user and signs them in.
func (s *Service) Register(ctx context.Context, name, email, password string) (model.Token, model.User, error) {
	hash, salt, err := HashPassword(password)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	now := s.now()
	user := model.User{
		Name:             strings.TrimSpace(name),
		Email:            strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:     hash,
		Salt:             salt,
		Role:             model.RoleUser,
		Status:           model.StatusDefault,
		StatusChangeDate: now,
		CreatedAt:        now,
		Options:          model.DefaultUserOptions(),
	}
	if _, err := s.store.CreateUser(ctx, &user); err != nil {
		return model.Token{}, model.User{}, err
	}
	token, err := s.issueToken(ctx, user.ID, 0)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	return token, user, nil
}

// Login checks an email/password pair. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (model.Token, model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Token{}, model.User{}, ErrInvalidCredentials
		}
		return model.Token{}, model.User{}, err
	}
	if !CheckPassword(password, user.PasswordHash, user.Salt) {
		return model.Token{}, model.User{}, ErrInvalidCredentials
	}
	token, err := s.issueToken(ctx, user.ID, 0)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	return token, user, nil
}

func (s *Service) CreateChallenge(ctx context.Context, alg string) (model.Challenge, error) {
	challenge, err := randomToken(32)
	if err != nil {
		return model.Challenge{}, err
	}
	c := model.Challenge{
		Challenge: challenge,
		Alg:       strings.ToLower(alg),
		ExpiresAt: s.now().Add(s.challengeTTL),
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

// consumeSigned burns the challenge and checks the signature over it.
func (s *Service) consumeSigned(ctx context.Context, alg, publicKey, challenge, signature string) error {
	c, err := s.store.ConsumeChallenge(ctx, challenge)
	if err != nil {
		return err
	}
	if s.now().After(c.ExpiresAt) {
		return ErrChallengeExpired
	}
	if !strings.EqualFold(c.Alg, alg) {
		return ErrChallengeMismatch
	}
	return VerifySignature(alg, publicKey, challenge, signature)
}

// VerifyAndCreateToken signs in the user owning publicKey.
func (s *Service) VerifyAndCreateToken(ctx context.Context, alg, publicKey, challenge, signature string) (model.Token, model.User, error) {
	if err := s.consumeSigned(ctx, alg, publicKey, challenge, signature); err != nil {
		return model.Token{}, model.User{}, err
	}
	key, err := s.store.FindKey(ctx, strings.ToLower(alg), publicKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Token{}, model.User{}, ErrUnknownKey
		}
		return model.Token{}, model.User{}, err
	}
	if key.RevokedAt != nil {
		return model.Token{}, model.User{}, ErrKeyRevoked
	}
	user, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	token, err := s.issueToken(ctx, user.ID, key.ID)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	return token, user, nil
}

// AddKey attaches publicKey to the user after checking they hold the
// private half.
func (s *Service) AddKey(ctx context.Context, userID int64, alg, publicKey, challenge, signature string) (model.AccountKey, error) {
	if err := s.consumeSigned(ctx, alg, publicKey, challenge, signature); err != nil {
		return model.AccountKey{}, err
	}
	key := model.AccountKey{Alg: strings.ToLower(alg), PublicKey: publicKey, CreatedAt: s.now()}
	if _, err := s.store.AddUserKey(ctx, userID, &key); err != nil {
		return model.AccountKey{}, err
	}
	return key, nil
}

func (s *Service) RevokeKey(ctx context.Context, userID, keyID int64) error {
	return s.store.RevokeUserKey(ctx, userID, keyID, s.now())
}

func (s *Service) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	token, err := s.store.GetToken(ctx, bearer)
	if err != nil {
		return Identity{}, err
	}
	if s.now().After(token.ExpiresAt) {
		return Identity{}, ErrTokenExpired
	}
	return Identity{UserID: token.UserID, KeyID: token.KeyID}, nil
}

// PurgeExpired drops tokens past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokens(ctx, s.now())
}

func (s *Service) issueToken(ctx context.Context, userID, keyID int64) (model.Token, error) {
	value, err := randomToken(32)
	if err != nil {
		return model.Token{}, err
	}
	token := model.Token{
		Token:     value,
		UserID:    userID,
		KeyID:     keyID,
		ExpiresAt: s.now().Add(s.tokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return model.Token{}, err
	}
	return token, nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
