package httpapp

import (
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/memologist/memologist/internal/auth"
	"github.com/memologist/memologist/internal/store"
)

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// reservedNames collide with /api/user/* routes.
var reservedNames = map[string]bool{"keys": true}

const minPasswordLength = 6

func validateRegistration(name, email, password string) error {
	if !userNamePattern.MatchString(name) {
		return errors.New("name must be 3-32 characters of letters, digits, '_' or '-'")
	}
	if reservedNames[strings.ToLower(name)] {
		return errors.New("name is reserved")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return errors.New("password must be at least 6 characters")
	}
	return nil
}

// handleRegister godoc
//
//	@Summary		Register a user
//	@Description	Create an account with a name, email and password and sign in.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			user	body		object{name=string,email=string,password=string}	true	"Registration data"
//	@Success		201		{object}	map[string]interface{}								"Token with expiration"
//	@Failure		400		{object}	map[string]string									"Invalid input"
//	@Failure		409		{object}	map[string]string									"Name or email taken"
//	@Router			/api/auth/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateRegistration(req.Name, req.Email, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, user, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info("user registered", "user", user.ID, "name", user.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     token.Token,
		"expiresAt": token.ExpiresAt,
		"userId":    user.ID,
	})
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchange an email and password for a bearer token.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		object{email=string,password=string}	true	"Credentials"
//	@Success		200			{object}	map[string]interface{}					"Token with expiration"
//	@Failure		400			{object}	map[string]string						"invalid email/password"
//	@Router			/api/auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, user, err := s.auth.Login(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token.Token,
		"expiresAt": token.ExpiresAt,
		"userId":    user.ID,
	})
}

// handleAuthChallenge godoc
//
//	@Summary		Request an auth challenge
//	@Description	Get a one-time challenge to sign with a registered key.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{alg=string}		true	"Signature algorithm"
//	@Success		200		{object}	map[string]interface{}	"Challenge with expiration"
//	@Failure		400		{object}	map[string]string		"Unsupported alg"
//	@Router			/api/auth/challenge [post]
func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alg string `json:"alg"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alg := strings.ToLower(strings.TrimSpace(req.Alg))
	if !auth.IsSupportedAlg(alg) {
		writeError(w, http.StatusBadRequest, errors.New("unsupported alg, expected one of "+strings.Join(auth.SupportedAlgs(), ", ")))
		return
	}
	challenge, err := s.auth.CreateChallenge(r.Context(), alg)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge": challenge.Challenge,
		"expiresAt": challenge.ExpiresAt,
	})
}

type signedChallenge struct {
	Alg       string `json:"alg"`
	PublicKey string `json:"publicKey"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

func (c *signedChallenge) trim() error {
	c.Alg = strings.ToLower(strings.TrimSpace(c.Alg))
	c.PublicKey = strings.TrimSpace(c.PublicKey)
	c.Challenge = strings.TrimSpace(c.Challenge)
	c.Signature = strings.TrimSpace(c.Signature)
	if c.Alg == "" || c.PublicKey == "" || c.Challenge == "" || c.Signature == "" {
		return errors.New("missing fields")
	}
	return nil
}

// handleAuthVerify godoc
//
//	@Summary		Verify signature and get token
//	@Description	Exchange a signed challenge for a bearer token of the user owning the key.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{alg=string,publicKey=string,challenge=string,signature=string}	true	"Signed challenge"
//	@Success		200		{object}	map[string]interface{}													"Token with expiration"
//	@Failure		400		{object}	map[string]string														"Missing fields"
//	@Failure		401		{object}	map[string]string														"Invalid signature"
//	@Router			/api/auth/verify [post]
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req signedChallenge
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.trim(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, user, err := s.auth.VerifyAndCreateToken(r.Context(), req.Alg, req.PublicKey, req.Challenge, req.Signature)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errors.New("unknown challenge")
		}
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token.Token,
		"expiresAt": token.ExpiresAt,
		"keyId":     token.KeyID,
		"userId":    user.ID,
	})
}

// handleAddKey godoc
//
//	@Summary		Attach a public key
//	@Description	Add a key for challenge login. The challenge must be signed by the key being added.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			key	body		object{alg=string,publicKey=string,challenge=string,signature=string}	true	"Signed challenge"
//	@Success		201	{object}	model.AccountKey
//	@Failure		400	{object}	map[string]string	"Missing fields"
//	@Failure		401	{object}	map[string]string	"Invalid signature"
//	@Failure		409	{object}	map[string]string	"Key already attached"
//	@Router			/api/user/keys [post]
func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req signedChallenge
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.trim(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := s.auth.AddKey(r.Context(), identity.UserID, req.Alg, req.PublicKey, req.Challenge, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusUnauthorized, errors.New("unknown challenge"))
		default:
			writeError(w, http.StatusUnauthorized, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// handleListKeys godoc
//
//	@Summary	List own keys
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}		model.AccountKey
//	@Failure	401	{object}	map[string]string	"Authentication required"
//	@Router		/api/user/keys [get]
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	keys, err := s.store.ListUserKeys(r.Context(), identity.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleRevokeKey godoc
//
//	@Summary	Revoke a key
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		int					true	"Key ID"
//	@Success	200	{object}	map[string]bool		"Key revoked"
//	@Failure	401	{object}	map[string]string	"Authentication required"
//	@Failure	404	{object}	map[string]string	"Key not found"
//	@Router		/api/user/keys/{id} [delete]
func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request, idStr string) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	keyID, ok := parseID(idStr)
	if !ok {
		notFound(w)
		return
	}
	if err := s.auth.RevokeKey(r.Context(), identity.UserID, keyID); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleGetMe godoc
//
//	@Summary	Own profile
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	model.User
//	@Failure	401	{object}	map[string]string	"Authentication required"
//	@Router		/api/user [get]
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleGetUser godoc
//
//	@Summary	Public profile
//	@Tags		Users
//	@Produce	json
//	@Param		name	path		string	true	"User name"
//	@Success	200		{object}	model.User
//	@Failure	404		{object}	map[string]string	"User not found"
//	@Router		/api/user/{name} [get]
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, name string) {
	user, err := s.store.GetUserByName(r.Context(), name)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	user.Email = ""
	writeJSON(w, http.StatusOK, user)
}
