package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

const defaultTokenTTL = 12 * time.Hour

// LoginHandler exchanges a username and password for a bearer token.
type LoginHandler struct {
	users  map[string]User
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLoginHandler constructs a login handler.
func NewLoginHandler(users map[string]User, secret []byte, ttl time.Duration) (*LoginHandler, error) {
	if len(users) == 0 {
		return nil, errors.New("auth: no users configured")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &LoginHandler{users: users, secret: secret, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ServeHTTP handles POST /api/v1/auth/login.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if body.Username == "" || body.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	role, err := Authenticate(h.users, body.Username, body.Password)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	token, expiresAt, err := SignJWT(body.Username, role, h.secret, h.ttl, h.now())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{Token: token, Role: string(role), ExpiresAt: expiresAt})
}
