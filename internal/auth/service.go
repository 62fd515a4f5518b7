package auth

import (
	"context"
	"errors"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/db"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	uniqueViolation = "23505"
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var (
	hashPasswordFn    = bcrypt.GenerateFromPassword
	signTokenFn       = (*Service).signToken
	parseWithClaimsFn = jwt.ParseWithClaims
)

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

const selectUser = `
		SELECT id, email, username, password_hash, full_name, avatar_url, status, allow_messages, created_at, updated_at
		FROM users`

// Register creates the account with its public profile. Status falls back to
// DefaultStatus and messages are allowed unless the request says otherwise.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return Session{}, ErrMissingFields
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}

	user := User{
		ID:            uuid.NewString(),
		Email:         req.Email,
		Username:      req.Username,
		PasswordHash:  string(hash),
		FullName:      req.FullName,
		AvatarURL:     req.AvatarURL,
		Status:        req.Status,
		AllowMessages: true,
	}
	if user.Status == "" {
		user.Status = DefaultStatus
	}
	if req.AllowMessages != nil {
		user.AllowMessages = *req.AllowMessages
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, avatar_url, status, allow_messages)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.FullName, user.AvatarURL, user.Status, user.AllowMessages)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Session{}, ErrAccountExists
		}
		return Session{}, apperr.Write("create account", err)
	}

	return s.session(ctx, user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	user, err := scanUser(s.db.QueryRow(ctx, selectUser+`
		WHERE email = $1
	`, req.Email))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, apperr.Read("load account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(ctx, user)
}

// Account loads the account behind a verified token.
func (s *Service) Account(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, selectUser+`
		WHERE id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.ErrNotFound
	}
	if err != nil {
		return User{}, apperr.Read("load account", err)
	}
	return user, nil
}

func (s *Service) session(ctx context.Context, user User) (Session, error) {
	tokens, err := s.GenerateTokens(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: tokens}, nil
}

func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	access, err := signTokenFn(s, userID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, userID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, userID, refreshTokenTTL); err != nil {
		return TokenResponse{}, apperr.Write("save refresh token", err)
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}

// ValidateAccessToken returns the user id carried by an access token. It also
// authenticates websocket handshakes, which pass the token as a query value.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.FullName, &user.AvatarURL,
		&user.Status, &user.AllowMessages, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
