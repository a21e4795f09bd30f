// Package auth issues and verifies the gateway's bearer credentials and
// resolves them to directory principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrmushfiq/inference-gateway/internal/shared/database"
	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

var (
	// ErrInvalidCredentials indicates a failed username/password login.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken indicates a malformed or badly signed bearer token.
	ErrInvalidToken = errors.New("could not validate credentials")

	// ErrExpiredToken indicates a well-formed token past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrUnknownPrincipal indicates a valid token whose subject no longer
	// exists in the directory.
	ErrUnknownPrincipal = errors.New("unknown principal")
)

// Directory is the identity slice of the directory collaborator.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.Principal, error)
}

// Token is an issued bearer credential.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Authenticator mints HS256 tokens and resolves principals from them.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	dir      Directory

	now func() time.Time
}

// New creates an Authenticator backed by the given directory.
func New(secret string, tokenTTL time.Duration, dir Directory) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		dir:      dir,
		now:      time.Now,
	}
}

// IssueToken exchanges a username/password for a bearer token. The subject
// claim is the user's directory id.
func (a *Authenticator) IssueToken(ctx context.Context, username, password string) (*Token, error) {
	user, err := a.dir.UserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// ResolvePrincipal verifies a bearer token and resolves its subject against
// the directory. Expired tokens are reported distinctly from malformed ones.
// A directory outage surfaces as a wrapped lookup error, not an auth failure.
func (a *Authenticator) ResolvePrincipal(ctx context.Context, bearer string) (*models.Principal, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	// The subject must be a directory user id.
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}

	principal, err := a.dir.UserByID(ctx, claims.Subject)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, fmt.Errorf("principal lookup: %w", err)
	}

	return principal, nil
}
