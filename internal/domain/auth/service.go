package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownClient      = errors.New("unknown api client")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownRole        = errors.New("unknown role")
)

type Service struct {
	Store  ClientStore
	Secret string
	TTL    time.Duration
}

func NewService(store ClientStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{Store: store, Secret: secret, TTL: ttl}
}

// IssueToken checks a client's secret and returns a signed token carrying
// its role. Unknown, disabled and wrong-secret clients all fail the same way.
func (s *Service) IssueToken(ctx context.Context, clientID, secret string) (string, error) {
	client, err := s.Store.FindClient(ctx, strings.TrimSpace(clientID))
	if errors.Is(err, ErrUnknownClient) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if client.Disabled || CheckSecret(client.SecretHash, secret) != nil {
		return "", ErrInvalidCredentials
	}
	return GenerateToken(s.Secret, Claims{ClientID: client.ID, RoleName: client.RoleName}, s.TTL)
}

// Register stores a new client with a hashed secret.
func (s *Service) Register(ctx context.Context, clientID, name, role, secret string) error {
	if !KnownRole(role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if len(secret) < 16 {
		return errors.New("client secret must be at least 16 characters")
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	return s.Store.CreateClient(ctx, Client{ID: strings.TrimSpace(clientID), Name: name, RoleName: role, SecretHash: hash})
}
