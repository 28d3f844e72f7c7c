package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"paystub/internal/platform/querier"
)

// Client is an API caller that exchanges its secret for a token.
type Client struct {
	ID         string
	Name       string
	RoleName   string
	SecretHash string
	Disabled   bool
}

type ClientStore interface {
	FindClient(ctx context.Context, clientID string) (Client, error)
	CreateClient(ctx context.Context, c Client) error
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) FindClient(ctx context.Context, clientID string) (Client, error) {
	var out Client
	err := s.DB.QueryRow(ctx, `
    SELECT client_id, name, role, secret_hash, disabled
    FROM api_clients
    WHERE client_id = $1
  `, clientID).Scan(&out.ID, &out.Name, &out.RoleName, &out.SecretHash, &out.Disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrUnknownClient
	}
	return out, err
}

func (s *Store) CreateClient(ctx context.Context, c Client) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO api_clients (client_id, name, role, secret_hash, disabled)
    VALUES ($1,$2,$3,$4,$5)
  `, c.ID, c.Name, c.RoleName, c.SecretHash, c.Disabled)
	return err
}
