package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-svc/models"

	"github.com/lib/pq"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Tx is the set of queries the cart and order services run. Inside InTx
// every call shares one transaction; GetCart*, FindOrCreateCart and
// GetProductForUpdate lock the rows they return until it ends.
type Tx interface {
	FindOrCreateCart(ctx context.Context, userID string) (*models.Cart, error)
	GetCartByUser(ctx context.Context, userID string) (*models.Cart, error)
	GetCartByID(ctx context.Context, cartID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error

	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*models.Product, error)
	SaveProductStock(ctx context.Context, p *models.Product) error
	IncrementSold(ctx context.Context, productID string, qty int) error

	GetSettings(ctx context.Context) (models.AppSettings, error)

	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order) error

	ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error)
	InsertAddress(ctx context.Context, addr *models.SavedAddress) error
	DeleteAddress(ctx context.Context, id string) error
}

// Store runs fn inside a transaction. Queries returns the same operations
// outside of any transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Queries() Tx
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	q queryer
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Queries() Tx {
	return &repo{q: s.db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&repo{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
