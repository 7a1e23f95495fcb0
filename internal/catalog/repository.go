package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/session-cart/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOptionNotFound     = errors.New("option not found")
	ErrUnknownLookupField = errors.New("unknown lookup field")
	ErrInvalidLookupValue = errors.New("invalid lookup value")
)

//go:embed migrations/*.sql
var migrations embed.FS

type RepoInterface interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetOption(ctx context.Context, id int64) (*domain.Option, error)
	Close() error
	RunMigrations() error
}

type Repository struct {
	db      *sql.DB
	product filter
	option  filter
}

func NewRepository(dbPath string, lookups Lookups) (*Repository, error) {
	product, err := newFilter(lookups.Product, productColumns)
	if err != nil {
		return nil, fmt.Errorf("invalid product lookup: %w", err)
	}
	option, err := newFilter(lookups.Option, optionColumns)
	if err != nil {
		return nil, fmt.Errorf("invalid option lookup: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection so ":memory:" databases are shared by every query
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, product: product, option: option}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, price, active
		FROM products
		WHERE 1 = 1` + r.product.clause + `
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, r.product.withArgs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, price, active
		FROM products
		WHERE id = ?` + r.product.clause

	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, r.product.withArgs(id)...).
		Scan(&p.ID, &p.Name, &p.Price, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (r *Repository) GetOption(ctx context.Context, id int64) (*domain.Option, error) {
	query := `
		SELECT id, product_id, name, price, active
		FROM options
		WHERE id = ?` + r.option.clause

	o := &domain.Option{}
	err := r.db.QueryRowContext(ctx, query, r.option.withArgs(id)...).
		Scan(&o.ID, &o.ProductID, &o.Name, &o.Price, &o.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrOptionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query option: %w", err)
	}
	return o, nil
}

// DeleteProduct removes a product together with its options.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM options WHERE product_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete options: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
