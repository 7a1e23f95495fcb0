package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/fjod/go_cart/session-cart/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultSessionKey is used when Config.SessionKey is empty.
const DefaultSessionKey = "CART"

var ErrInvalidQuantity = errors.New("invalid quantity")

// Session is the part of the visitor's session the cart works with.
// The cart only ever reads and writes its own key.
type Session interface {
	Contains(key string) bool
	Get(key string, dst any) error
	Set(key string, value any) error
	MarkModified()
}

// Catalog resolves products and options by primary key.
type Catalog interface {
	Product(ctx context.Context, id int64) (*domain.Product, error)
	Option(ctx context.Context, id int64) (*domain.Option, error)
}

// SkipFunc receives every session record dropped while the cart is rebuilt.
type SkipFunc func(rec domain.Record, err error)

type Config struct {
	SessionKey string
	Logger     *zap.Logger
	// OnSkip defaults to a warning on Logger.
	OnSkip SkipFunc
}

// Cart is a request scoped view of the cart stored in a session. It is not
// safe for concurrent use.
type Cart struct {
	items      []*Item
	session    Session
	sessionKey string
	logger     *zap.Logger
}

// New rebuilds the cart from the session. The rebuild is best effort: records
// that reference products or options the catalog no longer resolves are
// handed to cfg.OnSkip and left out, they never fail construction.
func New(ctx context.Context, session Session, catalog Catalog, cfg Config) *Cart {
	c := &Cart{
		session:    session,
		sessionKey: cfg.SessionKey,
		logger:     cfg.Logger,
	}
	if c.sessionKey == "" {
		c.sessionKey = DefaultSessionKey
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	onSkip := cfg.OnSkip
	if onSkip == nil {
		onSkip = c.logSkipped
	}

	if !session.Contains(c.sessionKey) {
		return c
	}

	var records []domain.Record
	if err := session.Get(c.sessionKey, &records); err != nil {
		c.logger.Error("failed to decode cart from session",
			zap.String("session_key", c.sessionKey), zap.Error(err))
		return c
	}

	r := newRebuilder(catalog)
	for _, rec := range records {
		item, err := r.resolve(ctx, rec)
		if err != nil {
			onSkip(rec, err)
			continue
		}
		c.items = append(c.items, item)
	}
	return c
}

func (c *Cart) logSkipped(rec domain.Record, err error) {
	c.logger.Warn("dropped cart record during rebuild",
		zap.Int64("product_pk", rec.ProductPK),
		zap.Int64s("option_pks", rec.OptionPKs),
		zap.Int("quantity", rec.Quantity),
		zap.Error(err))
}

// rebuilder caches lookups for the duration of a single rebuild.
type rebuilder struct {
	catalog  Catalog
	products map[int64]*domain.Product
	options  map[int64]*domain.Option
}

func newRebuilder(catalog Catalog) *rebuilder {
	return &rebuilder{
		catalog:  catalog,
		products: make(map[int64]*domain.Product),
		options:  make(map[int64]*domain.Option),
	}
}

func (r *rebuilder) resolve(ctx context.Context, rec domain.Record) (*Item, error) {
	if rec.Quantity < 1 {
		return nil, fmt.Errorf("%w: stored quantity %d", ErrInvalidQuantity, rec.Quantity)
	}

	product, ok := r.products[rec.ProductPK]
	if !ok {
		p, err := r.catalog.Product(ctx, rec.ProductPK)
		if err != nil {
			return nil, fmt.Errorf("resolve product %d: %w", rec.ProductPK, err)
		}
		r.products[rec.ProductPK] = p
		product = p
	}

	options := make([]*domain.Option, 0, len(rec.OptionPKs))
	for _, pk := range rec.OptionPKs {
		option, ok := r.options[pk]
		if !ok {
			o, err := r.catalog.Option(ctx, pk)
			if err != nil {
				return nil, fmt.Errorf("resolve option %d: %w", pk, err)
			}
			r.options[pk] = o
			option = o
		}
		options = append(options, option)
	}

	return NewItem(product, options, rec.Quantity), nil
}

// IndexOf returns the position of the item matching product and the set of
// options, in any order.
func (c *Cart) IndexOf(product *domain.Product, options []*domain.Option) (int, bool) {
	want := optionKeys(options)
	for i, item := range c.items {
		if item.Product.ID != product.ID {
			continue
		}
		if slices.Equal(optionKeys(item.Options), want) {
			return i, true
		}
	}
	return -1, false
}

func (c *Cart) Contains(product *domain.Product, options []*domain.Option) bool {
	_, ok := c.IndexOf(product, options)
	return ok
}

func optionKeys(options []*domain.Option) []int64 {
	keys := make([]int64, len(options))
	for i, o := range options {
		keys[i] = o.ID
	}
	slices.Sort(keys)
	return keys
}

// Add puts quantity units of the product with options into the cart. An item
// already in the cart only gets its quantity increased.
func (c *Cart) Add(product *domain.Product, options []*domain.Option, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: must be at least 1 when adding to cart, got %d", ErrInvalidQuantity, quantity)
	}
	if i, ok := c.IndexOf(product, options); ok {
		if quantity > math.MaxInt-c.items[i].Quantity {
			return fmt.Errorf("%w: adding %d to %d overflows", ErrInvalidQuantity, quantity, c.items[i].Quantity)
		}
		c.items[i].Quantity += quantity
	} else {
		c.items = append(c.items, NewItem(product, options, quantity))
	}
	return c.persist()
}

// Remove deletes the item. Nothing is persisted if it is not in the cart.
func (c *Cart) Remove(product *domain.Product, options []*domain.Option) error {
	i, ok := c.IndexOf(product, options)
	if !ok {
		return nil
	}
	c.items = slices.Delete(c.items, i, i+1)
	return c.persist()
}

// RemoveSingle decreases the quantity by one, removing the item at the last unit.
func (c *Cart) RemoveSingle(product *domain.Product, options []*domain.Option) error {
	i, ok := c.IndexOf(product, options)
	if !ok {
		return nil
	}
	if c.items[i].Quantity <= 1 {
		c.items = slices.Delete(c.items, i, i+1)
	} else {
		c.items[i].Quantity--
	}
	return c.persist()
}

func (c *Cart) Clear() error {
	c.items = nil
	return c.persist()
}

// SetQuantity overwrites the quantity of an item in the cart. Zero removes it.
func (c *Cart) SetQuantity(product *domain.Product, options []*domain.Option, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: must not be negative when updating cart, got %d", ErrInvalidQuantity, quantity)
	}
	i, ok := c.IndexOf(product, options)
	if !ok {
		return nil
	}
	if quantity < 1 {
		c.items = slices.Delete(c.items, i, i+1)
	} else {
		c.items[i].Quantity = quantity
	}
	return c.persist()
}

// persist writes the serialized items back under the cart's session key.
func (c *Cart) persist() error {
	if err := c.session.Set(c.sessionKey, c.Records()); err != nil {
		return fmt.Errorf("failed to store cart in session: %w", err)
	}
	c.session.MarkModified()
	return nil
}

func (c *Cart) SessionKey() string {
	return c.sessionKey
}

// Items returns copies of the cart's items. Changing them does not change the cart.
func (c *Cart) Items() []*Item {
	items := make([]*Item, len(c.items))
	for i, item := range c.items {
		cp := *item
		cp.Options = slices.Clone(item.Options)
		items[i] = &cp
	}
	return items
}

// Records is the serializable form of the cart.
func (c *Cart) Records() []domain.Record {
	records := make([]domain.Record, len(c.items))
	for i, item := range c.items {
		records[i] = item.Record()
	}
	return records
}

// Count is the sum of all quantities.
func (c *Cart) Count() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

// UniqueCount is the number of lines regardless of quantity.
func (c *Cart) UniqueCount() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return c.UniqueCount() == 0
}

// Products lists every product in the cart once.
func (c *Cart) Products() []*domain.Product {
	seen := make(map[int64]struct{}, len(c.items))
	products := make([]*domain.Product, 0, len(c.items))
	for _, item := range c.items {
		if _, ok := seen[item.Product.ID]; ok {
			continue
		}
		seen[item.Product.ID] = struct{}{}
		products = append(products, item.Product)
	}
	return products
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}
