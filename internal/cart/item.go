package cart

import (
	"github.com/fjod/go_cart/session-cart/internal/domain"
	"github.com/shopspring/decimal"
)

// Item is one line of the cart: a product, the options selected with it and a quantity.
type Item struct {
	Product  *domain.Product
	Options  []*domain.Option
	Quantity int
}

func NewItem(product *domain.Product, options []*domain.Option, quantity int) *Item {
	return &Item{
		Product:  product,
		Options:  options,
		Quantity: quantity,
	}
}

// Record returns the session representation of the item.
func (i *Item) Record() domain.Record {
	optionPKs := make([]int64, len(i.Options))
	for n, o := range i.Options {
		optionPKs[n] = o.ID
	}
	return domain.Record{
		ProductPK: i.Product.ID,
		OptionPKs: optionPKs,
		Quantity:  i.Quantity,
	}
}

// UnitPrice is the product price plus the price of every selected option.
func (i *Item) UnitPrice() decimal.Decimal {
	price := i.Product.Price
	for _, o := range i.Options {
		price = price.Add(o.Price)
	}
	return price
}

func (i *Item) Subtotal() decimal.Decimal {
	return i.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i *Item) String() string {
	return "CartItem(" + i.Product.Name + ")"
}
