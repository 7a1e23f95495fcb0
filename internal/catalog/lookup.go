package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Lookup restricts which rows can be resolved, e.g. {"active": true}.
// Keys are column names, values are compared for equality.
type Lookup map[string]any

type Lookups struct {
	Product Lookup
	Option  Lookup
}

type columnKind int

const (
	columnScalar columnKind = iota
	columnText
	// prices are stored as TEXT, so "8.5" and "8.50" would not be equal
	columnDecimal
)

var (
	productColumns = map[string]columnKind{"id": columnScalar, "name": columnText, "price": columnDecimal, "active": columnScalar}
	optionColumns  = map[string]columnKind{"id": columnScalar, "product_id": columnScalar, "name": columnText, "price": columnDecimal, "active": columnScalar}
)

// filter is a validated Lookup rendered as SQL.
type filter struct {
	clause string
	args   []any
}

func newFilter(l Lookup, columns map[string]columnKind) (filter, error) {
	keys := make([]string, 0, len(l))
	for k := range l {
		if _, ok := columns[k]; !ok {
			return filter{}, fmt.Errorf("%w: %q", ErrUnknownLookupField, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		arg, err := lookupArg(columns[k], l[k])
		if err != nil {
			return filter{}, fmt.Errorf("%w: %q: %v", ErrInvalidLookupValue, k, err)
		}
		b.WriteString(" AND ")
		if columns[k] == columnDecimal {
			b.WriteString("CAST(" + k + " AS REAL)")
		} else {
			b.WriteString(k)
		}
		b.WriteString(" = ?")
		args = append(args, arg)
	}
	return filter{clause: b.String(), args: args}, nil
}

func lookupArg(kind columnKind, value any) (any, error) {
	switch kind {
	case columnText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("want a string, got %T", value)
		}
		return s, nil
	case columnDecimal:
		var (
			d   decimal.Decimal
			err error
		)
		switch v := value.(type) {
		case string:
			d, err = decimal.NewFromString(v)
		case float64:
			d = decimal.NewFromFloat(v)
		case int:
			d = decimal.NewFromInt(int64(v))
		case int64:
			d = decimal.NewFromInt(v)
		default:
			err = fmt.Errorf("want a number, got %T", value)
		}
		if err != nil {
			return nil, err
		}
		f, _ := d.Float64()
		return f, nil
	default:
		return value, nil
	}
}

// withArgs returns the filter arguments appended to the leading ones.
func (f filter) withArgs(leading ...any) []any {
	return append(leading, f.args...)
}
