package domain

// Record is the serialized form of one cart line as it is kept in the session.
type Record struct {
	ProductPK int64   `json:"product_pk"`
	OptionPKs []int64 `json:"option_pks"`
	Quantity  int     `json:"quantity"`
}
