package domain

// Kind asset class of an instrument.
type Kind string

const (
	// KindEquity exchange-listed stock or fund.
	KindEquity Kind = "equity"
	// KindCrypto cryptocurrency.
	KindCrypto Kind = "crypto"
)

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the Kind value is valid.
func (k Kind) IsValid() bool {
	return k == KindEquity || k == KindCrypto
}
