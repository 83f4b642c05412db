// Package domain defines core data structures used throughout the valuation engine.
package domain

import "strings"

// CryptoSigil marks a symbol as a cryptocurrency ticker, e.g. "$BTC".
const CryptoSigil = "$"

// Instrument tradable symbol with its asset kind.
type Instrument struct {
	// Symbol normalized ticker: upper case for equities, lower case for crypto.
	Symbol string
	// Kind asset class derived from the raw symbol.
	Kind Kind
}

// Classify derives the instrument from its raw symbol. Every symbol classifies
// to exactly one kind: a leading sigil means crypto, anything else is equity.
func Classify(raw string) Instrument {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, CryptoSigil) {
		return Instrument{
			Symbol: strings.ToLower(strings.TrimPrefix(s, CryptoSigil)),
			Kind:   KindCrypto,
		}
	}

	return Instrument{Symbol: strings.ToUpper(s), Kind: KindEquity}
}

// Key returns the normalized symbol used in cache keys.
func (i Instrument) Key() string {
	return i.Symbol
}

// String returns the raw (sigil-prefixed for crypto) representation.
func (i Instrument) String() string {
	if i.Kind == KindCrypto {
		return CryptoSigil + strings.ToUpper(i.Symbol)
	}
	return i.Symbol
}

// Ticker returns the upper-cased ticker without sigil.
func (i Instrument) Ticker() string {
	return strings.ToUpper(i.Symbol)
}
