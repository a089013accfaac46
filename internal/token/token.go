package token

import (
	"strings"
)

// MaxSymbolLen is the canonical symbol length cap used as a dedup/display key.
const MaxSymbolLen = 12

// UnknownSymbol is the placeholder for symbols that cannot be resolved.
const UnknownSymbol = "UNKNOWN"

// Token is a single on-chain asset in the pulse universe. The address is the
// unique key; the symbol is canonical (uppercase, at most MaxSymbolLen runes).
// Immutable once constructed.
type Token struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// New builds a Token with a sanitized symbol and a trimmed address.
func New(address, symbol string) Token {
	return Token{
		Address: strings.TrimSpace(address),
		Symbol:  SanitizeSymbol(symbol),
	}
}

// SanitizeSymbol normalizes a free-form symbol into its canonical form:
// trimmed, uppercase, truncated to MaxSymbolLen runes. Unresolvable input
// maps to UnknownSymbol. Pure and total.
func SanitizeSymbol(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return UnknownSymbol
	}

	s = strings.ToUpper(s)
	runes := []rune(s)
	if len(runes) > MaxSymbolLen {
		s = string(runes[:MaxSymbolLen])
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownSymbol
	}
	return s
}

// ParseList parses a colon/comma-delimited "SYM:address" env list, e.g.
// "WIF:EKpQ...,BONK:DezX...". Entries without an address are dropped.
func ParseList(raw string) []Token {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var tokens []Token
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		sym, addr, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		tokens = append(tokens, New(addr, sym))
	}
	return tokens
}

// DefaultWatchlist is the hardcoded last-resort watchlist used when neither
// the live watchlist source nor the env-configured list is available.
func DefaultWatchlist() []Token {
	return []Token{
		New("So11111111111111111111111111111111111111112", "SOL"),
		New("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "BONK"),
		New("EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm", "WIF"),
		New("JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", "JUP"),
		New("HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3", "PYTH"),
	}
}
