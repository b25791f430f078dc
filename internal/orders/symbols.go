package orders

import "strings"

// ConfiguredSymbolValidator accepts exactly the NSE cash-market symbols
// named in configuration (spec §6 `symbols`), a trimmed-down version of
// the teacher's multi-identifier resolver
// (internal/modules/universe/symbol_resolver.go, which cross-references
// ISIN/Tradernet/Yahoo identifiers for a global multi-venue universe).
// This system trades one exchange's cash symbols directly, so the
// ISIN/ticker-format translation that resolver exists for doesn't apply;
// a flat allow-list is the correct-sized replacement.
type ConfiguredSymbolValidator struct {
	known map[string]bool
}

// NewConfiguredSymbolValidator builds a validator over the given symbols.
// Matching is case-insensitive: both the configured symbols and the
// looked-up symbol are upper-cased.
func NewConfiguredSymbolValidator(symbols []string) *ConfiguredSymbolValidator {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[strings.ToUpper(s)] = true
	}
	return &ConfiguredSymbolValidator{known: known}
}

// Known reports whether symbol is in the configured universe.
func (v *ConfiguredSymbolValidator) Known(symbol string) bool {
	return v.known[strings.ToUpper(symbol)]
}

var _ SymbolValidator = (*ConfiguredSymbolValidator)(nil)
