package books

import "strings"

// exchangeAliases maps caller-facing exchange names onto the identifiers the
// venue layer is registered under.
var exchangeAliases = map[string]string{
	"huobi": "huobipro",
}

// currencyAliases substitutes graph currency codes per exchange before
// building a venue symbol. The graph carries USD; Bitfinex lists those
// markets as USDT.
var currencyAliases = map[string]map[string]string{
	"bitfinex": {"USD": "USDT"},
}

// CanonicalExchange resolves an exchange name through the alias table.
func CanonicalExchange(name string) string {
	key := strings.ToLower(name)
	if canon, ok := exchangeAliases[key]; ok {
		return canon
	}
	return key
}

func venueCurrency(exchange, symbol string) string {
	if subs, ok := currencyAliases[exchange]; ok {
		if alias, ok := subs[symbol]; ok {
			return alias
		}
	}
	return symbol
}

// venueSymbol joins two currency codes into a market symbol the way venues
// list them, applying per-exchange currency substitutions.
func venueSymbol(exchange, base, quote string) string {
	return venueCurrency(exchange, base) + "/" + venueCurrency(exchange, quote)
}
