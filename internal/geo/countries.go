package geo

import "strings"

type countryCurrency struct {
	code   string
	symbol string
}

// Static country→currency table. Unmapped countries display USD.
var currencyByCountry = map[string]countryCurrency{
	"US": {"usd", "$"},
	"CA": {"cad", "C$"},
	"GB": {"gbp", "£"},
	"AU": {"aud", "A$"},
	"JP": {"jpy", "¥"},
	"MX": {"mxn", "MX$"},
	"BR": {"brl", "R$"},
	"IN": {"inr", "₹"},
	"CO": {"cop", "COL$"},

	// Eurozone
	"AT": {"eur", "€"}, "BE": {"eur", "€"}, "DE": {"eur", "€"},
	"ES": {"eur", "€"}, "FI": {"eur", "€"}, "FR": {"eur", "€"},
	"GR": {"eur", "€"}, "IE": {"eur", "€"}, "IT": {"eur", "€"},
	"NL": {"eur", "€"}, "PT": {"eur", "€"},
}

func preferenceForCountry(countryCode string) Preference {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if cc == "" {
		return DefaultPreference
	}

	cur, ok := currencyByCountry[cc]
	if !ok {
		return Preference{CountryCode: cc, CurrencyCode: "usd", CurrencySymbol: "$"}
	}
	return Preference{CountryCode: cc, CurrencyCode: cur.code, CurrencySymbol: cur.symbol}
}
