package reconcile

// LanguageUnknown is used when a country has no entry in the table.
const LanguageUnknown = "und"

// countryLanguage maps ISO 3166-1 alpha-2 country codes to the display
// language used for pool and station names in that country.
var countryLanguage = map[string]string{
	"AT": "de",
	"BE": "nl",
	"CH": "de",
	"CZ": "cs",
	"DE": "de",
	"DK": "da",
	"ES": "es",
	"FI": "fi",
	"FR": "fr",
	"GB": "en",
	"HU": "hu",
	"IE": "en",
	"IT": "it",
	"LU": "fr",
	"NL": "nl",
	"NO": "no",
	"PL": "pl",
	"PT": "pt",
	"SE": "sv",
	"SI": "sl",
	"SK": "sk",
}

// languageForCountry derives the display language for a country code.
func languageForCountry(country string) string {
	if lang, ok := countryLanguage[country]; ok {
		return lang
	}
	return LanguageUnknown
}
