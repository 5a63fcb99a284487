package portfolio

import "strings"

var companyNames = map[string]string{
	"AAPL":  "Apple Inc.",
	"AMZN":  "Amazon.com Inc.",
	"AVGO":  "Broadcom Inc.",
	"BRK.A": "Berkshire Hathaway Inc.",
	"BRK.B": "Berkshire Hathaway Inc.",
	"CAT":   "Caterpillar Inc.",
	"CRWD":  "CrowdStrike Holdings Inc.",
	"DE":    "Deere & Company",
	"EMR":   "Emerson Electric Co.",
	"GD":    "General Dynamics Corporation",
	"GE":    "General Electric Company",
	"GEV":   "GE Vernova Inc.",
	"GLD":   "SPDR Gold Shares",
	"GOOGL": "Alphabet Inc.",
	"HON":   "Honeywell International Inc.",
	"META":  "Meta Platforms Inc.",
	"MO":    "Altria Group Inc.",
	"MSFT":  "Microsoft Corporation",
	"NOW":   "ServiceNow Inc.",
	"NVDA":  "NVIDIA Corporation",
	"PFE":   "Pfizer Inc.",
	"PM":    "Philip Morris International Inc.",
	"RTX":   "RTX Corporation",
	"SHEL":  "Shell plc",
	"TSLA":  "Tesla Inc.",
	"XLE":   "Energy Select Sector SPDR Fund",
}

// CompanyName returns the display name for ticker, or the ticker itself when unknown
func CompanyName(ticker string) string {
	if name, ok := LookupCompanyName(ticker); ok {
		return name
	}
	return ticker
}

// LookupCompanyName reports the known display name for ticker.
// Class share separators ("-", "/") are matched as ".".
func LookupCompanyName(ticker string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	if name, ok := companyNames[key]; ok {
		return name, true
	}
	key = strings.NewReplacer("-", ".", "/", ".").Replace(key)
	name, ok := companyNames[key]
	return name, ok
}
