// Package address prepares customer postal addresses for gateway connectors that
// reject incomplete addresses.
package address

import (
	"strings"
	"unicode"
)

const zipcodeLength = 8

// Fallback is sent when neither the caller nor the gateway hold a complete address.
// It is never shown to the payer.
var Fallback = Address{
	Street:       "Rua Consolação",
	Number:       "S/N",
	Neighborhood: "Consolação",
	City:         "São Paulo",
	State:        "SP",
	Zipcode:      "01302000",
	Country:      "BR",
}

type Address struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
	State        string
	Zipcode      string
	Country      string
}

// Complete reports whether street, city, a known state and an 8 digit postal code are
// present.
func (a Address) Complete() bool {
	_, ok := StateCode(a.State)
	return strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.City) != "" &&
		ok &&
		len(digits(a.Zipcode)) == zipcodeLength
}

// Normalized returns a copy with trimmed fields, an 8 digit postal code and
// defaults for the optional fields.
func (a Address) Normalized() Address {
	a.Street = strings.TrimSpace(a.Street)
	a.Number = strings.TrimSpace(a.Number)
	if a.Number == "" {
		a.Number = "S/N"
	}
	a.Neighborhood = strings.TrimSpace(a.Neighborhood)
	a.City = strings.TrimSpace(a.City)
	if code, ok := StateCode(a.State); ok {
		a.State = code
	}
	a.Zipcode = NormalizeZipcode(a.Zipcode)
	if a.Country == "" {
		a.Country = "BR"
	}
	return a
}

// Resolve returns the first complete candidate in priority order, normalized.
// When none is complete, the fallback address is returned and usedFallback is true.
func Resolve(candidates ...Address) (addr Address, usedFallback bool) {
	for _, c := range candidates {
		if c.Complete() {
			return c.Normalized(), false
		}
	}
	return Fallback.Normalized(), true
}

// NormalizeZipcode strips every non digit, right pads with zeros and truncates the
// result so it always has exactly 8 digits.
func NormalizeZipcode(zipcode string) string {
	d := digits(zipcode)
	if len(d) > zipcodeLength {
		return d[:zipcodeLength]
	}
	return d + strings.Repeat("0", zipcodeLength-len(d))
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// states maps the federative unit codes and their names, upper cased and without
// accents, to the code.
var states = map[string]string{
	"AC": "AC", "ACRE": "AC",
	"AL": "AL", "ALAGOAS": "AL",
	"AP": "AP", "AMAPA": "AP",
	"AM": "AM", "AMAZONAS": "AM",
	"BA": "BA", "BAHIA": "BA",
	"CE": "CE", "CEARA": "CE",
	"DF": "DF", "DISTRITO FEDERAL": "DF",
	"ES": "ES", "ESPIRITO SANTO": "ES",
	"GO": "GO", "GOIAS": "GO",
	"MA": "MA", "MARANHAO": "MA",
	"MT": "MT", "MATO GROSSO": "MT",
	"MS": "MS", "MATO GROSSO DO SUL": "MS",
	"MG": "MG", "MINAS GERAIS": "MG",
	"PA": "PA", "PARA": "PA",
	"PB": "PB", "PARAIBA": "PB",
	"PR": "PR", "PARANA": "PR",
	"PE": "PE", "PERNAMBUCO": "PE",
	"PI": "PI", "PIAUI": "PI",
	"RJ": "RJ", "RIO DE JANEIRO": "RJ",
	"RN": "RN", "RIO GRANDE DO NORTE": "RN",
	"RS": "RS", "RIO GRANDE DO SUL": "RS",
	"RO": "RO", "RONDONIA": "RO",
	"RR": "RR", "RORAIMA": "RR",
	"SC": "SC", "SANTA CATARINA": "SC",
	"SP": "SP", "SAO PAULO": "SP",
	"SE": "SE", "SERGIPE": "SE",
	"TO": "TO", "TOCANTINS": "TO",
}

var accents = strings.NewReplacer(
	"Á", "A", "À", "A", "Â", "A", "Ã", "A",
	"É", "E", "Ê", "E",
	"Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O",
	"Ú", "U",
	"Ç", "C",
)

// StateCode returns the two letter code of a Brazilian state given either its code or
// its name. ok is false for anything else.
func StateCode(state string) (code string, ok bool) {
	key := accents.Replace(strings.ToUpper(strings.Join(strings.Fields(state), " ")))
	code, ok = states[key]
	return code, ok
}
