package supplier

import (
	"sort"
	"strings"

	"pedraum/textutil"
)

// NationwideUF is the sentinel for nationwide coverage.
const NationwideUF = "BRASIL"

// UFs lists the 27 Brazilian state abbreviations.
var UFs = []string{
	"AC", "AL", "AP", "AM", "BA", "CE", "DF", "ES", "GO", "MA", "MT", "MS", "MG",
	"PA", "PB", "PR", "PE", "PI", "RJ", "RN", "RS", "RO", "RR", "SC", "SP", "SE", "TO",
}

var ufSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(UFs))
	for _, uf := range UFs {
		m[uf] = struct{}{}
	}
	return m
}()

// ufByName maps folded state names to abbreviations. "brasil" and "nacional"
// resolve to the nationwide sentinel.
var ufByName = map[string]string{
	"acre": "AC", "alagoas": "AL", "amapa": "AP", "amazonas": "AM", "bahia": "BA",
	"ceara": "CE", "distrito federal": "DF", "espirito santo": "ES", "goias": "GO",
	"maranhao": "MA", "mato grosso": "MT", "mato grosso do sul": "MS",
	"minas gerais": "MG", "para": "PA", "paraiba": "PB", "parana": "PR",
	"pernambuco": "PE", "piaui": "PI", "rio de janeiro": "RJ",
	"rio grande do norte": "RN", "rio grande do sul": "RS", "rondonia": "RO",
	"roraima": "RR", "santa catarina": "SC", "sao paulo": "SP", "sergipe": "SE",
	"tocantins": "TO", "brasil": NationwideUF, "nacional": NationwideUF,
}

// IsUF reports whether the string is a valid two-letter state code.
func IsUF(s string) bool {
	_, ok := ufSet[s]
	return ok
}

// ToUF resolves a value to a state abbreviation: exact two-letter codes pass
// through, full state names (diacritic-insensitive) are looked up, anything
// else yields "".
func ToUF(val string) string {
	if val == "" {
		return ""
	}
	upp := strings.ToUpper(strings.TrimSpace(val))
	if IsUF(upp) {
		return upp
	}
	return ufByName[textutil.Fold(val)]
}

var ufSeparators = strings.NewReplacer(
	"|", " ", "/", " ", "\\", " ", "-", " ", "–", " ", "—", " ",
	",", " ", ";", " ", ":", " ", "(", " ", ")", " ", "[", " ", "]", " ",
)

// ExtractUFsFromText scans free text ("Atende SP e RJ") token by token for
// state codes or single-word state names and returns the distinct UFs found.
func ExtractUFsFromText(val string) []string {
	if val == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Fields(ufSeparators.Replace(val)) {
		uf := ToUF(part)
		if uf == "" {
			continue
		}
		if _, dup := seen[uf]; dup {
			continue
		}
		seen[uf] = struct{}{}
		out = append(out, uf)
	}
	return out
}

func sortedUFs(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for uf := range set {
		out = append(out, uf)
	}
	sort.Strings(out)
	return out
}
