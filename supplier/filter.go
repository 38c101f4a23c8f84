package supplier

import (
	"strings"

	"pedraum/textutil"
)

// Business kinds accepted by the type filter.
const (
	KindVenda    = "venda"
	KindPecas    = "pecas"
	KindServicos = "servicos"
)

// Filters compose by logical AND; zero values pass everything through.
type Filters struct {
	Category string
	UF       string
	Kind     string // venda | pecas | servicos
	Query    string // free text against name, email, phone, city, id
	// Keywords enables the description-overlap match: a supplier passes when
	// some line with an active products front shares at least one keyword
	// with its notes. Left empty by the admin API (the smart filter ships
	// disabled).
	Keywords []string
}

// Apply runs the predicate chain over the directory snapshot. The input slice
// is never mutated and the directory's name order is preserved.
func Apply(list []Supplier, f Filters) []Supplier {
	category := textutil.Fold(f.Category)
	uf := wantedUF(f.UF)
	kind := strings.ToLower(strings.TrimSpace(f.Kind))
	query := textutil.Fold(f.Query)

	out := make([]Supplier, 0, len(list))
	for _, s := range list {
		if len(f.Keywords) > 0 && !matchesKeywords(s, f.Keywords) {
			continue
		}
		if category != "" && !matchesCategory(s, category) {
			continue
		}
		if uf != "" && !s.HasUF(uf) {
			continue
		}
		if kind != "" && !matchesKind(s, kind) {
			continue
		}
		if query != "" && !matchesQuery(s, query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func wantedUF(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if len(v) == 2 && IsUF(strings.ToUpper(v)) {
		return strings.ToUpper(v)
	}
	return strings.ToUpper(v)
}

func matchesCategory(s Supplier, folded string) bool {
	for _, c := range s.Categories {
		if strings.Contains(textutil.Fold(c), folded) {
			return true
		}
	}
	return false
}

func matchesKind(s Supplier, kind string) bool {
	for _, l := range s.Lines {
		switch kind {
		case KindVenda:
			if l.Products.Active {
				return true
			}
		case KindPecas:
			if l.Parts.Active {
				return true
			}
		case KindServicos:
			if l.Services.Active {
				return true
			}
		}
	}
	return false
}

func matchesQuery(s Supplier, folded string) bool {
	wpp := s.WhatsApp
	if wpp == "" {
		wpp = s.Phone
	}
	return strings.Contains(textutil.Fold(s.Name), folded) ||
		strings.Contains(textutil.Fold(s.Email), folded) ||
		strings.Contains(textutil.Fold(wpp), folded) ||
		strings.Contains(textutil.Fold(s.City), folded) ||
		strings.Contains(strings.ToLower(s.ID), folded)
}

// matchesKeywords mirrors the experimental description filter: only lines
// actively selling products participate, and the overlap test is plain
// substring containment against the line notes.
func matchesKeywords(s Supplier, keywords []string) bool {
	for _, l := range s.Lines {
		if !l.Products.Active {
			continue
		}
		notes := textutil.Fold(l.Products.Notes)
		if notes == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(notes, kw) {
				return true
			}
		}
	}
	return false
}
