package supplier

// Activity is one commercial front of a line of business (sells products,
// sells parts, offers services), optionally annotated with free text used by
// the description-match filter.
type Activity struct {
	Active bool
	Notes  string
}

// LineOfBusiness is one structured "atuação" entry of a supplier profile.
type LineOfBusiness struct {
	Category string
	Products Activity
	Parts    Activity
	Services Activity
}

// Stats carries the denormalized demand counters kept on the profile.
type Stats struct {
	Sent     int
	Unlocked int
	Free     int
}

// Supplier is the canonical directory entry. Raw profiles are stored in
// several legacy shapes; Normalize merges every alternate field into this
// struct exactly once, so nothing downstream touches raw documents.
type Supplier struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	WhatsApp     string // 55-prefixed digits
	WhatsAppMask string
	City         string
	State        string
	UFs          []string // derived served-UF set, sorted; may contain "BRASIL"
	ServesBrazil bool
	Categories   []string
	Lines        []LineOfBusiness
	Sponsor      bool
	FreePlan     bool
	Bio          string
	Stats        Stats
}

// IsFreeDemand reports whether the supplier receives demands at no charge.
// Sponsors always do, regardless of the free-plan flags.
func (s Supplier) IsFreeDemand() bool {
	return s.Sponsor || s.FreePlan
}

// HasUF reports whether the supplier serves the given UF. The sentinel
// "BRASIL" matches every supplier; a supplier serving all of Brazil matches
// every UF.
func (s Supplier) HasUF(uf string) bool {
	if uf == NationwideUF || s.ServesBrazil {
		return true
	}
	for _, v := range s.UFs {
		if v == uf || v == NationwideUF {
			return true
		}
	}
	return false
}
