package demand

import "time"

// Status is the curation state of a demand. pending/approved/rejected drive
// the curation workflow; in_progress and closed are forward states used by
// the admin listing once an approved demand is being worked or finished.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// ValidStatus reports whether s is a known curation status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusInProgress, StatusClosed:
		return true
	default:
		return false
	}
}

// Limits on demand attachments.
const (
	MaxTags   = 3
	MaxImages = 5
)

// Demand is a buyer request under admin curation.
type Demand struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    string
	Subcategory string
	State       string
	City        string
	Deadline    string
	Budget      *int64 // estimated budget in whole reais, free-form
	Notes       string // admin observations / curation notes
	Tags        []string
	Images      []string
	PDFURL      *string

	ContactName         string
	ContactEmail        string
	ContactWhatsApp     string // 55-prefixed digits
	ContactWhatsAppMask string

	DefaultPriceCents int64 // default unlock price in minor units
	Currency          string

	UnlockCap   *int // nil = unlimited
	UnlockCount int  // running "liberações" counter
	UnlockedFor []string

	Status        Status
	Curated       bool
	CurationNotes string
	CuratedAt     *time.Time
	PublishedAt   *time.Time
	LastSentAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpdateParams carries the editable fields of the admin form.
type UpdateParams struct {
	Title             string
	Description       string
	Category          string
	Subcategory       string // free text when category is "Outros"
	State             string
	City              string
	Deadline          string
	Budget            *int64
	Notes             string
	Tags              []string
	Images            []string
	PDFURL            *string
	ContactName       string
	ContactEmail      string
	ContactWhatsApp   string // any input shape; normalized before persisting
	DefaultPriceCents int64
	UnlockCap         *int
}

// Filters narrows the admin listing.
type Filters struct {
	Status   Status
	Category string
	State    string
	Page     int
	PageSize int
}
