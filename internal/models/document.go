package models

import "time"

// DocumentRole declares what part a document plays in a filing package.
type DocumentRole string

const (
	RolePrimary  DocumentRole = "primary"
	RoleAnnexure DocumentRole = "annexure"
	RoleIndex    DocumentRole = "index"
	RoleOther    DocumentRole = "other"
)

// PDFContentType is the only content type accepted for primary and annexure uploads.
const PDFContentType = "application/pdf"

// DocumentRef identifies one file in a filing package, together with the
// metadata the scrutiny rules evaluate. Metadata is declared at intake
// (or by a resolution step); the engine never parses file bytes itself.
type DocumentRef struct {
	ID          string
	DisplayName string
	Role        DocumentRole
	Label       string // annexure label, e.g. "P-4"; empty for non-annexures
	ContentType string
	PageCount   int
	SizeBytes   int64

	// Narration is the body prose of the document. Only meaningful for the
	// primary petition, whose narration references annexures by label.
	Narration string

	// Formatting and language metadata, as detected upstream.
	LeftMarginInches float64
	FontFamily       string
	Language         string         // dominant language code, e.g. "hi"
	PageLanguages    map[int]string // 1-based pages whose language differs from Language

	// StampDutyPaidPaise is the court fee detected as paid. Primary only.
	StampDutyPaidPaise int64

	// IndexEntries lists the annexure labels a role-index document declares.
	IndexEntries []string

	// PageNumbers are the printed page numbers detected on the document,
	// in physical page order.
	PageNumbers []int

	StorageKey string // object key in remote storage, empty for local intake
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy. Resolution steps replace documents rather than
// mutating them in place, so callers clone before editing.
func (d *DocumentRef) Clone() *DocumentRef {
	c := *d
	if d.PageLanguages != nil {
		c.PageLanguages = make(map[int]string, len(d.PageLanguages))
		for k, v := range d.PageLanguages {
			c.PageLanguages[k] = v
		}
	}
	if d.IndexEntries != nil {
		c.IndexEntries = append([]string(nil), d.IndexEntries...)
	}
	if d.PageNumbers != nil {
		c.PageNumbers = append([]int(nil), d.PageNumbers...)
	}
	return &c
}

// IsPDF reports whether the document's declared type is an accepted filing type.
func (d *DocumentRef) IsPDF() bool {
	return d.ContentType == PDFContentType
}
