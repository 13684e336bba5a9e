package domain

import "context"

// Invoice is one vendor invoice awaiting processing.
type Invoice struct {
	InvoiceNumber string  `json:"invoice_number"`
	Vendor        string  `json:"vendor"`
	Amount        float64 `json:"amount"`
	POReference   string  `json:"po_reference,omitempty"`
	FilePath      string  `json:"file_path,omitempty"`
	Status        string  `json:"status"` // "pending", "matched", "exception"
	JobID         string  `json:"job_id,omitempty"`
	GLCode        string  `json:"gl_code,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// PurchaseOrder is one open purchase order, joined with its vendor name.
type PurchaseOrder struct {
	PONumber string  `json:"po_number"`
	Amount   float64 `json:"amount"`
	JobID    string  `json:"job_id"`
	GLCode   string  `json:"gl_code"`
	Vendor   string  `json:"vendor"`
}

// POMatch is a scored PO candidate returned by a search.
type POMatch struct {
	PurchaseOrder
	Confidence float64 `json:"confidence"`
}

// DuplicateRef identifies another invoice already matched to the same PO.
type DuplicateRef struct {
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
}

type InvoiceRepository interface {
	// ListPending returns invoices awaiting processing. When
	// includePostTraining is set, invoices parked as "pending_post_training"
	// are picked up as well.
	ListPending(ctx context.Context, includePostTraining bool) ([]*Invoice, error)
	// SearchPOs returns candidates for an invoice. With a PO number the match
	// is exact; otherwise candidates are scored by amount and vendor-name
	// similarity, best first, at most five.
	SearchPOs(ctx context.Context, poNumber, vendor string, amount *float64) ([]*POMatch, error)
	CheckDuplicate(ctx context.Context, poNumber, currentInvoice string) ([]*DuplicateRef, error)
	AssignCoding(ctx context.Context, invoiceNumber, jobID, glCode string) error
	SetStatus(ctx context.Context, invoiceNumber, status, notes string) error
}
