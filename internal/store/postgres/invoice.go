package postgres

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type InvoiceRepo struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepo(pool *pgxpool.Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

func (r *InvoiceRepo) ListPending(ctx context.Context, includePostTraining bool) ([]*domain.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.invoice_number, v.name, i.amount, COALESCE(i.po_reference, ''), i.file_path,
		        i.status, COALESCE(i.job_id, ''), COALESCE(i.gl_code, ''), i.notes
		 FROM invoices i
		 JOIN vendors v ON i.vendor_id = v.id
		 WHERE i.status = 'pending'
		    OR (i.status = 'pending_post_training' AND $1)
		 ORDER BY i.invoice_number`,
		includePostTraining,
	)
	if err != nil {
		return nil, fmt.Errorf("invoiceRepo.ListPending: %w", err)
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(
			&inv.InvoiceNumber, &inv.Vendor, &inv.Amount, &inv.POReference, &inv.FilePath,
			&inv.Status, &inv.JobID, &inv.GLCode, &inv.Notes,
		); err != nil {
			return nil, fmt.Errorf("invoiceRepo.ListPending: scan: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoiceRepo.ListPending: rows: %w", err)
	}

	return invoices, nil
}

func (r *InvoiceRepo) SearchPOs(ctx context.Context, poNumber, vendor string, amount *float64) ([]*domain.POMatch, error) {
	if poNumber != "" {
		rows, err := r.pool.Query(ctx,
			`SELECT p.po_number, p.amount, p.job_id, p.gl_code, v.name
			 FROM purchase_orders p
			 JOIN vendors v ON p.vendor_id = v.id
			 WHERE p.po_number = $1`,
			poNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("invoiceRepo.SearchPOs: %w", err)
		}
		defer rows.Close()

		matches, err := scanPOMatches(rows, "invoiceRepo.SearchPOs")
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			m.Confidence = 0.99
		}
		return matches, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.po_number, p.amount, p.job_id, p.gl_code, v.name
		 FROM purchase_orders p
		 JOIN vendors v ON p.vendor_id = v.id
		 ORDER BY p.po_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("invoiceRepo.SearchPOs: %w", err)
	}
	defer rows.Close()

	candidates, err := scanPOMatches(rows, "invoiceRepo.SearchPOs")
	if err != nil {
		return nil, err
	}

	var scored []*domain.POMatch
	for _, c := range candidates {
		if amount == nil || math.Abs(c.Amount-*amount) > 0.01 {
			continue
		}
		vendorScore := similarity(strings.ToLower(vendor), strings.ToLower(c.Vendor))
		if vendorScore < 0.68 {
			continue
		}
		c.Confidence = math.Round((vendorScore*0.7+0.3)*1000) / 1000
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })
	if len(scored) > 5 {
		scored = scored[:5]
	}

	return scored, nil
}

func (r *InvoiceRepo) CheckDuplicate(ctx context.Context, poNumber, currentInvoice string) ([]*domain.DuplicateRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT invoice_number, status
		 FROM invoices
		 WHERE po_reference = $1
		   AND invoice_number <> $2
		   AND status = 'matched'`,
		poNumber, currentInvoice,
	)
	if err != nil {
		return nil, fmt.Errorf("invoiceRepo.CheckDuplicate: %w", err)
	}
	defer rows.Close()

	var refs []*domain.DuplicateRef
	for rows.Next() {
		var ref domain.DuplicateRef
		if err := rows.Scan(&ref.InvoiceNumber, &ref.Status); err != nil {
			return nil, fmt.Errorf("invoiceRepo.CheckDuplicate: scan: %w", err)
		}
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoiceRepo.CheckDuplicate: rows: %w", err)
	}

	return refs, nil
}

func (r *InvoiceRepo) AssignCoding(ctx context.Context, invoiceNumber, jobID, glCode string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET job_id = $1, gl_code = $2 WHERE invoice_number = $3`,
		jobID, glCode, invoiceNumber,
	)
	if err != nil {
		return fmt.Errorf("invoiceRepo.AssignCoding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoiceRepo.AssignCoding: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *InvoiceRepo) SetStatus(ctx context.Context, invoiceNumber, status, notes string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $1, notes = $2 WHERE invoice_number = $3`,
		status, notes, invoiceNumber,
	)
	if err != nil {
		return fmt.Errorf("invoiceRepo.SetStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoiceRepo.SetStatus: %w", domain.ErrNotFound)
	}

	return nil
}

func scanPOMatches(rows pgx.Rows, caller string) ([]*domain.POMatch, error) {
	var matches []*domain.POMatch
	for rows.Next() {
		var m domain.POMatch
		if err := rows.Scan(&m.PONumber, &m.Amount, &m.JobID, &m.GLCode, &m.Vendor); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return matches, nil
}
