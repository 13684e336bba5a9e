package postgres

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sitedesk/foreman/internal/domain"
)

// demoDate anchors the generated dataset; all aging and expiry windows are
// relative to it.
var demoDate = time.Date(2026, time.February, 13, 0, 0, 0, 0, time.UTC)

const randomSeed = 42

type seedVendor struct {
	name            string
	email           string
	insuranceExpiry string
	contractExpiry  string
	w9OnFile        bool
	notes           string
}

var demoVendors = []seedVendor{
	{"Martin Materials Inc", "accounts@martinmaterials.com", "2026-12-31", "2026-11-30", true, "Compliant."},
	{"Southeast Grading Co", "ap@segradingco.com", "2026-03-09", "2027-01-31", true, "Insurance renewal required within 30 days."},
	{"Quick Stop Fuel Center", "billing@quickstopfuel.com", "2026-12-31", "2026-11-30", true, "Compliant."},
	{"Blue Ridge Equipment Rental", "invoices@blueridgerental.com", "2026-12-31", "2026-11-30", true, "Compliant."},
	{"Consolidated Concrete Inc", "ar@consolidatedconcrete.com", "2026-12-31", "2026-11-30", true, "Compliant."},
	{"Piedmont Lumber & Supply", "billing@piedmontlumber.com", "2026-03-22", "2026-12-31", true, "Insurance renewal required within 45 days."},
	{"Summit Environmental Services", "contracts@summitenviro.com", "2026-02-28", "2027-06-30", true, "Insurance renewal required within 15 days."},
	{"Carolina Steel Fabricators", "accounts@carolinasteelfab.com", "2026-01-04", "2026-09-30", true, "Insurance expired; payment hold recommended."},
	{"Tri-State Paving", "office@tristatepaving.com", "2026-07-18", "2026-03-15", false, "Missing W-9; contract renewal review needed."},
	{"Valley Forge Welding", "billing@valleyforgewelding.com", "2026-11-02", "2026-03-01", true, "Contract renewal within 30 days."},
	{"Raleigh Asphalt Partners", "ap@raleighasphalt.com", "2026-12-31", "2026-11-30", true, "Compliant."},
}

type seedProject struct {
	id              string
	name            string
	divisionID      string
	budgetText      string
	percentComplete *float64
	pmName          string
	pmEmail         string
}

func pct(v float64) *float64 { return &v }

var demoProjects = []seedProject{
	{"MR-2024-015", "Maple Ridge Site Development", "SD", "$1,240,000", pct(48), "James Callahan", "jcallahan@rpmx.com"},
	{"EX-2024-022", "Highway 9 Interchange Grading", "EX", "$2,180,000", pct(60), "Sarah Whitfield", "swhitfield@rpmx.com"},
	{"ES-2024-009", "Elm Street Retaining Wall", "RW", "$485,000", pct(72), "Marcus Rivera", "mrivera@rpmx.com"},
	{"RC-2024-011", "County Road 42 Resurfacing", "RC", "$890,000", pct(85), "James Callahan", "jcallahan@rpmx.com"},
	{"LM-2024-003", "Greenfield Business Park Maint.", "LM", "$156,000/yr", nil, "Tyler Brandt", "tbrandt@rpmx.com"},
	{"SD-2024-018", "Summit Office Park Phase 2", "SD", "$1,650,000", pct(35), "Sarah Whitfield", "swhitfield@rpmx.com"},
	{"EX-2024-027", "Riverdale Flood Mitigation", "EX", "$3,200,000", pct(22), "Marcus Rivera", "mrivera@rpmx.com"},
	{"CR-2024-008", "Clearwater Reservoir Access Road", "RC", "$720,000", pct(95), "Tyler Brandt", "tbrandt@rpmx.com"},
}

var backgroundProjectNames = []string{
	"North Creek Utility Rehab", "Westpoint Earthwork Package", "Redwood Commercial Grade",
	"Briarwood Retaining Segment", "Pine Hollow Streetscape", "Stonebridge Channel Repair",
	"Highland Yard Expansion", "Lakeview Access Improvement", "Arden Park Beautification",
	"Kingsmill Drainage Phase", "Hampton Freight Yard", "Summerset Median Overhaul",
	"Cedar Run Sidewalk Repairs", "Ironwood Slope Stabilization", "Wilcrest Culvert Replacement",
	"Oakline Campus Grounds", "Trinity Lot Regrade", "Wellington Barrier Retrofit",
	"Riverbend Landscape Contract", "Carson Interchange Drainage", "Mayfair Sports Complex Grounds",
	"Mason Ridge Utility Tie-in",
}

type seedPO struct {
	poNumber string
	vendor   string
	amount   float64
	jobID    string
	glCode   string
}

var demoPurchaseOrders = []seedPO{
	{"PO-2024-0892", "Martin Materials Inc", 12450.00, "MR-2024-015", "5100"},
	{"PO-2024-0756", "Southeast Grading Co", 45000.00, "EX-2024-022", "5300"},
	{"PO-2024-1102", "Blue Ridge Equipment Rental", 8200.00, "ES-2024-009", "5200"},
	{"PO-2024-0998", "Consolidated Concrete Inc", 6780.00, "MR-2024-015", "5100"},
	{"PO-2024-1187", "Piedmont Lumber & Supply", 13200.00, "ES-2024-009", "5100"},
}

type seedInvoice struct {
	invoiceNumber string
	vendor        string
	amount        float64
	poReference   string
	invoiceDate   string
	filePath      string
	status        string
	stage         string
}

var demoInvoices = []seedInvoice{
	{"INV-9001", "Martin Materials Inc", 12450.00, "PO-2024-0892", "2026-02-09", "invoices/INV-9001.txt", "pending", "primary"},
	{"INV-9002", "Southeast Grading Co", 47250.00, "PO-2024-0756", "2026-02-10", "invoices/INV-9002.txt", "pending", "primary"},
	{"INV-9003", "Quick Stop Fuel Center", 6682.00, "", "2026-02-11", "invoices/INV-9003.txt", "pending", "primary"},
	{"INV-9004", "Piedmont Lumber & Supply", 14820.00, "PO-2024-1187", "2026-02-12", "invoices/INV-9004.txt", "pending_post_training", "post_training"},
}

type seedARRow struct {
	customerName string
	daysOut      int
	amount       float64
	isRetainage  bool
	notes        string
}

var demoARAging = []seedARRow{
	{"Greenfield Development", 35, 22400, false, ""},
	{"Summit Property Group", 67, 41800, false, ""},
	{"Parkview Associates", 95, 28500, false, "Multiple reminders sent"},
	{"Riverside Municipal", 45, 67200, true, "Retainage"},
	{"Oak Valley Homes", 15, 8900, false, "Within terms"},
}

var (
	backgroundLocations = []string{
		"Raleigh", "Durham", "Cary", "Apex", "Wake Forest", "Garner", "Knightdale",
		"Holly Springs", "Morrisville", "Fuquay", "Chapel Hill", "Clayton", "Burlington", "Sanford",
	}
	backgroundTrades = []string{
		"Concrete", "Hauling", "Earthworks", "Pipe", "Stone", "Landscape", "Welding",
		"Demolition", "Utility", "Paving", "Drilling", "Rebar", "Masonry", "Hydroseed",
	}
	entityTypes = []string{"LLC", "Inc.", "Group", "Services", "Co.", "Supply"}
	pmNames     = []string{"James Callahan", "Sarah Whitfield", "Marcus Rivera", "Tyler Brandt"}
	pmEmails    = []string{"jcallahan@rpmx.com", "swhitfield@rpmx.com", "mrivera@rpmx.com", "tbrandt@rpmx.com"}
	cogsGLCodes = []string{"5100", "5200", "5300", "5400", "5500", "5600"}
	divisionIDs = []string{"EX", "RC", "SD", "LM", "RW"}
)

// SeedDemo rebuilds the entire demo dataset: named critical rows that the
// scripted scenarios depend on, plus deterministic background noise so lists
// and searches look like a live system. Also clears every agent-generated
// table and resets agent status.
func (s *Store) SeedDemo(ctx context.Context, agents []domain.AgentMeta) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres.Store.SeedDemo: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{
		"activity_logs", "review_queue", "communications", "internal_tasks",
		"collections_queue", "invoices", "purchase_orders", "ar_aging", "projects", "vendors",
	} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("postgres.Store.SeedDemo: clear %s: %w", table, err)
		}
	}

	for _, a := range agents {
		_, err := tx.Exec(ctx,
			`INSERT INTO agents (id, name, department, workspace_type)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, department = EXCLUDED.department, workspace_type = EXCLUDED.workspace_type`,
			a.ID, a.Name, a.Department, a.WorkspaceType,
		)
		if err != nil {
			return fmt.Errorf("postgres.Store.SeedDemo: agents: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO agent_status (agent_id) VALUES ($1)
			 ON CONFLICT (agent_id) DO UPDATE
			 SET status = 'idle', current_activity = 'Ready', last_run_at = NULL,
			     cost_today = 0, tasks_completed_today = 0`,
			a.ID,
		)
		if err != nil {
			return fmt.Errorf("postgres.Store.SeedDemo: agent_status: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(randomSeed))

	vendorIDs, err := seedVendors(ctx, tx, rng)
	if err != nil {
		return err
	}
	projectIDs, err := seedProjects(ctx, tx, rng)
	if err != nil {
		return err
	}
	poNumbers, err := seedPurchaseOrders(ctx, tx, rng, vendorIDs, projectIDs)
	if err != nil {
		return err
	}
	if err := seedInvoices(ctx, tx, rng, vendorIDs, poNumbers); err != nil {
		return err
	}
	if err := seedARAging(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres.Store.SeedDemo: commit: %w", err)
	}

	return nil
}

func seedVendors(ctx context.Context, tx pgx.Tx, rng *rand.Rand) (map[string]int64, error) {
	vendors := make([]seedVendor, 0, 50)
	vendors = append(vendors, demoVendors...)

	seen := make(map[string]bool, 50)
	for _, v := range vendors {
		seen[v.name] = true
	}
	for len(vendors) < 50 {
		loc := backgroundLocations[rng.Intn(len(backgroundLocations))]
		trade := backgroundTrades[rng.Intn(len(backgroundTrades))]
		entity := entityTypes[rng.Intn(len(entityTypes))]
		name := loc + " " + trade + " " + entity
		if seen[name] {
			continue
		}
		seen[name] = true
		vendors = append(vendors, seedVendor{
			name:            name,
			email:           strings.ToLower(loc) + "." + strings.ToLower(trade) + "@vendors.rpmx.com",
			insuranceExpiry: demoDate.AddDate(0, 0, 120+rng.Intn(211)).Format("2006-01-02"),
			contractExpiry:  demoDate.AddDate(0, 0, 150+rng.Intn(211)).Format("2006-01-02"),
			w9OnFile:        true,
			notes:           "Compliant background vendor.",
		})
	}

	ids := make(map[string]int64, len(vendors))
	for _, v := range vendors {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO vendors (name, email, insurance_expiry, contract_expiry, w9_on_file, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			v.name, v.email, v.insuranceExpiry, v.contractExpiry, v.w9OnFile, v.notes,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("postgres.seedVendors: %s: %w", v.name, err)
		}
		ids[v.name] = id
	}

	return ids, nil
}

func seedProjects(ctx context.Context, tx pgx.Tx, rng *rand.Rand) ([]string, error) {
	projects := make([]seedProject, 0, len(demoProjects)+len(backgroundProjectNames))
	projects = append(projects, demoProjects...)

	for idx, name := range backgroundProjectNames {
		budget := 280000 + rng.Intn(2920001)
		projects = append(projects, seedProject{
			id:              fmt.Sprintf("BG-2025-%03d", idx+1),
			name:            name,
			divisionID:      divisionIDs[rng.Intn(len(divisionIDs))],
			budgetText:      fmt.Sprintf("$%d", budget),
			percentComplete: pct(math.Round((8+rng.Float64()*90)*10) / 10),
			pmName:          pmNames[rng.Intn(len(pmNames))],
			pmEmail:         pmEmails[rng.Intn(len(pmEmails))],
		})
	}

	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		_, err := tx.Exec(ctx,
			`INSERT INTO projects (id, name, division_id, budget_text, percent_complete, pm_name, pm_email)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.id, p.name, p.divisionID, p.budgetText, p.percentComplete, p.pmName, p.pmEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres.seedProjects: %s: %w", p.id, err)
		}
		ids = append(ids, p.id)
	}

	return ids, nil
}

func seedPurchaseOrders(ctx context.Context, tx pgx.Tx, rng *rand.Rand, vendorIDs map[string]int64, projectIDs []string) ([]string, error) {
	vendorNames := make([]string, 0, len(vendorIDs))
	for name := range vendorIDs {
		vendorNames = append(vendorNames, name)
	}
	sort.Strings(vendorNames)

	numbers := make([]string, 0, 150)
	insert := func(po seedPO) error {
		vendorID, ok := vendorIDs[po.vendor]
		if !ok {
			return fmt.Errorf("postgres.seedPurchaseOrders: unknown vendor %q", po.vendor)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO purchase_orders (po_number, vendor_id, amount, job_id, gl_code)
			 VALUES ($1, $2, $3, $4, $5)`,
			po.poNumber, vendorID, po.amount, po.jobID, po.glCode,
		)
		if err != nil {
			return fmt.Errorf("postgres.seedPurchaseOrders: %s: %w", po.poNumber, err)
		}
		numbers = append(numbers, po.poNumber)
		return nil
	}

	for _, po := range demoPurchaseOrders {
		if err := insert(po); err != nil {
			return nil, err
		}
	}

	for len(numbers) < 150 {
		amount := math.Round((1800+rng.Float64()*87200)*100) / 100
		if math.Mod(amount, 1000) < 1 {
			amount += 37.75
		}
		po := seedPO{
			poNumber: fmt.Sprintf("PO-2025-%04d", len(numbers)+1),
			vendor:   vendorNames[rng.Intn(len(vendorNames))],
			amount:   amount,
			jobID:    projectIDs[rng.Intn(len(projectIDs))],
			glCode:   cogsGLCodes[rng.Intn(len(cogsGLCodes))],
		}
		if err := insert(po); err != nil {
			return nil, err
		}
	}

	return numbers, nil
}

func seedInvoices(ctx context.Context, tx pgx.Tx, rng *rand.Rand, vendorIDs map[string]int64, poNumbers []string) error {
	vendorNames := make([]string, 0, len(vendorIDs))
	for name := range vendorIDs {
		vendorNames = append(vendorNames, name)
	}
	sort.Strings(vendorNames)

	insert := func(inv seedInvoice) error {
		vendorID, ok := vendorIDs[inv.vendor]
		if !ok {
			return fmt.Errorf("postgres.seedInvoices: unknown vendor %q", inv.vendor)
		}
		var poRef *string
		if inv.poReference != "" {
			poRef = &inv.poReference
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO invoices (invoice_number, vendor_id, amount, po_reference, invoice_date,
			                       file_path, status, processing_stage, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			inv.invoiceNumber, vendorID, inv.amount, poRef, inv.invoiceDate,
			inv.filePath, inv.status, inv.stage, "Demo invoice",
		)
		if err != nil {
			return fmt.Errorf("postgres.seedInvoices: %s: %w", inv.invoiceNumber, err)
		}
		return nil
	}

	for _, inv := range demoInvoices {
		if err := insert(inv); err != nil {
			return err
		}
	}

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for idx := 1; idx < 194; idx++ {
		amount := math.Round((450+rng.Float64()*71550)*100) / 100
		if math.Mod(amount, 1000) < 1 {
			amount += 19.25
		}
		var poRef *string
		if idx%5 == 0 {
			ref := poNumbers[rng.Intn(len(poNumbers))]
			poRef = &ref
		}
		vendorID := vendorIDs[vendorNames[rng.Intn(len(vendorNames))]]
		_, err := tx.Exec(ctx,
			`INSERT INTO invoices (invoice_number, vendor_id, amount, po_reference, invoice_date,
			                       file_path, status, processing_stage, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, 'archived', 'background', 'Background invoice')`,
			fmt.Sprintf("INV-BG-%04d", idx), vendorID, amount, poRef,
			start.AddDate(0, 0, idx%365).Format("2006-01-02"), "",
		)
		if err != nil {
			return fmt.Errorf("postgres.seedInvoices: background %d: %w", idx, err)
		}
	}

	return nil
}

func seedARAging(ctx context.Context, tx pgx.Tx) error {
	for _, row := range demoARAging {
		_, err := tx.Exec(ctx,
			`INSERT INTO ar_aging (customer_name, days_out, amount, is_retainage, notes)
			 VALUES ($1, $2, $3, $4, $5)`,
			row.customerName, row.daysOut, row.amount, row.isRetainage, row.notes,
		)
		if err != nil {
			return fmt.Errorf("postgres.seedARAging: %s: %w", row.customerName, err)
		}
	}

	return nil
}
