package agent

import "github.com/sitedesk/foreman/internal/domain"

// Catalog is the fixed agent roster. Order is the display order.
var Catalog = []domain.AgentMeta{
	{ID: "po_match", Name: "PO Match Agent", Department: "Accounts Payable", WorkspaceType: "invoice"},
	{ID: "ar_followup", Name: "AR Follow-Up Agent", Department: "Accounts Receivable", WorkspaceType: "email"},
	{ID: "financial_reporting", Name: "Financial Reporting Agent", Department: "General Accounting", WorkspaceType: "report"},
	{ID: "vendor_compliance", Name: "Vendor Compliance Monitor", Department: "Procurement", WorkspaceType: "table"},
	{ID: "schedule_optimizer", Name: "Schedule Optimizer", Department: "Scheduling", WorkspaceType: "map"},
	{ID: "progress_tracking", Name: "Progress Tracking Agent", Department: "Project Management", WorkspaceType: "table"},
	{ID: "maintenance_scheduler", Name: "Maintenance Scheduler", Department: "Fleet & Equipment", WorkspaceType: "table"},
	{ID: "training_compliance", Name: "Training Compliance Agent", Department: "Safety", WorkspaceType: "table"},
	{ID: "onboarding", Name: "Onboarding Agent", Department: "Human Resources", WorkspaceType: "checklist"},
	{ID: "cost_estimator", Name: "Cost Estimator", Department: "Estimating", WorkspaceType: "report"},
	{ID: "inquiry_router", Name: "Inquiry Router", Department: "Customer Service", WorkspaceType: "email"},
}

// CatalogByID indexes the roster by agent id.
var CatalogByID = func() map[string]domain.AgentMeta {
	m := make(map[string]domain.AgentMeta, len(Catalog))
	for _, a := range Catalog {
		m[a.ID] = a
	}
	return m
}()
