package domain

import "context"

// Project is one active job, as read from the projects table.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DivisionID string `json:"division_id"`
	PMName     string `json:"pm_name"`
	PMEmail    string `json:"pm_email"`
}

type ProjectRepository interface {
	Get(ctx context.Context, id string) (*Project, error)
}
