package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sitedesk/foreman/internal/agent"
)

type DemoResetOutput struct {
	Body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
}

func RegisterDemoRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "demo-reset",
		Method:      http.MethodPost,
		Path:        "/demo/reset",
		Summary:     "Reset all demo data",
		Tags:        []string{"Demo"},
	}, func(ctx context.Context, _ *struct{}) (*DemoResetOutput, error) {
		if err := d.Seeder.SeedDemo(ctx, agent.Catalog); err != nil {
			return nil, huma.Error500InternalServerError("demo reset failed", err)
		}
		// Stale in-memory sessions would keep serving pre-reset output.
		d.Registry.Clear()

		out := &DemoResetOutput{}
		out.Body.Status = "ok"
		out.Body.Message = "Demo data reset complete"
		return out, nil
	})
}
