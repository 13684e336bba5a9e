package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sitedesk/foreman/internal/domain"
)

type ListCommunicationsInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"200" doc:"Max results"`
}

type ListCommunicationsOutput struct {
	Body []*domain.Communication
}

func RegisterCommunicationRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-communications",
		Method:      http.MethodGet,
		Path:        "/communications",
		Summary:     "List outbound communications across all agents",
		Tags:        []string{"Communications"},
	}, func(ctx context.Context, input *ListCommunicationsInput) (*ListCommunicationsOutput, error) {
		comms, err := d.Store.Communications().List(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list communications", err)
		}
		return &ListCommunicationsOutput{Body: comms}, nil
	})
}
