package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sitedesk/foreman/internal/domain"
)

type ReviewActionInput struct {
	ItemID int64 `path:"item_id" doc:"Review item ID"`
	Body   struct {
		Action string `json:"action" minLength:"1" doc:"One of approve, reject, escalate"`
	}
}

type ReviewActionOutput struct {
	Body struct {
		Status string `json:"status"`
		Action string `json:"action"`
	}
}

func RegisterReviewRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "review-action",
		Method:      http.MethodPost,
		Path:        "/review-queue/{item_id}/action",
		Summary:     "Resolve a review queue item",
		Tags:        []string{"Review Queue"},
	}, func(ctx context.Context, input *ReviewActionInput) (*ReviewActionOutput, error) {
		action := strings.ToLower(strings.TrimSpace(input.Body.Action))
		switch action {
		case "approve", "reject", "escalate":
		default:
			return nil, huma.Error400BadRequest("action must be one of approve/reject/escalate")
		}

		if err := d.Store.Review().Resolve(ctx, input.ItemID, action); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("review item not found")
			}
			return nil, huma.Error500InternalServerError("failed to resolve review item", err)
		}

		out := &ReviewActionOutput{}
		out.Body.Status = "ok"
		out.Body.Action = action
		return out, nil
	})
}
