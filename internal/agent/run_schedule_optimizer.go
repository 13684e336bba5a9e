package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

func (rt *Runtime) runScheduleOptimizer(ctx context.Context, em *Emitter) (map[string]any, error) {
	payload, err := fixtures.Load("dispatch_jobs.json")
	if err != nil {
		return nil, err
	}
	jobs, _ := payload["jobs"].([]any)
	crews, _ := payload["crews"].([]any)

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading dispatch data: %d jobs across the Raleigh-Durham metro area "+
			"with %d available crews. Analyzing GPS coordinates and job requirements.", len(jobs), len(crews))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "load_dispatch_data",
		map[string]any{"jobs": len(jobs), "crews": len(crews)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.ToolResult(ctx, "load_dispatch_data",
		map[string]any{"jobs_loaded": len(jobs), "crews_available": len(crews)},
		fmt.Sprintf("Loaded %d dispatch jobs and %d crew assignments.", len(jobs), len(crews))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx,
		"Running route optimization algorithm. Minimizing total drive time by clustering nearby jobs "+
			"and assigning them to the closest available crew while respecting crew skill requirements."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "optimize_routes",
		map[string]any{"algorithm": "proximity_cluster", "jobs": len(jobs)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: "schedule_optimizer",
		Objective: "Optimize crew assignments and routes. Return JSON with keys: " +
			"assignments (object mapping crew_id to ordered job IDs), " +
			"unoptimized_drive_minutes, optimized_drive_minutes, improvement_percent, rationale.",
		Context:     payload,
		MaxTokens:   1600,
		Temperature: 0.1,
		Validator:   validateScheduleOutput,
	})
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "LLM analysis complete"},
		"LLM analysis", result.PromptTokens, result.CompletionTokens); err != nil {
		return nil, err
	}

	assignments, _ := result.Data["assignments"].(map[string]any)
	for crewID, rawJobs := range assignments {
		jobIDs, listOK := rawJobs.([]any)
		if !listOK {
			continue
		}
		route := make([]string, 0, len(jobIDs))
		for _, j := range jobIDs {
			route = append(route, fmt.Sprint(j))
		}
		if err := em.ToolResult(ctx, "assign_crew",
			map[string]any{"crew": crewID, "jobs": jobIDs, "job_count": len(jobIDs)},
			fmt.Sprintf("Assigned %d jobs to %s: %s",
				len(jobIDs), strings.ReplaceAll(crewID, "_", " "), strings.Join(route, " -> "))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)
	}

	improvement := asFloat(result.Data["improvement_percent"])
	optimized := asFloat(result.Data["optimized_drive_minutes"])
	unoptimized := asFloat(result.Data["unoptimized_drive_minutes"])

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Optimization complete. Reduced total drive time from %.0f to %.0f minutes "+
			"(%.0f%% improvement). %s", unoptimized, optimized, improvement, stringField(result.Data, "rationale"))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.ToolResult(ctx, "optimize_routes",
		map[string]any{"improvement_percent": improvement, "optimized_minutes": optimized, "unoptimized_minutes": unoptimized},
		fmt.Sprintf("Route optimization complete: %.0f%% improvement (%.0f -> %.0f min).",
			improvement, unoptimized, optimized)); err != nil {
		return nil, err
	}

	return result.Data, nil
}
