package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

// estimatorModel pins the pricing and proposal calls to the premium model so
// arithmetic-heavy output stays reliable.
const estimatorModel = "anthropic/claude-opus-4"

// Per-category thinking lines shown while the model prices a section.
var categoryThinking = map[string][]string{
	"Earthwork": {
		"Calculating bulk excavation volumes for mass grading...",
		"Cross-referencing dozer and loader production rates against soil conditions...",
		"Applying crew composition factors for cut-and-fill operations...",
		"Checking fill import quantities against material haul distances...",
		"Estimating topsoil strip depth and stockpile handling costs...",
		"Verifying compaction testing allowances in the equipment rates...",
		"Comparing cut-fill balance to determine net import or export...",
		"Factoring in equipment mobilization and site access constraints...",
		"Reviewing fine grading tolerances and finish grade requirements...",
		"Validating earthwork unit prices against recent bid tabulations...",
	},
	"Utilities": {
		"Mapping utility trench depths and widths for each run...",
		"Looking up pipe material costs by diameter — 6-inch through 18-inch...",
		"Factoring in bedding material and backfill requirements per linear foot...",
		"Calculating manhole installation labor based on depth and connection count...",
		"Checking dewatering allowances for shallow groundwater conditions...",
		"Pricing fire hydrant assemblies including tees, valves, and thrust blocks...",
		"Estimating storm drain inlet costs with precast frames and grates...",
		"Reviewing sanitary sewer service lateral connection details...",
		"Applying trench safety and shoring costs for deeper utility runs...",
		"Verifying utility testing and inspection allowances per specification...",
	},
	"Paving": {
		"Computing asphalt tonnage from area and specified section thickness...",
		"Pricing aggregate base course by the cubic yard including placement...",
		"Applying paving crew mobilization costs for phased installation...",
		"Verifying tack coat and prime coat rates against current supplier pricing...",
		"Calculating compaction and density testing requirements for base course...",
		"Reviewing HMA mix design specifications and plant delivery distances...",
		"Checking for phased paving requirements to maintain traffic flow...",
		"Estimating saw-cut and joint layout costs for pavement sections...",
	},
	"Concrete": {
		"Estimating concrete yardage for curb, gutter, and sidewalk sections...",
		"Applying form and finish labor rates based on linear footage...",
		"Factoring in reinforcement and dowel requirements per the plans...",
		"Checking concrete pump and placement costs for accessible pours...",
		"Calculating driveway apron dimensions and transition details...",
		"Reviewing ADA-compliant ramp and detectable warning requirements...",
		"Pricing expansion joint material and saw-cut control joints...",
		"Estimating cure-and-seal application costs per square foot...",
	},
	"Erosion Control": {
		"Calculating silt fence and inlet protection quantities from the SWPPP...",
		"Pricing hydroseeding by the acre including mobilization...",
		"Factoring in maintenance and inspection costs over the project duration...",
		"Checking stabilized construction entrance specifications against site access...",
		"Reviewing NPDES permit compliance requirements and reporting costs...",
		"Estimating temporary sediment basin sizing and removal costs...",
		"Pricing erosion control blanket installation on disturbed slopes...",
		"Calculating seeding and mulching rates for final stabilization...",
	},
}

var categoryThinkingDefault = []string{
	"Analyzing quantity takeoff data for this scope category...",
	"Cross-referencing unit rates against the cost database...",
	"Computing labor, material, and equipment costs per line item...",
	"Verifying totals and checking for pricing anomalies...",
	"Reviewing quantity measurements against plan details...",
	"Applying waste and overrun factors to material quantities...",
	"Checking for scope items that may require specialized equipment...",
	"Reconciling calculated costs with database rate structure...",
}

var proposalThinking = []string{
	"Drafting scope of work narrative for the proposal document...",
	"Describing the major work categories and their interdependencies...",
	"Structuring the proposal around site preparation, underground, and surface improvements...",
	"Compiling standard assumptions for soil conditions, site access, and working hours...",
	"Documenting material availability and lead time assumptions...",
	"Identifying exclusions — building construction, electrical, permits, hazmat...",
	"Noting design change and unforeseen condition exclusions...",
	"Determining realistic project schedule based on scope complexity and sequencing...",
	"Factoring in weather-related schedule allowances for the region...",
	"Finalizing pricing validity period and contractual terms...",
	"Reviewing proposal language for completeness and professional tone...",
	"Assembling final proposal sections — scope, assumptions, exclusions, schedule...",
}

// priceCategory asks the model to price one takeoff category against the
// cost database rates.
func (rt *Runtime) priceCategory(ctx context.Context, category string, items []any, rates map[string]any, index, total int) (*llm.StructuredResult, error) {
	objective := fmt.Sprintf(
		"Price the '%s' section of a construction takeoff (category %d of %d). "+
			"For each item, use the rates from the cost database and calculate: "+
			"labor_cost = quantity × labor_rate, "+
			"material_cost = quantity × material_rate, "+
			"equipment_cost = quantity × equipment_rate, "+
			"subtotal = labor_cost + material_cost + equipment_cost. "+
			"Return JSON with keys: "+
			"category (string '%s'), "+
			"line_items (array of objects with: item, quantity, unit, labor_cost, material_cost, "+
			"equipment_cost, subtotal), "+
			"category_subtotal (sum of all subtotals), "+
			"category_notes (1-2 sentences about key cost considerations for this scope category).",
		category, index, total, category)

	return rt.acquirer.Request(ctx, llm.Request{
		AgentID:     "cost_estimator",
		Objective:   objective,
		Context:     map[string]any{"category": category, "items": items, "cost_rates": rates},
		MaxTokens:   1500,
		Temperature: 0.1,
		Validator:   validateCostCategory,
		Model:       estimatorModel,
	})
}

func (rt *Runtime) runCostEstimator(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "cost_estimator"

	payload, err := fixtures.Load("takeoff_data.json")
	if err != nil {
		return nil, err
	}
	project, _ := payload["project"].(map[string]any)
	takeoff, _ := payload["takeoff"].([]any)
	costDatabase, _ := payload["cost_database"].(map[string]any)
	markupSchedule, _ := payload["markup_schedule"].(map[string]any)

	projectName := defaultString(stringField(project, "name"), "project")

	// Group takeoff by category, first-seen order.
	categoriesMap := make(map[string][]any)
	var categoryNames []string
	for _, raw := range takeoff {
		item, itemOK := raw.(map[string]any)
		if !itemOK {
			continue
		}
		category := defaultString(stringField(item, "category"), "Other")
		if _, seen := categoriesMap[category]; !seen {
			categoryNames = append(categoryNames, category)
		}
		categoriesMap[category] = append(categoriesMap[category], item)
	}

	if err := em.StatusChange(ctx, "working", "Loading takeoff data"); err != nil {
		return nil, err
	}
	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Loading takeoff data",
	}); err != nil {
		return nil, err
	}

	categoryCounts := make([]string, 0, len(categoryNames))
	for _, name := range categoryNames {
		categoryCounts = append(categoryCounts, fmt.Sprintf("%s (%d)", name, len(categoriesMap[name])))
	}
	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Received takeoff for %s — %s, %s. Found %d line items across %d scope categories: %s. "+
			"Will price each category against the company cost database.",
		projectName, defaultString(stringField(project, "client"), "N/A"), stringField(project, "location"),
		len(takeoff), len(categoryNames), strings.Join(categoryCounts, ", "))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.ToolCall(ctx, "load_takeoff_data", map[string]any{
		"project":    projectName,
		"project_id": stringField(project, "project_id"),
		"client":     stringField(project, "client"),
		"line_items": len(takeoff),
		"categories": len(categoryNames),
	}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	var previewLines []string
	categorySizes := make(map[string]int, len(categoryNames))
	for _, name := range categoryNames {
		categorySizes[name] = len(categoriesMap[name])
		previewLines = append(previewLines, fmt.Sprintf("── %s ──", name))
		for _, raw := range categoriesMap[name] {
			item, itemOK := raw.(map[string]any)
			if !itemOK {
				continue
			}
			previewLines = append(previewLines, fmt.Sprintf("  %s: %.0f %s",
				stringField(item, "item"), asFloat(item["quantity"]), stringField(item, "unit")))
		}
	}
	if err := em.ToolResult(ctx, "load_takeoff_data",
		map[string]any{
			"project":         projectName,
			"total_items":     len(takeoff),
			"categories":      categorySizes,
			"takeoff_preview": strings.Join(previewLines, "\n"),
		},
		fmt.Sprintf("Loaded takeoff: %d items across %d categories — %s",
			len(takeoff), len(categoryNames), strings.Join(categoryCounts, ", "))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	var allLineItems []any
	categorySubtotals := make(map[string]float64, len(categoryNames))
	categoryNotes := make(map[string]string, len(categoryNames))

	for catIdx, categoryName := range categoryNames {
		items := categoriesMap[categoryName]

		if err := em.StatusChange(ctx, "working", fmt.Sprintf(
			"Pricing category %d of %d: %s", catIdx+1, len(categoryNames), categoryName)); err != nil {
			return nil, err
		}
		if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
			Status:          "working",
			CurrentActivity: fmt.Sprintf("Pricing %s (%d/%d)", categoryName, catIdx+1, len(categoryNames)),
		}); err != nil {
			return nil, err
		}

		if err := em.Reasoning(ctx, fmt.Sprintf(
			"Pricing %s — %d items. Looking up labor, material, and equipment rates from cost database.",
			categoryName, len(items))); err != nil {
			return nil, err
		}

		rates, _ := costDatabase[categoryName].(map[string]any)
		if err := em.ToolCall(ctx, "lookup_cost_database", map[string]any{
			"category":        categoryName,
			"items":           len(items),
			"rates_available": len(rates),
		}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		var rateLines []string
		for _, raw := range items {
			item, itemOK := raw.(map[string]any)
			if !itemOK {
				continue
			}
			itemName := stringField(item, "item")
			itemRates, _ := rates[itemName].(map[string]any)
			rateLines = append(rateLines, fmt.Sprintf("%s: L=$%v/unit, M=$%v/unit, E=$%v/unit",
				itemName, asFloat(itemRates["labor_rate"]), asFloat(itemRates["material_rate"]),
				asFloat(itemRates["equipment_rate"])))
		}
		if err := em.ToolResult(ctx, "lookup_cost_database",
			map[string]any{"category": categoryName, "rates_found": len(rates)},
			fmt.Sprintf("Found rates for %d items in %s:\n%s",
				len(rates), categoryName, strings.Join(rateLines, "\n"))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		thinkingLines, known := categoryThinking[categoryName]
		if !known {
			thinkingLines = categoryThinkingDefault
		}
		stopThinking := em.StartThinking(ctx, thinkingLines, 1600*time.Millisecond)
		priced, priceErr := rt.priceCategory(ctx, categoryName, items, rates, catIdx+1, len(categoryNames))
		stopThinking()
		if priceErr != nil {
			return nil, priceErr
		}

		if err := em.EmitLLM(ctx, EventToolResult,
			map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Priced " + categoryName},
			"LLM pricing for "+categoryName, priced.PromptTokens, priced.CompletionTokens); err != nil {
			return nil, err
		}

		subtotal := round2(asFloat(priced.Data["category_subtotal"]))
		lineItems, _ := priced.Data["line_items"].([]any)
		for _, raw := range lineItems {
			if li, liOK := raw.(map[string]any); liOK {
				li["category"] = categoryName
			}
		}
		allLineItems = append(allLineItems, lineItems...)
		categorySubtotals[categoryName] = subtotal
		categoryNotes[categoryName] = stringField(priced.Data, "category_notes")

		if err := em.ToolCall(ctx, "price_category", map[string]any{
			"category":          categoryName,
			"items_priced":      len(lineItems),
			"category_subtotal": subtotal,
		}); err != nil {
			return nil, err
		}
		if err := em.ToolResult(ctx, "price_category",
			map[string]any{
				"category":          categoryName,
				"items_priced":      len(lineItems),
				"category_subtotal": subtotal,
			},
			fmt.Sprintf("%s: %d items priced — subtotal $%.0f", categoryName, len(lineItems), subtotal)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)
	}

	var directCostTotal float64
	for _, subtotal := range categorySubtotals {
		directCostTotal += subtotal
	}
	directCostTotal = round2(directCostTotal)

	markupRate := func(key string, fallback float64) float64 {
		if value, exists := markupSchedule[key]; exists {
			return asFloat(value)
		}
		return fallback
	}
	overheadRate := markupRate("overhead", 0.12)
	profitRate := markupRate("profit", 0.10)
	contingencyRate := markupRate("contingency", 0.05)
	bondRate := markupRate("bond", 0.015)
	mobilizationRate := markupRate("mobilization", 0.03)

	markups := map[string]float64{
		"overhead":     round2(directCostTotal * overheadRate),
		"profit":       round2(directCostTotal * profitRate),
		"contingency":  round2(directCostTotal * contingencyRate),
		"bond":         round2(directCostTotal * bondRate),
		"mobilization": round2(directCostTotal * mobilizationRate),
	}
	var totalMarkups float64
	for _, m := range markups {
		totalMarkups += m
	}
	totalMarkups = round2(totalMarkups)
	grandTotal := round2(directCostTotal + totalMarkups)

	if err := em.StatusChange(ctx, "working", "Applying markups"); err != nil {
		return nil, err
	}
	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Applying markups",
	}); err != nil {
		return nil, err
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"All %d categories priced. Direct cost total: $%.0f. Applying standard markups — "+
			"Overhead %.0f%%: $%.0f, Profit %.0f%%: $%.0f, Contingency %.0f%%: $%.0f, "+
			"Bond %.1f%%: $%.0f, Mobilization %.0f%%: $%.0f.",
		len(categoryNames), directCostTotal,
		overheadRate*100, markups["overhead"],
		profitRate*100, markups["profit"],
		contingencyRate*100, markups["contingency"],
		bondRate*100, markups["bond"],
		mobilizationRate*100, markups["mobilization"])); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.ToolCall(ctx, "apply_markups", map[string]any{
		"direct_cost":  directCostTotal,
		"overhead":     fmt.Sprintf("%.0f%%", overheadRate*100),
		"profit":       fmt.Sprintf("%.0f%%", profitRate*100),
		"contingency":  fmt.Sprintf("%.0f%%", contingencyRate*100),
		"bond":         fmt.Sprintf("%.1f%%", bondRate*100),
		"mobilization": fmt.Sprintf("%.0f%%", mobilizationRate*100),
	}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 150*time.Millisecond)

	if err := em.ToolResult(ctx, "apply_markups",
		map[string]any{
			"direct_cost":   directCostTotal,
			"markups":       markups,
			"total_markups": totalMarkups,
			"grand_total":   grandTotal,
		},
		fmt.Sprintf("Markups applied: $%.0f on $%.0f direct cost. Grand total: $%.0f",
			totalMarkups, directCostTotal, grandTotal)); err != nil {
		return nil, err
	}
	rt.pause(ctx, 150*time.Millisecond)

	if err := em.StatusChange(ctx, "working", "Generating proposal narrative"); err != nil {
		return nil, err
	}
	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Generating proposal narrative",
	}); err != nil {
		return nil, err
	}

	if err := em.ToolCall(ctx, "generate_proposal", map[string]any{
		"project":     projectName,
		"grand_total": grandTotal,
		"categories":  len(categoryNames),
	}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	stopThinking := em.StartThinking(ctx, proposalThinking, 1800*time.Millisecond)
	proposalResult, proposalErr := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Write the narrative sections for a professional construction cost proposal. " +
			fmt.Sprintf("Project: %s — %s. ", projectName, stringField(project, "description")) +
			fmt.Sprintf("Location: %s. Client: %s. ", stringField(project, "location"), stringField(project, "client")) +
			fmt.Sprintf("Scope categories: %s. ", strings.Join(categoryNames, ", ")) +
			fmt.Sprintf("Direct cost: $%.0f. Grand total: $%.0f. ", directCostTotal, grandTotal) +
			"Return JSON with these keys:\n" +
			"- scope_narrative: 2-3 paragraph professional description of the work\n" +
			"- assumptions: array of 5-7 strings (soil conditions, access, working hours, " +
			"weather, material availability, utilities, subgrade)\n" +
			"- exclusions: array of 4-6 strings (building construction, electrical/mechanical, " +
			"permits, design changes, hazmat, landscaping beyond seeding)\n" +
			"- schedule_statement: 1 sentence estimated project duration\n" +
			"- validity_statement: 1 sentence pricing validity period",
		Context: map[string]any{
			"project":            project,
			"categories":         categoryNames,
			"category_subtotals": categorySubtotals,
			"category_notes":     categoryNotes,
			"direct_cost_total":  directCostTotal,
			"grand_total":        grandTotal,
		},
		MaxTokens:   1500,
		Temperature: 0.2,
		Validator:   validateProposalNarrative,
		Model:       estimatorModel,
	})
	stopThinking()
	if proposalErr != nil {
		return nil, proposalErr
	}
	proposal := proposalResult.Data

	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Proposal narrative generated"},
		"LLM proposal narrative", proposalResult.PromptTokens, proposalResult.CompletionTokens); err != nil {
		return nil, err
	}

	assumptions, _ := proposal["assumptions"].([]any)
	exclusions, _ := proposal["exclusions"].([]any)
	if err := em.ToolResult(ctx, "generate_proposal",
		map[string]any{"status": "complete", "assumptions": len(assumptions), "exclusions": len(exclusions)},
		fmt.Sprintf("Proposal narrative generated with %d assumptions and %d exclusions.",
			len(assumptions), len(exclusions))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	output := map[string]any{
		"project":            project,
		"line_items":         allLineItems,
		"category_subtotals": categorySubtotals,
		"category_notes":     categoryNotes,
		"direct_cost_total":  directCostTotal,
		"markups":            markups,
		"grand_total":        grandTotal,
		"assumptions":        assumptions,
		"exclusions":         exclusions,
		"proposal": map[string]any{
			"scope_narrative":    stringField(proposal, "scope_narrative"),
			"schedule_statement": stringField(proposal, "schedule_statement"),
			"validity_statement": stringField(proposal, "validity_statement"),
		},
	}

	if err := em.StatusChange(ctx, "complete",
		fmt.Sprintf("Proposal complete for %s: $%.0f", projectName, grandTotal)); err != nil {
		return nil, err
	}

	return output, nil
}
