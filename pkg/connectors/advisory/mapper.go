package advisory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	impactToConfidence = map[string]float64{"High": 0.9, "Medium": 0.7, "Low": 0.5}

	// Fallback monthly savings by impact when Advisor carries no figure.
	impactToSavings = map[string]float64{"High": 500.0, "Medium": 100.0, "Low": 20.0}
)

// mapRecommendation normalizes an Advisor recommendation item.
func mapRecommendation(item map[string]any, scope connectors.Scope) models.Recommendation {
	props := mapValue(item["properties"])
	extended := mapValue(props["extendedProperties"])
	shortDescription := mapValue(props["shortDescription"])

	impact := stringValue(props["impact"])
	if impact == "" {
		impact = "Low"
	}

	title := stringValue(shortDescription["solution"])
	if title == "" {
		title = "Azure Advisor Cost Recommendation"
	}
	description := stringValue(shortDescription["problem"])
	if description == "" {
		description = title
	}

	category := stringValue(props["category"])
	if category == "" {
		category = "Cost"
	}

	ruleID := "advisor." + stringValue(props["recommendationTypeId"])
	if ruleID == "advisor." {
		ruleID = "advisor.unknown"
	}

	resourceID := stringValue(mapValue(props["resourceMetadata"])["resourceId"])
	if resourceID == "" {
		resourceID = stringValue(item["id"])
	}

	confidence, ok := impactToConfidence[impact]
	if !ok {
		confidence = 0.5
	}

	return models.Recommendation{
		TenantID:                scope.TenantID,
		SubscriptionID:          scope.SubscriptionID,
		ResourceID:              resourceID,
		RuleID:                  ruleID,
		Category:                category,
		Impact:                  impact,
		Title:                   title,
		Description:             description,
		EstimatedMonthlySavings: extractSavings(props),
		ConfidenceScore:         confidence,
		Status:                  "open",
		ExtendedProperties:      database.NewJSONB(extended),
	}
}

// extractSavings pulls the estimated monthly savings out of Advisor
// extended properties. The figure lives in different fields depending on
// the recommendation type; annual amounts convert to monthly. When no
// figure is present the impact level sets a rough estimate.
func extractSavings(props map[string]any) float64 {
	extended := mapValue(props["extendedProperties"])

	for _, key := range []string{"savingsAmount", "annualSavingsAmount", "monthlySavingsAmount"} {
		value, present := extended[key]
		if !present || value == nil {
			continue
		}
		amount, err := parseFloat(value)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(key), "annual") {
			amount /= 12
		}
		return math.Round(amount*100) / 100
	}

	impact := stringValue(props["impact"])
	if savings, ok := impactToSavings[impact]; ok {
		return savings
	}
	return impactToSavings["Low"]
}

func parseFloat(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case int:
		return float64(value), nil
	case string:
		return strconv.ParseFloat(value, 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func mapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
