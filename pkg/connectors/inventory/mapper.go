package inventory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

// mapResource converts a Resource Graph row into a Resource record.
// Resource Graph may return tags and properties either inline or as a JSON
// string, so both shapes are coerced.
func mapResource(row map[string]any, tenantID, subscriptionID string) models.Resource {
	resource := models.Resource{
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		ResourceID:     stringValue(row["id"]),
		Name:           stringValue(row["name"]),
		Type:           strings.ToLower(stringValue(row["type"])),
		ResourceGroup:  strings.ToLower(stringValue(row["resourceGroup"])),
		Location:       strings.ToLower(stringValue(row["location"])),
		Tags:           database.NewJSONB(coerceMap(row["tags"])),
		Properties:     database.NewJSONB(coerceMap(row["properties"])),
		LastSeen:       time.Now().UTC(),
	}

	if kind := stringValue(row["kind"]); kind != "" {
		resource.Kind = &kind
	}

	return resource
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func coerceMap(v any) map[string]any {
	switch value := v.(type) {
	case map[string]any:
		return value
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
	}
	return map[string]any{}
}
