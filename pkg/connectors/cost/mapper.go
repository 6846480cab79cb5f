package cost

import (
	"strconv"
	"strings"
	"time"
)

// costRow is one parsed row of the Cost Management query response.
type costRow struct {
	usageDate     time.Time
	resourceGroup string
	serviceName   string
	meterCategory string
	cost          float64
	currency      string
}

// parseCostRows converts the column/row response format into cost rows.
func parseCostRows(resp queryResponse) []costRow {
	names := make([]string, len(resp.Properties.Columns))
	for i, col := range resp.Properties.Columns {
		names[i] = col.Name
	}

	rows := make([]costRow, 0, len(resp.Properties.Rows))
	for _, raw := range resp.Properties.Rows {
		keyed := make(map[string]any, len(names))
		for i, value := range raw {
			if i < len(names) {
				keyed[names[i]] = value
			}
		}

		usageDate := keyed["UsageDate"]
		if usageDate == nil {
			usageDate = keyed["BillingMonth"]
		}

		currency := stringValue(keyed["Currency"])
		if currency == "" {
			currency = "USD"
		}

		rows = append(rows, costRow{
			usageDate:     parseUsageDate(usageDate),
			resourceGroup: strings.ToLower(stringValue(keyed["ResourceGroupName"])),
			serviceName:   stringValue(keyed["ServiceName"]),
			meterCategory: stringValue(keyed["MeterCategory"]),
			cost:          floatValue(keyed["Cost"]),
			currency:      currency,
		})
	}
	return rows
}

// parseUsageDate handles the two date shapes the query API returns: an
// 8-digit YYYYMMDD integer or an ISO date string.
func parseUsageDate(raw any) time.Time {
	if raw == nil {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}

	var s string
	switch value := raw.(type) {
	case string:
		s = value
	case float64:
		s = strconv.FormatInt(int64(value), 10)
	case int:
		s = strconv.Itoa(value)
	default:
		s = ""
	}

	if len(s) == 8 {
		if parsed, err := time.Parse("20060102", s); err == nil {
			return parsed
		}
	}
	if len(s) >= 10 {
		if parsed, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return parsed
		}
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case string:
		f, _ := strconv.ParseFloat(value, 64)
		return f
	}
	return 0
}
