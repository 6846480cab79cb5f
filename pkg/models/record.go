package models

// Record is a normalized record produced by a connector. The curated writer
// dispatches on the concrete type; RecordKind is used for logging and counts.
type Record interface {
	RecordKind() string
}

func (Resource) RecordKind() string       { return "resource" }
func (CostDaily) RecordKind() string      { return "cost" }
func (Recommendation) RecordKind() string { return "recommendation" }
func (MetricSummary) RecordKind() string  { return "metric_summary" }
