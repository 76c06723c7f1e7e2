package event

import "github.com/Aghostraa/OLI-Converters/internal/domain/model"

// Outcome is the terminal result of one row. Exactly one of Record or
// Failure is set; the accumulator is the only consumer.
type Outcome struct {
	Record  *model.TagRecord
	Failure *model.Failure
}

// RecordOutcome wraps a successful row.
func RecordOutcome(rec model.TagRecord) Outcome {
	return Outcome{Record: &rec}
}

// FailureOutcome wraps a failed row.
func FailureOutcome(row model.InputRow, reason string) Outcome {
	return Outcome{Failure: &model.Failure{
		Address:   row.Address,
		OriginKey: row.OriginKey,
		Reason:    reason,
	}}
}
