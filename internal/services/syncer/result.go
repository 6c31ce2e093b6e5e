package syncer

// RecordOutcome is the result of importing one record.
type RecordOutcome string

const (
	OutcomeImported RecordOutcome = "imported"
	OutcomeUpdated  RecordOutcome = "updated"
	OutcomeSkipped  RecordOutcome = "skipped"
	OutcomeFailed   RecordOutcome = "failed"
)

// RecordResult carries the per-record outcome through the batch loop, so
// the driver is a simple fold over results rather than nested recovery.
type RecordResult struct {
	ExternalID string
	Outcome    RecordOutcome
	Err        error
}

// RecordError is one failed record, kept as a bounded sample in stats.
type RecordError struct {
	ExternalID string
	Reason     string
}

// BatchSummary is the fold of a batch's record results.
type BatchSummary struct {
	Imported int
	Updated  int
	Skipped  int
	Failed   int
	Errors   []RecordError
}

// FoldResults aggregates record results into a batch summary.
func FoldResults(results []RecordResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		switch r.Outcome {
		case OutcomeImported:
			s.Imported++
		case OutcomeUpdated:
			s.Updated++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
			reason := "unknown error"
			if r.Err != nil {
				reason = r.Err.Error()
			}
			s.Errors = append(s.Errors, RecordError{ExternalID: r.ExternalID, Reason: reason})
		}
	}
	return s
}
