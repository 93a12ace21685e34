package dispatch

// Outcome is what a single invocation ended with.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeCompleted      Outcome = "completed"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeSendFailed     Outcome = "send_failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
	OutcomeMisconfigured  Outcome = "misconfigured"
)

const (
	// AdvanceSelected moves the cursor by the number of rows in the batch.
	AdvanceSelected = "selected"
	// AdvanceScanned moves the cursor right after the last scanned row.
	AdvanceScanned = "scanned"

	// QuotaStop unschedules the job and clears the cursor.
	QuotaStop = "stop"
	// QuotaPause keeps trigger and cursor so the next period resumes.
	QuotaPause = "pause"
)
