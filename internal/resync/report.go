package resync

import "time"

// maxReportedFailures bounds the failure detail kept per run; counts are
// always exact.
const maxReportedFailures = 50

// Failure is one profile that could not be synced during a run.
type Failure struct {
	ProfileID string `json:"profile_id"`
	Reason    string `json:"reason"`
}

// Report summarizes one bulk resync run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
}

func (r *Report) addSuccess() {
	r.Processed++
	r.Succeeded++
}

func (r *Report) addSkip() {
	r.Processed++
	r.Skipped++
}

func (r *Report) addFailure(profileID, reason string) {
	r.Processed++
	r.Failed++
	if len(r.Failures) < maxReportedFailures {
		r.Failures = append(r.Failures, Failure{ProfileID: profileID, Reason: reason})
	}
}
