package models

import "time"

const (
	JobOverageBilling       = "overage-billing"
	JobAutoPickups          = "auto-pickups"
	JobNotificationDispatch = "notification-dispatch"
)

// Outcome of one subscriber (or notification) inside a batch run.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type JobReportEntry struct {
	Subject string `json:"subject"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// JobReport summarizes one run of a batch job.
type JobReport struct {
	Job        string           `json:"job"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Processed  int              `json:"processed"`
	Created    int              `json:"created"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Entries    []JobReportEntry `json:"entries"`
}

func NewJobReport(job string, startedAt time.Time) *JobReport {
	return &JobReport{Job: job, StartedAt: startedAt, Entries: []JobReportEntry{}}
}

func (r *JobReport) record(subject, outcome, detail string) {
	r.Processed++
	r.Entries = append(r.Entries, JobReportEntry{Subject: subject, Outcome: outcome, Detail: detail})
}

func (r *JobReport) AddCreated(subject, detail string) {
	r.Created++
	r.record(subject, OutcomeCreated, detail)
}

func (r *JobReport) AddSkipped(subject, detail string) {
	r.Skipped++
	r.record(subject, OutcomeSkipped, detail)
}

func (r *JobReport) AddFailed(subject string, err error) {
	r.Failed++
	r.record(subject, OutcomeFailed, err.Error())
}

// Finish stamps the end time and returns the report for chaining.
func (r *JobReport) Finish(at time.Time) *JobReport {
	r.FinishedAt = at
	return r
}
