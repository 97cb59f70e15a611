// Package results persists worker-reported submission outcomes, the Go
// equivalent of the "result backend" spec.md §6 names as a required
// startup env var. Grounded on the teacher's
// internal/task-manager/services/result_service.go, which consumes a
// Kafka results topic and writes completion status back onto the task
// row; generalized here to its own submissions table keyed by
// submission_id rather than overwriting the task row, since one task can
// produce many submissions over its lifetime.
package results

import "time"

// Record is one submission's terminal (or in-flight) outcome.
type Record struct {
	SubmissionID string    `gorm:"column:submission_id;primaryKey;type:varchar(64)"`
	PluginName   string    `gorm:"column:plugin_name;type:varchar(128);index"`
	Status       string    `gorm:"column:status;type:varchar(32)"`
	Result       string    `gorm:"column:result;type:text"`
	Error        string    `gorm:"column:error;type:text"`
	SubmittedAt  time.Time `gorm:"column:submitted_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

func (Record) TableName() string { return "submission_results" }

// Payload is the wire format a worker publishes to the result topic after
// executing a plugin, grounded on the teacher's events.TaskCompletionPayload.
type Payload struct {
	SubmissionID string `json:"submission_id"`
	PluginName   string `json:"plugin_name"`
	Status       string `json:"status"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}
