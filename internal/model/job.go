package model

import "time"

// JobStatus is the lifecycle state of a PrintJob.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobRendering  JobStatus = "rendering"
	JobCommitting JobStatus = "committing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// LineItem is one product on a ticket.
type LineItem struct {
	Name      string
	Quantity  int
	UnitPrice *float64
	Notes     string
}

// PrintJob is one requested ticket. It is owned by the job orchestrator from
// the moment it is created until its completion has been reported.
type PrintJob struct {
	ID              string
	SourceReference string
	TableNumber     string
	WaiterName      string
	Items           []LineItem

	Customer          string
	Phone             string
	Address           string
	Total             *float64
	Subtotal          *float64
	Tax               *float64
	Discount          *float64
	DeliveryFee       *float64
	EstimatedDelivery string

	// Template is the template requested by the server; empty means the
	// agent's configured default.
	Template   string
	ReceivedAt time.Time
	Status     JobStatus
	Error      string
}

// Completion is the outcome of one job as reported to the server.
type Completion struct {
	JobID     string
	Reference string
	Success   bool
	Error     string
	Timestamp time.Time
}
