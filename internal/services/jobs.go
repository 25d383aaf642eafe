package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// CompletionReporter delivers job outcomes to the server.
type CompletionReporter interface {
	SendCompletion(c model.Completion)
}

// TicketRenderer lays out a job with a named template.
type TicketRenderer interface {
	Render(name string, job *model.PrintJob) model.RenderedTicket
}

// MaxItemQuantity is the largest quantity accepted for one line item.
const MaxItemQuantity = 9999

type OrchestratorConfig struct {
	DefaultTemplate string
	QueueCapacity   int
	// PrintTimeout bounds render plus commit of a single job.
	PrintTimeout time.Duration
}

// Orchestrator turns print requests into committed tickets, one at a time
// and in arrival order, and reports exactly one completion per job.
type Orchestrator struct {
	cfg      OrchestratorConfig
	backend  PrinterBackend
	renderer TicketRenderer
	reporter CompletionReporter
	counters *model.AgentCounters
	logger   zerolog.Logger
	now      func() time.Time

	queue     chan *model.PrintJob
	pending   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	backend PrinterBackend,
	renderer TicketRenderer,
	reporter CompletionReporter,
	counters *model.AgentCounters,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.PrintTimeout <= 0 {
		cfg.PrintTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		backend:  backend,
		renderer: renderer,
		reporter: reporter,
		counters: counters,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
		queue:    make(chan *model.PrintJob, cfg.QueueCapacity),
		done:     make(chan struct{}),
	}
}

// QueueDepth is the number of jobs queued or in flight.
func (o *Orchestrator) QueueDepth() int {
	return int(o.pending.Load())
}

func (o *Orchestrator) Backend() PrinterBackend {
	return o.backend
}

// Submit validates and enqueues a request and returns the local job id. It
// never blocks. A rejected request still receives a failed completion.
func (o *Orchestrator) Submit(req model.PrintRequest) (string, error) {
	job, err := o.newJob(req)
	if err != nil {
		o.reject(job, err)
		return job.ID, err
	}

	select {
	case <-o.done:
		o.reject(job, model.ErrQueueClosed)
		return job.ID, model.ErrQueueClosed
	default:
	}

	depth := o.pending.Add(1)
	select {
	case o.queue <- job:
		o.logger.Info().
			Str("job_id", job.ID).
			Str("reference", job.SourceReference).
			Str("table", job.TableNumber).
			Int("items", len(job.Items)).
			Int64("queue_depth", depth).
			Msg("print job queued")
		return job.ID, nil
	default:
		o.pending.Add(-1)
		o.reject(job, model.ErrQueueFull)
		return job.ID, model.ErrQueueFull
	}
}

// Reject reports a request that never made it into the queue, such as one
// whose payload could not be decoded, as a failed job.
func (o *Orchestrator) Reject(req model.PrintRequest, reason error) string {
	job, _ := o.newJob(req)
	o.reject(job, reason)
	return job.ID
}

// Run processes jobs until ctx is cancelled. A job already in progress runs
// to completion; jobs still queued are abandoned.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.closeOnce.Do(func() { close(o.done) })

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case job := <-o.queue:
			o.process(ctx, job)
			o.pending.Add(-1)
		}
	}

	if abandoned := len(o.queue); abandoned > 0 {
		o.logger.Warn().Int("abandoned", abandoned).Msg("stopping with queued print jobs")
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, job *model.PrintJob) {
	start := o.now()

	// once rendering starts the job is not cancellable, only bounded
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PrintTimeout)
	defer cancel()

	if err := o.execute(ctx, job); err != nil {
		job.Status = model.JobFailed
		job.Error = err.Error()
		o.counters.RecordFailure()
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("reference", job.SourceReference).Msg("print job failed")
	} else {
		job.Status = model.JobCompleted
		o.counters.RecordSuccess()
		o.logger.Info().
			Str("job_id", job.ID).
			Str("reference", job.SourceReference).
			Dur("duration", o.now().Sub(start)).
			Msg("print job completed")
	}

	o.complete(job)
}

func (o *Orchestrator) execute(ctx context.Context, job *model.PrintJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while printing: %v", r)
		}
	}()

	o.transition(job, model.JobRendering)
	name := job.Template
	if name == "" {
		name = o.cfg.DefaultTemplate
	}
	ticket := o.renderer.Render(name, job)

	o.transition(job, model.JobCommitting)
	return o.backend.Commit(ctx, ticket)
}

func (o *Orchestrator) transition(job *model.PrintJob, to model.JobStatus) {
	o.logger.Debug().Str("job_id", job.ID).Str("from", string(job.Status)).Str("to", string(to)).Msg("job transition")
	job.Status = to
}

func (o *Orchestrator) reject(job *model.PrintJob, err error) {
	job.Status = model.JobFailed
	job.Error = err.Error()
	o.counters.RecordFailure()
	o.logger.Warn().Err(err).Str("job_id", job.ID).Str("reference", job.SourceReference).Msg("print job rejected")
	o.complete(job)
}

func (o *Orchestrator) complete(job *model.PrintJob) {
	o.reporter.SendCompletion(model.Completion{
		JobID:     job.ID,
		Reference: job.SourceReference,
		Success:   job.Status == model.JobCompleted,
		Error:     job.Error,
		Timestamp: o.now(),
	})
}

// newJob converts a request into a queued job. The job is always returned,
// even on a validation error, so that the rejection can be reported.
func (o *Orchestrator) newJob(req model.PrintRequest) (*model.PrintJob, error) {
	job := &model.PrintJob{
		ID:                uuid.NewString(),
		SourceReference:   req.SourceReference(),
		TableNumber:       req.TableLabel(),
		WaiterName:        req.WaiterLabel(),
		Customer:          string(req.Customer),
		Phone:             string(req.Phone),
		Address:           string(req.Address),
		Total:             req.Total.Float(),
		Subtotal:          req.Subtotal.Float(),
		Tax:               req.Tax.Float(),
		Discount:          req.Discount.Float(),
		DeliveryFee:       req.DeliveryFee.Float(),
		EstimatedDelivery: string(req.EstimatedDelivery),
		Template:          req.Template,
		ReceivedAt:        o.now(),
		Status:            model.JobQueued,
	}

	items := req.LineItems()
	if job.SourceReference == "" && len(items) == 0 {
		return job, &model.ValidationError{Field: "payload", Reason: "has neither an order reference nor items"}
	}

	for i, it := range items {
		qty := 1
		if q := it.Qty(); q != nil {
			v := float64(*q)
			if v <= 0 || v > MaxItemQuantity || v != math.Trunc(v) {
				return job, &model.ValidationError{
					Field:  fmt.Sprintf("items[%d].quantity", i),
					Reason: fmt.Sprintf("must be a whole number between 1 and %d, got %v", MaxItemQuantity, v),
				}
			}
			qty = int(v)
		}
		job.Items = append(job.Items, model.LineItem{
			Name:      it.DisplayName(),
			Quantity:  qty,
			UnitPrice: it.Unit().Float(),
			Notes:     it.NoteText(),
		})
	}
	return job, nil
}
