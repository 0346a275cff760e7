package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
)

// Worker runs the asynq server plus the cron scheduler when periodic tasks
// are registered.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects worker dependencies.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker builds the worker. Per-item evaluations land on the alerts queue
// so a long reorder sweep cannot starve them.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 8,
		Queues: map[string]int{
			QueueAlerts:  3,
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits tasks to the queues.
type Client struct {
	client *asynq.Client
}

// NewClient builds an asynq client over the shared Redis instance.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueAlertEvaluate queues alert re-evaluation for one item. Tasks carry
// only the item id, so replays and duplicates are harmless.
func (c *Client) EnqueueAlertEvaluate(ctx context.Context, payload AlertEvaluatePayload) (*asynq.TaskInfo, error) {
	task, err := NewAlertEvaluateTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// AlertEnqueuer adapts the job client to the stock ledger's notification
// port: every committed movement queues an asynchronous alert evaluation.
type AlertEnqueuer struct {
	client *Client
	logger *slog.Logger
}

// NewAlertEnqueuer constructs AlertEnqueuer.
func NewAlertEnqueuer(client *Client, logger *slog.Logger) *AlertEnqueuer {
	return &AlertEnqueuer{client: client, logger: logger}
}

// StockChanged enqueues evaluation for the item.
func (e *AlertEnqueuer) StockChanged(ctx context.Context, itemID int64) error {
	if e == nil || e.client == nil {
		return nil
	}
	_, err := e.client.EnqueueAlertEvaluate(ctx, AlertEvaluatePayload{ItemID: itemID})
	return err
}

// Handler exposes queue depth for monitoring.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.inspector == nil {
		_, _ = w.Write([]byte(`{"queue":"` + QueueAlerts + `","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueAlerts)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	pending := 0
	name := QueueAlerts
	if info != nil {
		pending = int(info.Pending)
		name = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + name + `","pending":` + strconv.Itoa(pending) + `}`))
}
