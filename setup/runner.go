package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-storegate/adapters/gologger"
	"github.com/goliatone/go-storegate/core"
)

const defaultMaxAttempts = 3

// EnqueueTenantSetup queues the post-install provisioning tasks for a
// tenant. It returns as soon as the messages are queued; the install
// redirect never waits on platform API calls.
func EnqueueTenantSetup(ctx context.Context, enqueuer core.JobEnqueuer, tenantID core.TenantID) error {
	if enqueuer == nil {
		return fmt.Errorf("setup: enqueuer is required")
	}
	if tenantID == "" {
		return fmt.Errorf("setup: tenant id is required")
	}
	jobs := []string{core.JobIDRegisterWebhooks, core.JobIDSyncScripts}
	for _, jobID := range jobs {
		err := enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
			JobID:          jobID,
			Parameters:     map[string]any{"tenant_id": string(tenantID)},
			IdempotencyKey: jobID + "::" + string(tenantID),
			DedupPolicy:    "drop",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type RunnerConfig struct {
	Dequeuer core.JobDequeuer
	Sessions core.SessionStore
	Client   ProvisionClient

	// LoggerProvider wins over Logger when both are set; the runner
	// logs under the setup component channel either way.
	LoggerProvider core.LoggerProvider
	Logger         core.Logger

	MaxAttempts int
	RetryDelay  time.Duration
}

// Runner drains the setup queue and executes provisioning tasks.
// Failures are logged and retried up to MaxAttempts; they never
// propagate back to the install flow.
type Runner struct {
	dequeuer    core.JobDequeuer
	sessions    core.SessionStore
	client      ProvisionClient
	logger      core.Logger
	maxAttempts int
	retryDelay  time.Duration
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("setup: dequeuer is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("setup: session store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("setup: provision client is required")
	}
	logger := gologger.ForComponent(gologger.ComponentSetup, cfg.LoggerProvider, cfg.Logger)
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Runner{
		dequeuer:    cfg.Dequeuer,
		sessions:    cfg.Sessions,
		client:      cfg.Client,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// Run consumes deliveries until the context is canceled or the queue
// closes.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("setup: runner is not configured")
	}
	for {
		delivery, err := r.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		r.handle(ctx, delivery)
	}
}

func (r *Runner) handle(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Ack(ctx)
		return
	}
	if err := r.execute(ctx, msg); err != nil {
		attempt := messageAttempt(msg)
		r.logger.Error("setup task failed",
			"job_id", msg.JobID,
			"tenant_id", messageTenantID(msg),
			"attempt", fmt.Sprintf("%d", attempt),
			"error", err.Error(),
		)
		if attempt >= r.maxAttempts {
			_ = delivery.Nack(ctx, core.JobNackOptions{
				DeadLetter: true,
				Reason:     err.Error(),
			})
			return
		}
		msg.Parameters["attempt"] = attempt + 1
		_ = delivery.Nack(ctx, core.JobNackOptions{
			Delay:   r.retryDelay,
			Requeue: true,
			Reason:  err.Error(),
		})
		return
	}
	_ = delivery.Ack(ctx)
}

func (r *Runner) execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	tenantID, ok := core.NormalizeTenantID(messageTenantID(msg))
	if !ok {
		return fmt.Errorf("setup: message has no usable tenant id")
	}
	session, err := r.sessions.Get(ctx, tenantID)
	if err != nil {
		// Tenant uninstalled while the task was queued; nothing to do.
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	switch msg.JobID {
	case core.JobIDRegisterWebhooks:
		return r.client.RegisterWebhooks(ctx, session)
	case core.JobIDSyncScripts:
		return r.client.SyncScripts(ctx, session)
	default:
		return fmt.Errorf("setup: unknown job id %q", msg.JobID)
	}
}

func messageTenantID(msg *core.JobExecutionMessage) string {
	if msg == nil || msg.Parameters == nil {
		return ""
	}
	raw, _ := msg.Parameters["tenant_id"].(string)
	return strings.TrimSpace(raw)
}

func messageAttempt(msg *core.JobExecutionMessage) int {
	if msg == nil || msg.Parameters == nil {
		return 1
	}
	switch typed := msg.Parameters["attempt"].(type) {
	case int:
		if typed > 0 {
			return typed
		}
	case float64:
		if typed > 0 {
			return int(typed)
		}
	}
	return 1
}
