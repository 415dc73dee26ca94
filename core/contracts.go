package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SessionStore is the durable per-tenant session record. Implementations
// must tolerate concurrent per-tenant upserts from independent install
// and load callbacks; last write wins.
type SessionStore interface {
	Upsert(ctx context.Context, in UpsertSessionInput) (TenantSession, error)
	Get(ctx context.Context, tenantID TenantID) (TenantSession, error)
	Delete(ctx context.Context, tenantID TenantID) error
}

// UserStore holds the platform users seen on load callbacks, keyed by
// (tenant id, platform user id).
type UserStore interface {
	Upsert(ctx context.Context, in UpsertUserInput) (TenantUser, error)
	Get(ctx context.Context, tenantID TenantID, platformUserID int64) (TenantUser, error)
	List(ctx context.Context, tenantID TenantID) ([]TenantUser, error)
	Delete(ctx context.Context, tenantID TenantID, platformUserID int64) error
	DeleteByTenant(ctx context.Context, tenantID TenantID) error
}

type StoreProvider interface {
	SessionStore() SessionStore
	UserStore() UserStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SignedPayloadVerifier authenticates load/uninstall/remove-user
// callback tokens. Stateless; safe for unbounded concurrency.
type SignedPayloadVerifier interface {
	Verify(token string) (SignedPayload, error)
}

// WebhookVerifier authenticates asynchronous webhook deliveries.
// Stateless; safe for unbounded concurrency.
type WebhookVerifier interface {
	Verify(envelope WebhookEnvelope) error
}

// TokenExchanger swaps an authorization code for a tenant access token.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, tenantContext, scope string) (ExchangeResult, error)
}

type ExchangeResult struct {
	AccessToken string
	Scope       []string
	UserID      int64
	UserEmail   string
	Context     string
	AccountUUID string
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
