package fee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the fee engine policies shared by the services
type Config struct {
	DueDateOffsetDays  int
	GenerationLockTTL  time.Duration
	InvoiceLockTTL     time.Duration
	InvoiceLockWait    time.Duration
	IdempotencyTTL     time.Duration
	InvoicePrefix      string
	ReceiptPrefix      string
	AllocationStrategy string
}

// DefaultConfig returns the standard policies. Allocation defaults to
// "even": an equal split over unpaid heads, capped at each head's balance,
// lets a 4000 payment on 5000/2000/1000 fill the 1000 head then put 1500
// on each of the others. "balance" is opt-in through configuration.
func DefaultConfig() Config {
	return Config{
		DueDateOffsetDays:  fee.DefaultDueDateOffsetDays,
		GenerationLockTTL:  5 * time.Minute,
		InvoiceLockTTL:     30 * time.Second,
		InvoiceLockWait:    5 * time.Second,
		IdempotencyTTL:     24 * time.Hour,
		InvoicePrefix:      "INV",
		ReceiptPrefix:      "RCP",
		AllocationStrategy: "even",
	}
}

const releaseTimeout = 5 * time.Second

// base carries the collaborators every fee service shares
type base struct {
	logger    *zap.Logger
	clock     Clock
	publisher shared.EventPublisher
	audit     AuditRecorder
	config    Config
}

func newBase() base {
	return base{
		logger: zap.NewNop(),
		clock:  SystemClock{},
		config: DefaultConfig(),
	}
}

// Option configures a fee service
type Option func(*base)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(clock Clock) Option {
	return func(b *base) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithEventPublisher publishes domain events after each commit
func WithEventPublisher(publisher shared.EventPublisher) Option {
	return func(b *base) {
		b.publisher = publisher
	}
}

// WithAuditRecorder records an audit entry after each commit
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(b *base) {
		b.audit = recorder
	}
}

// WithConfig replaces the engine policies
func WithConfig(cfg Config) Option {
	return func(b *base) {
		b.config = cfg
	}
}

func (b *base) apply(opts []Option) {
	for _, opt := range opts {
		opt(b)
	}
}

// recordAudit is called after commit; failures are logged, never returned
func (b *base) recordAudit(ctx context.Context, opCtx OperationContext, action, resourceType, resourceID string, metadata map[string]any) {
	if b.audit == nil {
		return
	}
	entry := AuditEntry{
		SchoolID:     opCtx.SchoolID,
		ActorID:      opCtx.ActorID,
		RequestID:    opCtx.RequestID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		OccurredAt:   b.clock.Now(),
	}
	if err := b.audit.Record(ctx, entry); err != nil {
		b.logger.Error("Failed to record audit entry",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.String("request_id", opCtx.RequestID),
			zap.Error(err))
	}
}

// publish is called after commit; failures are logged, never returned
func (b *base) publish(ctx context.Context, events ...shared.DomainEvent) {
	if b.publisher == nil || len(events) == 0 {
		return
	}
	if err := b.publisher.Publish(ctx, events...); err != nil {
		b.logger.Warn("Failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}

func (b *base) loadYear(ctx context.Context, years fee.AcademicYearRepository, schoolID, yearID uuid.UUID) (*fee.AcademicYear, error) {
	if yearID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "academic year is required")
	}
	year, err := years.FindByIDForSchool(ctx, schoolID, yearID)
	if err != nil {
		return nil, fmt.Errorf("failed to load academic year: %w", err)
	}
	if year == nil {
		return nil, fee.NewNotFoundError("academic year", yearID.String())
	}
	return year, nil
}

// obtainLock maps contention to a retryable CONCURRENT_MODIFICATION error
func obtainLock(ctx context.Context, locker shared.Locker, key, resource string, opts shared.LockOptions) (shared.Lock, error) {
	lock, err := locker.Obtain(ctx, key, opts)
	if err != nil {
		if errors.Is(err, shared.ErrLockNotObtained) {
			return nil, fee.NewConcurrentModificationError(resource, err)
		}
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return lock, nil
}

func (b *base) releaseLock(lock shared.Lock, key string) {
	// The caller's context may already be cancelled; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		b.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
	}
}

func generationLockKey(schoolID, yearID uuid.UUID) string {
	return fmt.Sprintf("fee-generation:%s:%s", schoolID, yearID)
}

func invoiceLockKey(invoiceID uuid.UUID) string {
	return fmt.Sprintf("fee-invoice:%s", invoiceID)
}

func idempotencyKey(schoolID uuid.UUID, key string) string {
	return fmt.Sprintf("fee-payment:%s:%s", schoolID, key)
}
