package fee

import (
	"context"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
)

// TransactionScope runs a function with repositories bound to one database
// transaction. A returned error rolls every write back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are the write-side repositories sharing a transaction
type TransactionalRepositories interface {
	InvoiceRepo() fee.InvoiceRepository
	ReceiptRepo() fee.ReceiptRepository
	NumberGenerator() fee.DocumentNumberGenerator
}

// Audit actions
const (
	AuditActionGenerate       = "fee.generate"
	AuditActionPayment        = "fee.payment"
	AuditActionSettle         = "fee.settle"
	AuditActionRefreshOverdue = "fee.refresh_overdue"
	AuditActionArchive        = "fee.archive"
)

// AuditEntry describes one committed business operation
type AuditEntry struct {
	SchoolID     uuid.UUID
	ActorID      uuid.UUID
	RequestID    string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	OccurredAt   time.Time
}

// AuditRecorder stores audit entries. It is called after the business
// transaction has committed; its failures never undo the operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// SummaryExporter renders a settlement summary as a downloadable document
type SummaryExporter interface {
	Export(ctx context.Context, report SettlementReport) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// ArchiveStorage stores exported documents
type ArchiveStorage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// NoOpTransactionScope runs functions against plain repositories without a
// transaction. Useful for tests and stores with no transaction support.
type NoOpTransactionScope struct {
	invoiceRepo fee.InvoiceRepository
	receiptRepo fee.ReceiptRepository
	numbers     fee.DocumentNumberGenerator
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(
	invoiceRepo fee.InvoiceRepository,
	receiptRepo fee.ReceiptRepository,
	numbers fee.DocumentNumberGenerator,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo: invoiceRepo,
		receiptRepo: receiptRepo,
		numbers:     numbers,
	}
}

// Execute runs fn directly
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// InvoiceRepo returns the invoice repository
func (s *NoOpTransactionScope) InvoiceRepo() fee.InvoiceRepository {
	return s.invoiceRepo
}

// ReceiptRepo returns the receipt repository
func (s *NoOpTransactionScope) ReceiptRepo() fee.ReceiptRepository {
	return s.receiptRepo
}

// NumberGenerator returns the document number generator
func (s *NoOpTransactionScope) NumberGenerator() fee.DocumentNumberGenerator {
	return s.numbers
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
