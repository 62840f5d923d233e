package persistence

import (
	"context"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appfee.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// InvoiceRepo returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) InvoiceRepo() fee.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// ReceiptRepo returns the receipt repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ReceiptRepo() fee.ReceiptRepository {
	return NewGormReceiptRepository(r.tx)
}

// NumberGenerator returns the document number generator scoped to the current transaction.
func (r *gormTransactionalRepositories) NumberGenerator() fee.DocumentNumberGenerator {
	return NewGormDocumentNumberGenerator(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appfee.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appfee.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
