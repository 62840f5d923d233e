package fee

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory store
// =============================================================================

// memStore implements every fee repository over maps. Transactions run one
// at a time and restore a snapshot when they fail.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	years      map[uuid.UUID]fee.AcademicYear
	classes    []fee.Class
	students   []fee.Student
	heads      []fee.FeeHead
	structures []fee.FeeStructure
	discounts  []fee.Discount

	invoices map[uuid.UUID]fee.Invoice
	order    []uuid.UUID
	receipts []fee.Receipt
	seq      map[string]int

	failCreateBatch error
	failReceipt     error
}

func newMemStore() *memStore {
	return &memStore{
		years:    make(map[uuid.UUID]fee.AcademicYear),
		invoices: make(map[uuid.UUID]fee.Invoice),
		seq:      make(map[string]int),
	}
}

func copyInvoice(inv *fee.Invoice) fee.Invoice {
	c := *inv
	c.Breakups = append([]fee.FeeBreakup(nil), inv.Breakups...)
	if inv.SettledDate != nil {
		d := *inv.SettledDate
		c.SettledDate = &d
	}
	c.DrainEvents()
	return c
}

type memSnapshot struct {
	invoices map[uuid.UUID]fee.Invoice
	order    []uuid.UUID
	receipts []fee.Receipt
	seq      map[string]int
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		invoices: make(map[uuid.UUID]fee.Invoice, len(s.invoices)),
		order:    append([]uuid.UUID(nil), s.order...),
		receipts: append([]fee.Receipt(nil), s.receipts...),
		seq:      make(map[string]int, len(s.seq)),
	}
	for id, inv := range s.invoices {
		snap.invoices[id] = copyInvoice(&inv)
	}
	for k, v := range s.seq {
		snap.seq[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = snap.invoices
	s.order = snap.order
	s.receipts = snap.receipts
	s.seq = snap.seq
}

// memScope is a TransactionScope over memStore
type memScope struct {
	store *memStore
}

func (m memScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()
	snap := m.store.snapshot()
	if err := fn(NewNoOpTransactionScope(m.store, m.store, m.store)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) FindByIDForSchool(_ context.Context, schoolID, id uuid.UUID) (*fee.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.SchoolID != schoolID {
		return nil, nil
	}
	c := copyInvoice(&inv)
	return &c, nil
}

func (s *memStore) FindByIDForUpdate(ctx context.Context, schoolID, id uuid.UUID) (*fee.Invoice, error) {
	return s.FindByIDForSchool(ctx, schoolID, id)
}

func (s *memStore) filterInvoices(keep func(inv *fee.Invoice) bool) []fee.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []fee.Invoice{}
	for _, id := range s.order {
		inv := s.invoices[id]
		if keep(&inv) {
			out = append(out, copyInvoice(&inv))
		}
	}
	return out
}

func (s *memStore) FindByYear(_ context.Context, schoolID, yearID uuid.UUID) ([]fee.Invoice, error) {
	return s.filterInvoices(func(inv *fee.Invoice) bool {
		return inv.SchoolID == schoolID && inv.AcademicYearID == yearID
	}), nil
}

func (s *memStore) FindAll(_ context.Context, schoolID uuid.UUID, filter fee.InvoiceFilter) ([]fee.Invoice, int64, error) {
	all := s.filterInvoices(func(inv *fee.Invoice) bool {
		switch {
		case inv.SchoolID != schoolID:
			return false
		case filter.AcademicYearID != nil && inv.AcademicYearID != *filter.AcademicYearID:
			return false
		case filter.StudentID != nil && inv.StudentID != *filter.StudentID:
			return false
		case filter.ClassID != nil && inv.ClassID != *filter.ClassID:
			return false
		case filter.Status != nil && filter.StatusAsOf.IsZero() && inv.Status != *filter.Status:
			return false
		case filter.Status != nil && !filter.StatusAsOf.IsZero() && inv.EvaluateStatus(filter.StatusAsOf) != *filter.Status:
			return false
		case filter.InvoiceNumber != "" && inv.InvoiceNumber != filter.InvoiceNumber:
			return false
		case filter.Settled != nil && inv.IsSettled != *filter.Settled:
			return false
		case filter.DueBefore != nil && !inv.DueDate.Before(*filter.DueBefore):
			return false
		}
		return true
	})
	total := int64(len(all))
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *memStore) FindInvoicedStudentIDs(_ context.Context, schoolID, yearID uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	for _, inv := range s.filterInvoices(func(inv *fee.Invoice) bool {
		return inv.SchoolID == schoolID && inv.AcademicYearID == yearID
	}) {
		out[inv.StudentID] = true
	}
	return out, nil
}

func (s *memStore) FindStudentIDsWithOpenInvoicesOutsideYear(_ context.Context, schoolID, yearID uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	for _, inv := range s.filterInvoices(func(inv *fee.Invoice) bool {
		return inv.SchoolID == schoolID && inv.AcademicYearID != yearID && inv.Status != fee.InvoiceStatusPaid
	}) {
		out[inv.StudentID] = true
	}
	return out, nil
}

func (s *memStore) FindPastDueOpen(_ context.Context, schoolID uuid.UUID, yearID *uuid.UUID, asOf time.Time) ([]fee.Invoice, error) {
	return s.filterInvoices(func(inv *fee.Invoice) bool {
		return inv.SchoolID == schoolID &&
			(yearID == nil || inv.AcademicYearID == *yearID) &&
			inv.Status != fee.InvoiceStatusPaid &&
			inv.DueDate.Before(asOf)
	}), nil
}

func (s *memStore) FindSettleable(_ context.Context, schoolID, yearID uuid.UUID) ([]fee.Invoice, error) {
	return s.filterInvoices(func(inv *fee.Invoice) bool {
		return inv.SchoolID == schoolID && inv.AcademicYearID == yearID &&
			inv.Status == fee.InvoiceStatusPaid && !inv.IsSettled
	}), nil
}

func (s *memStore) CreateBatch(_ context.Context, invoices []*fee.Invoice) error {
	if s.failCreateBatch != nil {
		return s.failCreateBatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range invoices {
		for _, existing := range s.invoices {
			if existing.StudentID == inv.StudentID && existing.AcademicYearID == inv.AcademicYearID {
				return fee.NewConcurrentModificationError("invoice", errors.New("duplicate student invoice"))
			}
		}
		s.invoices[inv.ID] = copyInvoice(inv)
		s.order = append(s.order, inv.ID)
	}
	return nil
}

func (s *memStore) SaveWithLock(_ context.Context, inv *fee.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invoices[inv.ID]
	if !ok {
		return fee.NewNotFoundError("invoice", inv.ID.String())
	}
	if stored.Version != inv.Version {
		return fee.NewConcurrentModificationError("invoice "+inv.InvoiceNumber, nil)
	}
	inv.BumpVersion()
	s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, inv *fee.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invoices[inv.ID]
	if !ok {
		return fee.NewNotFoundError("invoice", inv.ID.String())
	}
	stored.Status = inv.Status
	stored.IsSettled = inv.IsSettled
	stored.SettledDate = inv.SettledDate
	s.invoices[inv.ID] = stored
	return nil
}

func (s *memStore) Create(_ context.Context, r *fee.Receipt) error {
	if s.failReceipt != nil {
		return s.failReceipt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, *r)
	return nil
}

func (s *memStore) FindByInvoice(_ context.Context, schoolID, invoiceID uuid.UUID) ([]fee.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []fee.Receipt{}
	for _, r := range s.receipts {
		if r.SchoolID == schoolID && r.InvoiceID == invoiceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) FindByNumber(_ context.Context, schoolID uuid.UUID, number string) (*fee.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.receipts {
		if r.SchoolID == schoolID && r.ReceiptNumber == number {
			c := r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByIdempotencyKey(_ context.Context, schoolID uuid.UUID, key string) (*fee.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.receipts {
		if r.SchoolID == schoolID && r.IdempotencyKey == key {
			c := r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) Next(_ context.Context, schoolID uuid.UUID, prefix, period string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := schoolID.String() + prefix + period
	s.seq[key]++
	return fmt.Sprintf("%s-%s-%06d", prefix, period, s.seq[key]), nil
}

// memCatalog serves read-side repositories from the same store
type memCatalog struct {
	store *memStore
}

func (c memCatalog) FindByIDForSchool(_ context.Context, schoolID, id uuid.UUID) (*fee.AcademicYear, error) {
	y, ok := c.store.years[id]
	if !ok || y.SchoolID != schoolID {
		return nil, nil
	}
	return &y, nil
}

func (c memCatalog) FindActiveBySchool(_ context.Context, schoolID uuid.UUID, classIDs []uuid.UUID) ([]fee.Student, error) {
	out := []fee.Student{}
	for _, st := range c.store.students {
		if st.SchoolID != schoolID || !st.IsActive {
			continue
		}
		if len(classIDs) > 0 {
			match := false
			for _, id := range classIDs {
				if st.ClassID != nil && *st.ClassID == id {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (c memCatalog) FindBySchool(_ context.Context, schoolID uuid.UUID) ([]fee.Class, error) {
	out := []fee.Class{}
	for _, cl := range c.store.classes {
		if cl.SchoolID == schoolID {
			out = append(out, cl)
		}
	}
	return out, nil
}

func (c memCatalog) FindHeads(_ context.Context, schoolID uuid.UUID) ([]fee.FeeHead, error) {
	out := []fee.FeeHead{}
	for _, h := range c.store.heads {
		if h.SchoolID == schoolID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (c memCatalog) FindStructures(_ context.Context, schoolID, yearID uuid.UUID, classID *uuid.UUID) ([]fee.FeeStructure, error) {
	out := []fee.FeeStructure{}
	for _, st := range c.store.structures {
		if st.SchoolID == schoolID && st.AcademicYearID == yearID && (classID == nil || st.ClassID == *classID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (c memCatalog) FindDiscounts(_ context.Context, schoolID, yearID uuid.UUID) ([]fee.Discount, error) {
	out := []fee.Discount{}
	for _, d := range c.store.discounts {
		if d.SchoolID == schoolID && d.AcademicYearID == yearID {
			out = append(out, d)
		}
	}
	return out, nil
}

// =============================================================================
// Locks and idempotency
// =============================================================================

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

type memLock struct {
	locker *memLocker
	key    string
}

func (l *memLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}

func (m *memLocker) Obtain(ctx context.Context, key string, opts shared.LockOptions) (shared.Lock, error) {
	deadline := time.Now().Add(opts.Wait)
	for {
		m.mu.Lock()
		if !m.held[key] {
			m.held[key] = true
			m.mu.Unlock()
			return &memLock{locker: m, key: key}, nil
		}
		m.mu.Unlock()
		if !time.Now().Before(deadline) {
			return nil, shared.ErrLockNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (m *memLocker) isHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}

type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: make(map[string]string)}
}

func (m *memIdempotency) Reserve(_ context.Context, key string, _ time.Duration) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.entries[key]; ok {
		return false, v, nil
	}
	m.entries[key] = ""
	return true, "", nil
}

func (m *memIdempotency) Complete(_ context.Context, key, result string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = result
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memIdempotency) Close() error { return nil }

// =============================================================================
// Mocks
// =============================================================================

// MockAuditRecorder is a mock implementation of AuditRecorder
type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) Record(ctx context.Context, entry AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	sort.Strings(out)
	return out
}
