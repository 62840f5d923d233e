package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/auth"
	"github.com/feesettle/backend/internal/infrastructure/cache"
	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/feesettle/backend/internal/infrastructure/export"
	"github.com/feesettle/backend/internal/infrastructure/lock"
	"github.com/feesettle/backend/internal/infrastructure/persistence"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/feesettle/backend/internal/infrastructure/strategy"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/feesettle/backend/internal/interfaces/http/middleware"
	"github.com/feesettle/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSecret = "handler-test-secret-at-least-32-chars"
	testIssuer = "feesettle-identity"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

var testNow = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

// memArchive records uploads in memory
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memArchive) Upload(_ context.Context, key string, body []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = body
	return nil
}

// testServer is the full HTTP stack over an in-memory SQLite database.
// The school has one year, one class and three untaxed heads totalling 8000.
type testServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	archive *memArchive

	schoolID  uuid.UUID
	actorID   uuid.UUID
	year      fee.AcademicYear
	class     fee.Class
	tuition   fee.FeeHead
	transport fee.FeeHead
	library   fee.FeeHead
	token     string
}

type serverOptions struct {
	withoutExport bool
}

func newTestServer(t *testing.T, opts ...func(*serverOptions)) *testServer {
	t.Helper()
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	s := &testServer{db: db, archive: &memArchive{}, schoolID: uuid.New(), actorID: uuid.New()}
	s.seed(t)
	s.token = mintToken(t, s.schoolID, s.actorID)

	schools := persistence.NewGormSchoolRepository(db)
	invoices := persistence.NewGormInvoiceRepository(db)
	receipts := persistence.NewGormReceiptRepository(db)
	scope := persistence.NewGormTransactionScope(db)
	locker := lock.NewLocalLocker()
	registry, err := strategy.NewRegistryWithDefaults("even")
	require.NoError(t, err)

	serviceOpts := []appfee.Option{
		appfee.WithLogger(zap.NewNop()),
		appfee.WithClock(appfee.ClockFunc(func() time.Time { return testNow })),
		appfee.WithAuditRecorder(persistence.NewGormAuditRecorder(db, zap.NewNop())),
	}
	generation := appfee.NewGenerationService(schools, schools, schools, scope, locker, serviceOpts...)
	payments := appfee.NewPaymentService(scope, locker, registry.Resolve(""), serviceOpts...).
		WithIdempotencyStore(cache.NewInMemoryIdempotencyStore())
	settlements := appfee.NewSettlementService(schools, schools, invoices, scope, serviceOpts...)
	if !o.withoutExport {
		settlements.WithExporter(export.NewXLSXExporter()).WithArchive(s.archive)
	}
	queries := appfee.NewInvoiceQueryService(invoices, receipts, schools, serviceOpts...)

	jwtService := auth.NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: testIssuer})
	engine := gin.New()
	engine.Use(middleware.RequestID())

	r := router.New(engine)
	MountFeeRoutes(r, FeeHandlers{
		Fees:        NewFeeHandler(generation, payments),
		Invoices:    NewInvoiceHandler(queries),
		Settlements: NewSettlementHandler(settlements),
	}, middleware.JWTAuthMiddleware(jwtService))
	r.Mount()

	s.engine = engine
	return s
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	s.year = fee.AcademicYear{
		ID: uuid.New(), SchoolID: s.schoolID, Name: "2026-27",
		StartDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	}
	s.class = fee.Class{ID: uuid.New(), SchoolID: s.schoolID, Name: "Grade 5"}
	s.tuition = fee.FeeHead{ID: uuid.New(), SchoolID: s.schoolID, Name: "Tuition", TaxRate: decimal.Zero}
	s.transport = fee.FeeHead{ID: uuid.New(), SchoolID: s.schoolID, Name: "Transport", TaxRate: decimal.Zero}
	s.library = fee.FeeHead{ID: uuid.New(), SchoolID: s.schoolID, Name: "Library", TaxRate: decimal.Zero}

	require.NoError(t, s.db.Create(models.AcademicYearModelFromDomain(&s.year, testNow)).Error)
	require.NoError(t, s.db.Create(models.ClassModelFromDomain(&s.class, testNow)).Error)
	for _, h := range []*fee.FeeHead{&s.tuition, &s.transport, &s.library} {
		require.NoError(t, s.db.Create(models.FeeHeadModelFromDomain(h, testNow)).Error)
	}
	for head, amount := range map[uuid.UUID]string{
		s.tuition.ID:   "5000",
		s.transport.ID: "2000",
		s.library.ID:   "1000",
	} {
		st := fee.FeeStructure{
			ID: uuid.New(), SchoolID: s.schoolID, AcademicYearID: s.year.ID,
			ClassID: s.class.ID, HeadID: head, Amount: decimal.RequireFromString(amount),
		}
		require.NoError(t, s.db.Create(models.FeeStructureModelFromDomain(&st, testNow)).Error)
	}
}

func (s *testServer) addStudent(t *testing.T, name string) fee.Student {
	t.Helper()
	classID := s.class.ID
	st := fee.Student{
		ID: uuid.New(), SchoolID: s.schoolID, AdmissionNumber: "ADM-" + name,
		FullName: name, ClassID: &classID, IsActive: true,
	}
	require.NoError(t, s.db.Create(models.StudentModelFromDomain(&st, testNow)).Error)
	return st
}

// generate bills every student and returns the created invoice IDs
func (s *testServer) generate(t *testing.T) []string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/fees/generate", map[string]any{
		"academic_year_id": s.year.ID.String(),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Data GenerationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data.InvoiceIDs
}

func (s *testServer) pay(t *testing.T, invoiceID, amount string) PaymentResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/payments", map[string]any{
		"amount": amount,
		"mode":   "CASH",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Data PaymentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data
}

// do sends an authenticated request. body may be nil, a string, or any
// JSON-marshalable value.
func (s *testServer) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+s.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out.Data
}

func mintToken(t *testing.T, schoolID, userID uuid.UUID) string {
	t.Helper()
	now := time.Now()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		SchoolID:  schoolID.String(),
		UserID:    userID.String(),
		Username:  "bursar",
		TokenType: auth.TokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}
