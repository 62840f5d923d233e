package fee

import (
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OperationContext identifies who is acting for which school. It is passed
// explicitly into every operation; nothing reads it from ambient state.
type OperationContext struct {
	SchoolID  uuid.UUID
	ActorID   uuid.UUID
	RequestID string
}

// Validate checks that the school and actor are known
func (o OperationContext) Validate() error {
	if o.SchoolID == uuid.Nil {
		return shared.NewDomainError(shared.CodeValidation, "school is required")
	}
	if o.ActorID == uuid.Nil {
		return shared.NewDomainError(shared.CodeValidation, "acting user is required")
	}
	return nil
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time {
	return f()
}
