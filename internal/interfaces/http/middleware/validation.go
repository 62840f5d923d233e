package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Money2DPTag validates a decimal string with at most two fraction digits
const Money2DPTag = "money2dp"

var setupOnce sync.Once

// SetupValidator configures gin's validator: JSON field names in errors and
// the money2dp tag. Safe to call more than once.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		if err := v.RegisterValidation(Money2DPTag, validateMoney2DP); err != nil {
			panic("register " + Money2DPTag + " validation: " + err.Error())
		}
	})
}

func validateMoney2DP(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	_, err := valueobject.ParseAmount(field.String())
	return err == nil
}

// FormatValidationErrors builds the 400 envelope. Binding tag failures get
// one detail per field; a JSON value of the wrong type is reported against
// its field, which catches amounts sent as numbers instead of strings.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var (
		details   []dto.ValidationDetail
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	message := "Request validation failed"

	switch {
	case errors.As(err, &fieldErrs):
		for _, e := range fieldErrs {
			details = append(details, dto.ValidationDetail{Field: e.Field(), Message: fieldMessage(e)})
		}
	case errors.As(err, &typeErr):
		details = append(details, dto.ValidationDetail{
			Field:   typeErr.Field,
			Message: "Must be a " + jsonKind(typeErr.Type.Kind()),
		})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		message = "Request body is not valid JSON"
	}

	return dto.NewValidationErrorResponse(message, requestID, details)
}

// HandleValidationError answers 400 with the standard validation envelope;
// a body cut off by BodyLimit is a 413
func HandleValidationError(c *gin.Context, err error) {
	if limit, ok := isBodyTooLarge(err); ok {
		abortTooLarge(c, strconv.FormatInt(limit, 10))
		return
	}
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

var fixedMessages = map[string]string{
	"required":  "This field is required",
	"uuid":      "Invalid UUID format",
	Money2DPTag: "Must be a decimal amount with at most 2 decimal places",
	"datetime":  "Must be a date in YYYY-MM-DD format",
	"dive":      "Invalid list element",
}

func fieldMessage(e validator.FieldError) string {
	if msg, ok := fixedMessages[e.Tag()]; ok {
		return msg
	}
	unit := ""
	if e.Kind() == reflect.String {
		unit = " characters"
	}
	switch e.Tag() {
	case "oneof":
		return "Must be one of: " + e.Param()
	case "min":
		return "Must be at least " + e.Param() + unit
	case "max":
		return "Must be at most " + e.Param() + unit
	}
	return "Invalid value"
}

func jsonKind(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Bool:
		return "boolean"
	default:
		return "number"
	}
}
