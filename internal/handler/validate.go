package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/enum"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	must(v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return enum.IsChannel(fl.Field().String())
	}))
	must(v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return enum.IsOrderStatus(fl.Field().String())
	}))
	must(v.RegisterValidation("account_status", func(fl validator.FieldLevel) bool {
		return enum.IsAccountStatus(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

var errInvalidBody = errors.New("invalid request body")

// decodeJSON reads the request body into dst and validates it. A malformed
// body is errInvalidBody; a rule violation is an apperr Validation error
// naming the first failing field.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errInvalidBody
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.New(apperr.KindValidation, fieldMessage(verrs[0]))
	}
	return apperr.Wrap(apperr.KindValidation, "invalid request", err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "channel":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(enum.Channels, " "))
	case "order_status":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(enum.OrderStatuses, " "))
	case "account_status":
		return fmt.Sprintf("%s must be one of: active inactive suspended", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// decodeFailure writes the response for a decodeJSON error.
func decodeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidBody) {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	fail(w, apperr.HTTPStatus(err), err.Error())
}
