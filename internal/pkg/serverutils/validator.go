package serverutils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError marks a request body failure so the error middleware can
// answer 400 instead of 500.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field '%s' (%s)", e.Field, e.Reason)
}

func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if ok := AsValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			return &ValidationError{
				Field:  verrs[0].Field(),
				Reason: verrs[0].Tag(),
			}
		}
		return err
	}
	return nil
}

// AsValidationErrors keeps the errors.As noise out of ValidateRequest.
func AsValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
