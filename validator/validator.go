package validator

import (
	"errors"
	"fmt"

	"github.com/GetStream/party-engagement/party"
	"github.com/go-playground/validator/v10"
)

// Validator is a struct that provides methods for struct validation using the underlying validator library.
type Validator struct {
	cli *validator.Validate
}

func (v *Validator) formatError(err error) []*party.ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []*party.ValidationError{{Message: err.Error()}}
	}
	out := make([]*party.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		out = append(out, &party.ValidationError{
			Field:   fe.StructField(),
			Message: msg,
		})
	}
	return out
}

// ValidateStruct validates the provided struct and returns one error per invalid field.
func (v *Validator) ValidateStruct(s any) []*party.ValidationError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Validate checks a single value against the specified validation tags.
func (v *Validator) Validate(value any, tag string) []*party.ValidationError {
	if err := v.cli.Var(value, tag); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Check validates s and joins the field errors into a single error, or
// returns nil when s is valid. Every joined error matches party.ErrValidation.
func (v *Validator) Check(s any) error {
	verrs := v.ValidateStruct(s)
	if len(verrs) == 0 {
		return nil
	}
	errs := make([]error, len(verrs))
	for i, e := range verrs {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// New initializes and returns a new instance of the Validator
func New() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}
