package model

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce  sync.Once
	buyerValidate *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		buyerValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return buyerValidate
}

// Validate checks a buyer against the registration schema.
// Every failure maps to ErrValidation with the fixed schema message; the
// validator detail is kept as the cause for logging.
func Validate(b *Buyer) error {
	const op = "model.validate"
	if b == nil {
		return NewError(op, ErrValidation, MsgInvalidSchema, nil)
	}
	if err := validatorInstance().Struct(b); err != nil {
		return NewError(op, ErrValidation, MsgInvalidSchema, err)
	}
	return nil
}
