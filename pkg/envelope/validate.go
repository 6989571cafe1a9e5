package envelope

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid envelope")

// envelopeValidate reports field names as they appear on the wire.
var envelopeValidate *validator.Validate

func init() {
	envelopeValidate = validator.New(validator.WithRequiredStructEnabled())
	envelopeValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks the request before any item is attempted.
func (r Request[I]) Validate() error {
	err := envelopeValidate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + ": failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
