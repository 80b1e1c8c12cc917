package server

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
)

// registerValidators adds the domain tags used in request binding. Gin's
// default validator is shared process wide, so registration is idempotent.
func registerValidators(materials []string) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	known := make(map[string]struct{}, len(materials))
	for _, m := range materials {
		known[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}

	if err := v.RegisterValidation("material", func(fl validator.FieldLevel) bool {
		_, ok := known[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
		return ok
	}); err != nil {
		return err
	}
	return v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		_, ok := paymentdomain.ParseMethod(fl.Field().String())
		return ok
	})
}
