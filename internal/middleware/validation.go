package middleware

import (
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/telecare-api/internal/model"
)

// Validators are the binding tags used by request models.
var Validators = map[string]validator.Func{
	"role": func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	},
	"date": func(fl validator.FieldLevel) bool {
		_, err := time.Parse(model.DateLayout, fl.Field().String())
		return err == nil
	},
	"clock": func(fl validator.FieldLevel) bool {
		_, err := time.Parse(model.ClockLayout, fl.Field().String())
		return err == nil
	},
	"booking_status": func(fl validator.FieldLevel) bool {
		return model.BookingStatus(fl.Field().String()).Valid()
	},
}

// RegisterValidators installs Validators on gin's binding engine and reports
// fields by their json name.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	for tag, fn := range Validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return nil
}
