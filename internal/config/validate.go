package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() func(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their YAML names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return func(cfg *Config) error {
		if err := v.Struct(cfg); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return err
			}
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return checkDatabaseURL(cfg.Storage.DatabaseURL)
	}
}

func describe(fe validator.FieldError) string {
	// drop the root struct name from "Config.accounts[0].handle"
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

func checkDatabaseURL(dburl string) error {
	if dburl == "" {
		return nil
	}
	for _, prefix := range []string{"sqlite://", "sqlite=", "postgres://", "postgresql://", "postgres="} {
		if strings.HasPrefix(dburl, prefix) {
			return nil
		}
	}
	return fmt.Errorf("storage.database_url has unsupported scheme (expected sqlite:// or postgres://)")
}
