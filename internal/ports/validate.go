package ports

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateConfig checks the `validate` struct tags of cfg and reports
// violations as a ConfigError for component.
func ValidateConfig(component string, cfg interface{}) error {
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{Component: component, Err: err}
	}
	return nil
}
