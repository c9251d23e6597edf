package config

import (
	"fmt"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
)

// newValidator returns a validator with the custom tags used by Config.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	gx := gronx.New()
	if err := v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return gx.IsValid(fl.Field().String())
	}); err != nil {
		// Registration only fails on an empty tag or nil func.
		panic(fmt.Sprintf("register cron validation: %v", err))
	}
	return v
}

// Validate checks field constraints and the cross-field rules that struct
// tags cannot express.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			return fmt.Errorf("%w: task %q is enabled but has no schedule", ErrConfiguration, name)
		}
	}

	if c.Database.Path == ":memory:" && c.Database.MaxOpenConns != 1 {
		// Each pooled connection would open its own empty in-memory database.
		return fmt.Errorf("%w: in-memory database requires max_open_conns=1", ErrConfiguration)
	}

	return nil
}
