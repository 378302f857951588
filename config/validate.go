package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360/flowcanvas/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so messages match the config file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	needsNATS := c.Store.Backend == StoreNATS || (c.Gateway.Enabled && c.Gateway.PublishNATS)
	if needsNATS && c.Store.NATS.URL == "" {
		problems = append(problems, "store.nats.url is required when NATS is used")
	}
	if c.Store.Backend == StoreNATS && c.Store.NATS.Bucket == "" {
		problems = append(problems, "store.nats.bucket is required for the nats backend")
	}
	if c.Engine.TLS.Configured() && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		problems = append(problems, "engine.tls requires an https engine.base_url")
	}
	if c.Metrics.Enabled && c.Gateway.Enabled && fmt.Sprintf(":%d", c.Metrics.Port) == c.Gateway.Addr {
		problems = append(problems, "metrics.port collides with gateway.addr")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "config validation")
	}
	return nil
}

// describe renders a field error with its dotted JSON path.
func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", path, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	case "url":
		return path + " must be a URL"
	case "hostname_port":
		return path + " must be host:port"
	case "startswith":
		return fmt.Sprintf("%s must start with %q", path, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", path, fe.Param())
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s fails %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s", path, fe.Tag())
	}
}
