package opsboard

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateGlobal()...)
	errs = append(errs, c.validatePoller()...)
	errs = append(errs, c.validateLatency()...)
	errs = append(errs, c.validateSource()...)
	errs = append(errs, c.validateViews()...)
	errs = append(errs, c.validateInfluxDB()...)
	errs = append(errs, c.validatePrometheus()...)
	errs = append(errs, c.validateHTTP()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateGlobal() ValidationErrors {
	var errs ValidationErrors

	if c.Global.BatchSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "global.batch_size",
			Message: "must be positive",
		})
	}

	if c.Global.RetryAttempts < 0 {
		errs = append(errs, ValidationError{
			Field:   "global.retry_attempts",
			Message: "must not be negative",
		})
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Global.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "global.log_level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "global.log_format",
			Message: "must be text or json",
		})
	}

	return errs
}

func (c *Config) validatePoller() ValidationErrors {
	var errs ValidationErrors

	// A disabled poller may leave the interval unset.
	if c.Poller.Enabled && c.Poller.Interval.Duration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poller.interval",
			Message: "must be positive when polling is enabled",
		})
	}

	if c.Poller.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "poller.timeout",
			Message: "must not be negative",
		})
	}

	return errs
}

func (c *Config) validateLatency() ValidationErrors {
	if err := c.Latency.Validate(); err != nil {
		return ValidationErrors{{
			Field:   "latency",
			Message: err.Error(),
		}}
	}
	return nil
}

func (c *Config) validateSource() ValidationErrors {
	var errs ValidationErrors

	if c.Source.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "source.url",
			Message: "required",
		})
	} else if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "source.url",
			Message: "must be an absolute URL",
		})
	}

	if c.Source.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "source.timeout",
			Message: "must not be negative",
		})
	}

	if c.Source.PredictTimeout.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "source.predict_timeout",
			Message: "must not be negative",
		})
	}

	return errs
}

func (c *Config) validateViews() ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool, len(c.Views))
	for i, v := range c.Views {
		field := fmt.Sprintf("views[%d]", i)
		if v.Name == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "required",
			})
		} else if seen[v.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate view %q", v.Name),
			})
		}
		seen[v.Name] = true

		if v.Capacity <= 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".capacity",
				Message: "must be positive",
			})
		}

		for _, ep := range v.Endpoints {
			if ep == "" {
				errs = append(errs, ValidationError{
					Field:   field + ".endpoints",
					Message: "must not contain empty names",
				})
				break
			}
		}
	}

	return errs
}

func (c *Config) validateInfluxDB() ValidationErrors {
	var errs ValidationErrors

	if !c.InfluxDB.Enabled {
		return errs
	}

	if c.InfluxDB.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.url",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Token == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.token",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Org == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.org",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Bucket == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.bucket",
			Message: "required when InfluxDB is enabled",
		})
	}

	return errs
}

func (c *Config) validatePrometheus() ValidationErrors {
	var errs ValidationErrors

	if !c.Prometheus.Enabled {
		return errs
	}

	if c.Prometheus.Port <= 0 || c.Prometheus.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "prometheus.port",
			Message: "must be a valid port (1-65535)",
		})
	}

	if c.Prometheus.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "prometheus.path",
			Message: "required when Prometheus is enabled",
		})
	} else if !strings.HasPrefix(c.Prometheus.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "prometheus.path",
			Message: "must start with /",
		})
	}

	return errs
}

func (c *Config) validateHTTP() ValidationErrors {
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return ValidationErrors{{
			Field:   "http.addr",
			Message: "required when the HTTP API is enabled",
		}}
	}
	return nil
}
