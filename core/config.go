package core

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/signing"
	"github.com/robfig/cron/v3"
)

const (
	defaultResponseBodyLimit int64 = 64 << 10 // 64 KiB
	defaultRequestTimeout          = 30 * time.Second
	defaultDispatchSchedule        = "@every 30s"
	defaultDispatchBatchSize       = 50
	defaultDispatchLease           = 2 * time.Minute
)

type DispatchConfig struct {
	BatchSize int           `koanf:"batch_size" mapstructure:"batch_size"`
	Lease     time.Duration `koanf:"lease" mapstructure:"lease"`
	Schedule  string        `koanf:"schedule" mapstructure:"schedule"`
}

type Config struct {
	ServiceName       string         `koanf:"service_name" mapstructure:"service_name"`
	UserAgent         string         `koanf:"user_agent" mapstructure:"user_agent"`
	RequestTimeout    time.Duration  `koanf:"request_timeout" mapstructure:"request_timeout"`
	ResponseBodyLimit int64          `koanf:"response_body_limit" mapstructure:"response_body_limit"`
	DefaultRetry      RetryConfig    `koanf:"default_retry" mapstructure:"default_retry"`
	Dispatch          DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "hookdelivery",
		UserAgent:         signing.DefaultUserAgent,
		RequestTimeout:    defaultRequestTimeout,
		ResponseBodyLimit: defaultResponseBodyLimit,
		DefaultRetry:      DefaultRetryConfig(),
		Dispatch: DispatchConfig{
			BatchSize: defaultDispatchBatchSize,
			Lease:     defaultDispatchLease,
			Schedule:  defaultDispatchSchedule,
		},
	}
}

func (c Config) Validate() error {
	fields := []goerrors.FieldError{}
	if strings.TrimSpace(c.ServiceName) == "" {
		fields = append(fields, goerrors.FieldError{Field: "service_name", Message: "is required"})
	}
	if c.RequestTimeout < 0 {
		fields = append(fields, goerrors.FieldError{Field: "request_timeout", Message: "must be >= 0"})
	}
	if c.ResponseBodyLimit < 0 {
		fields = append(fields, goerrors.FieldError{Field: "response_body_limit", Message: "must be >= 0"})
	}
	if c.Dispatch.BatchSize < 0 {
		fields = append(fields, goerrors.FieldError{Field: "dispatch.batch_size", Message: "must be >= 0"})
	}
	if c.Dispatch.Lease < 0 {
		fields = append(fields, goerrors.FieldError{Field: "dispatch.lease", Message: "must be >= 0"})
	}
	if schedule := strings.TrimSpace(c.Dispatch.Schedule); schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			fields = append(fields, goerrors.FieldError{Field: "dispatch.schedule", Message: err.Error()})
		}
	}
	if !c.DefaultRetry.IsZero() {
		if err := c.DefaultRetry.Validate(); err != nil {
			var rich *goerrors.Error
			if goerrors.As(err, &rich) {
				fields = append(fields, rich.ValidationErrors...)
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return validationError("core: invalid config", fields...)
}

// withDefaults fills zero values so a partially specified runtime config
// still yields a usable coordinator.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	out := c
	if strings.TrimSpace(out.ServiceName) == "" {
		out.ServiceName = defaults.ServiceName
	}
	if strings.TrimSpace(out.UserAgent) == "" {
		out.UserAgent = defaults.UserAgent
	}
	if out.RequestTimeout == 0 {
		out.RequestTimeout = defaults.RequestTimeout
	}
	if out.ResponseBodyLimit == 0 {
		out.ResponseBodyLimit = defaults.ResponseBodyLimit
	}
	out.DefaultRetry = out.DefaultRetry.WithDefaults(defaults.DefaultRetry)
	if out.Dispatch.BatchSize == 0 {
		out.Dispatch.BatchSize = defaults.Dispatch.BatchSize
	}
	if out.Dispatch.Lease == 0 {
		out.Dispatch.Lease = defaults.Dispatch.Lease
	}
	if strings.TrimSpace(out.Dispatch.Schedule) == "" {
		out.Dispatch.Schedule = defaults.Dispatch.Schedule
	}
	return out
}
