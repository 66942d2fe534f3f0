package activity

type Config struct {
	// SuspendExceptions downgrades logging failures to a warning so the
	// triggering operation always completes.
	SuspendExceptions bool `envconfig:"ACTIVITY_SUSPEND_EXCEPTIONS" default:"false" yaml:"suspend_exceptions"`

	// LogFullObjects keeps before/after payloads of read and query requests.
	LogFullObjects bool `envconfig:"AUDIT_LOG_FULL_OBJECTS" default:"false" yaml:"log_full_objects"`
}
