package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PoolPilotError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PoolPilotError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PoolPilotError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Run pipeline errors

func RunFailed(stage string, cause error) *PoolPilotError {
	return Wrap(cause, CategoryPool, SeverityFatal, "run failed").
		WithContext("stage", stage)
}

func WorkspaceError(operation string, cause error) *PoolPilotError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "run directory operation failed").
		WithContext("operation", operation)
}

// Scheduler errors

func SubmitFailed(jobName string, cause error) *PoolPilotError {
	return Wrap(cause, CategoryScheduler, SeverityFatal, "batch submission failed").
		WithContext("job_name", jobName)
}

// Pool errors

func PoolStartFailed(cause error) *PoolPilotError {
	return Wrap(cause, CategoryPool, SeverityFatal, "worker pool start failed")
}

func PoolNotReady(attempts int) *PoolPilotError {
	return New(CategoryPool, SeverityFatal, "worker pool never reported ready").
		WithContext("attempts", attempts)
}

func TeardownFailed(cause error) *PoolPilotError {
	return Wrap(cause, CategoryPool, SeverityWarning, "worker pool stop failed")
}

// Analysis errors

func AnalysisStartFailed(cause error) *PoolPilotError {
	return Wrap(cause, CategoryAnalysis, SeverityFatal, "analysis program could not be started")
}

func AnalysisExitError(exitCode int) *PoolPilotError {
	return New(CategoryAnalysis, SeverityFatal, "analysis program exited non-zero").
		WithContext("exit_code", exitCode)
}

// Storage errors

func StorageError(operation string, cause error) *PoolPilotError {
	return WrapRetryable(cause, CategoryStorage, SeverityWarning, "run registry operation failed").
		WithContext("operation", operation)
}

// Notification errors

func NotifyError(subject string, cause error) *PoolPilotError {
	return WrapRetryable(cause, CategoryNotify, SeverityWarning, "lifecycle notification failed").
		WithContext("subject", subject)
}

// Internal errors

func InternalError(message string, cause error) *PoolPilotError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
