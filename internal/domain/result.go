package domain

// ValidationResult reports the outcome of validating an entity.
type ValidationResult struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// AddError records a failed rule and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// ServiceError is the uniform failure envelope returned by the services.
// Message is safe to show to clients; Cause holds the underlying fault, if any.
type ServiceError struct {
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}
