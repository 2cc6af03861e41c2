package config

import "fmt"

// Validator checks a fully-merged Config for internally consistent values
// before it's handed to cmd/sdlcloopd's bootstrap.
type Validator struct {
	cfg *Config
}

// NewValidator returns a Validator bound to cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check and returns the first failure.
func (v *Validator) ValidateAll() error {
	checks := []func() error{
		v.validateSystem,
		v.validateDatabase,
		v.validateQueue,
		v.validateLoopDefaults,
		v.validateParity,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateSystem() error {
	if v.cfg.System.ListenAddr == "" {
		return &ValidationError{Component: "system", Field: "listen_addr", Err: ErrMissingRequiredField}
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	if v.cfg.Database.Host == "" {
		return &ValidationError{Component: "database", Field: "host", Err: ErrMissingRequiredField}
	}
	if v.cfg.Database.Database == "" {
		return &ValidationError{Component: "database", Field: "name", Err: ErrMissingRequiredField}
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount <= 0 {
		return &ValidationError{Component: "queue", Field: "worker_count", Err: fmt.Errorf("%w: must be positive", ErrInvalidValue)}
	}
	if q.MaxConcurrentLoops <= 0 {
		return &ValidationError{Component: "queue", Field: "max_concurrent_loops", Err: fmt.Errorf("%w: must be positive", ErrInvalidValue)}
	}
	if q.OrphanThreshold <= q.OrphanDetectionInterval {
		return &ValidationError{Component: "queue", Field: "orphan_threshold", Err: fmt.Errorf("%w: must exceed orphan_detection_interval", ErrInvalidValue)}
	}
	return nil
}

func (v *Validator) validateLoopDefaults() error {
	ld := v.cfg.LoopDefaults
	if ld.PlanApprovalPolicy != "auto" && ld.PlanApprovalPolicy != "human_required" {
		return &ValidationError{Component: "loop_defaults", Field: "plan_approval_policy", Err: fmt.Errorf("%w: must be \"auto\" or \"human_required\"", ErrInvalidValue)}
	}
	if ld.MaxFixAttempts <= 0 {
		return &ValidationError{Component: "loop_defaults", Field: "max_fix_attempts", Err: fmt.Errorf("%w: must be positive", ErrInvalidValue)}
	}
	return nil
}

func (v *Validator) validateParity() error {
	p := v.cfg.Parity
	if p.CutoverThreshold < 0 || p.CutoverThreshold > 1 {
		return &ValidationError{Component: "parity", Field: "cutover_threshold", Err: fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue)}
	}
	if p.RollbackThreshold < 0 || p.RollbackThreshold > 1 {
		return &ValidationError{Component: "parity", Field: "rollback_threshold", Err: fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue)}
	}
	if p.RollbackThreshold > p.CutoverThreshold {
		return &ValidationError{Component: "parity", Field: "rollback_threshold", Err: fmt.Errorf("%w: must not exceed cutover_threshold", ErrInvalidValue)}
	}
	return nil
}
