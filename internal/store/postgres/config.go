package postgres

import (
	"fmt"
	"time"
)

// ExecutorConfig holds settings applied to every tenant scoped transaction.
// Pool configuration is handled separately via PoolConfig.
type ExecutorConfig struct {
	// StatementTimeout bounds each statement run inside a tenant transaction.
	// Set to 0 to rely on the server and driver defaults.
	StatementTimeout time.Duration

	// ReadOnly begins transactions in read only mode.
	ReadOnly bool
}

// Validate checks that the configuration is valid.
func (c *ExecutorConfig) Validate() error {
	if c.StatementTimeout < 0 {
		return fmt.Errorf("statement timeout must not be negative")
	}
	if c.StatementTimeout > 0 && c.StatementTimeout < time.Millisecond {
		return fmt.Errorf("statement timeout must be at least 1ms")
	}
	return nil
}

// statementTimeoutSQL returns the SET LOCAL statement for the configured timeout, or "".
func (c *ExecutorConfig) statementTimeoutSQL() string {
	if c.StatementTimeout <= 0 {
		return ""
	}
	return fmt.Sprintf("SET LOCAL statement_timeout = %d", c.StatementTimeout.Milliseconds())
}
