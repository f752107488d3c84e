package types

import "errors"

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend          string `json:"backend" yaml:"backend"`
	DataDir          string `json:"data_dir" yaml:"data_dir"`
	CascadeBatchSize int    `json:"cascade_batch_size" yaml:"cascade_batch_size"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultCascadeBatchSize bounds how many instances one cascading-retirement
// transaction soft-deletes, so long cascades never starve instance writes.
const DefaultCascadeBatchSize = 256

// Config validation errors.
var (
	ErrBackendEmpty      = errors.New("backend must not be empty")
	ErrBackendUnknown    = errors.New("unknown backend")
	ErrDataDirEmpty      = errors.New("data directory must not be empty")
	ErrBatchSizeNegative = errors.New("cascade batch size must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	if c.CascadeBatchSize < 0 {
		return ErrBatchSizeNegative
	}
	return nil
}

// GetCascadeBatchSize returns the configured batch size, or the default when
// unset.
func (c Config) GetCascadeBatchSize() int {
	if c.CascadeBatchSize > 0 {
		return c.CascadeBatchSize
	}
	return DefaultCascadeBatchSize
}
