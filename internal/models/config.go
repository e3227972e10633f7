package models

import "time"

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig
	Router      RouterConfig
	Projector   ProjectorConfig
	Listener    ListenerConfig
	Formance    FormanceConfig
	Prime       PrimeConfig
	HTTPAddr    string
	CatalogFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeoutMs   int
}

// RouterConfig holds routing engine settings
type RouterConfig struct {
	LockWaitTimeout  time.Duration
	QuoteConcurrency int
	AdminIds         []string
}

// ProjectorConfig holds event projection settings
type ProjectorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
}

// ListenerConfig holds inbound transfer listener settings
type ListenerConfig struct {
	Enabled         bool
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// FormanceConfig holds the Formance stack connection used for event projection.
// An empty StackURL disables the Formance publisher.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// PrimeConfig holds Coinbase Prime credentials used by the cross-chain transport.
type PrimeConfig struct {
	AccessKey   string
	Passphrase  string
	SigningKey  string
	PortfolioId string
}

// Enabled reports whether all Prime credentials are present.
func (c PrimeConfig) Enabled() bool {
	return c.AccessKey != "" && c.Passphrase != "" && c.SigningKey != ""
}
