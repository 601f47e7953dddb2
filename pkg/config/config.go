package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the coordinator configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Routing     RoutingConfig     `yaml:"routing"`
	Networks    []NetworkConfig   `yaml:"networks" validate:"required,min=1,dive"`
	Wallets     []WalletConfig    `yaml:"wallets" validate:"dive"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Auth        AuthConfig        `yaml:"auth"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"60s"`
	// AcceptTimeout bounds accepting a swap once the request is in. It runs
	// past client disconnects and the request timeout.
	AcceptTimeout   time.Duration `yaml:"accept_timeout" default:"5m" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"swaps"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
}

// RoutingConfig contains settings for the bridge-aggregation routing service
type RoutingConfig struct {
	BaseURL    string        `yaml:"base_url" default:"https://li.quest/v1" validate:"required,url"`
	APIKey     string        `yaml:"api_key"`
	Integrator string        `yaml:"integrator" default:"swap-coordinator"`
	Timeout    time.Duration `yaml:"timeout" default:"30s"`
	Slippage   float64       `yaml:"slippage" default:"0.005" validate:"gte=0,lt=1"`
	// Referrer receives the integrator fee, when Fee is non-zero.
	Referrer string  `yaml:"referrer"`
	Fee      float64 `yaml:"fee" validate:"gte=0,lt=1"`
}

// NetworkConfig groups the chains reachable on one network (mainnet, testnet)
type NetworkConfig struct {
	Name   string        `yaml:"name" validate:"required"`
	Chains []ChainConfig `yaml:"chains" validate:"required,min=1,dive"`
}

// ChainConfig contains an EVM chain endpoint
type ChainConfig struct {
	Name        string `yaml:"name" validate:"required"`
	ChainID     int64  `yaml:"chain_id" validate:"required,gt=0"`
	RPCURL      string `yaml:"rpc_url" validate:"required"`
	MaxGasPrice string `yaml:"max_gas_price"`
	GasLimit    uint64 `yaml:"gas_limit"`
}

// WalletConfig describes a wallet and the accounts it holds on one network.
// Private keys are never stored in the file; PrivateKeyEnv names the variable holding the key.
type WalletConfig struct {
	ID            string `yaml:"id" validate:"required"`
	Network       string `yaml:"network" validate:"required"`
	PrivateKeyEnv string `yaml:"private_key_env" validate:"required"`
}

// CoordinatorConfig contains swap lifecycle settings
type CoordinatorConfig struct {
	ApprovalPollInterval   time.Duration `yaml:"approval_poll_interval" default:"5s" validate:"gt=0"`
	SettlementPollInterval time.Duration `yaml:"settlement_poll_interval" default:"10s" validate:"gt=0"`
	PollTimeout            time.Duration `yaml:"poll_timeout" validate:"gte=0"`
	RetryDelay             time.Duration `yaml:"retry_delay" default:"30s" validate:"gte=0"`
	MaxRetries             int           `yaml:"max_retries" default:"10" validate:"gte=0"`
	ReconcileInterval      time.Duration `yaml:"reconcile_interval" default:"1m" validate:"gte=0"`
}

// AuthConfig contains JWT settings for the API
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	JWKSURL string `yaml:"jwks_url" validate:"required_if=Enabled true"`
	Issuer  string `yaml:"issuer"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
	MaxBackups int    `yaml:"max_backups" default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" default:"30"`
	Compress   bool   `yaml:"compress"`
}

// ClientConfig is the swapctl configuration
type ClientConfig struct {
	BaseURL  string        `yaml:"base_url" default:"http://localhost:8080" validate:"required,url"`
	Token    string        `yaml:"token"`
	// WalletID is sent in the wallet header when no token is configured.
	WalletID string        `yaml:"wallet_id"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
}

// Load loads configuration from a yaml file. ${VAR} references are expanded from the environment.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if err := loadFile(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient loads the swapctl configuration. A missing file yields the defaults.
func LoadClient(configPath string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if configPath == "" {
		if err := defaults.Set(cfg); err != nil {
			return nil, fmt.Errorf("failed to set defaults: %w", err)
		}
		return cfg, nil
	}
	if err := loadFile(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(configPath string, out any) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return parse(raw, out)
}

func parse(raw []byte, out any) error {
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("failed to set defaults: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// GetConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Network returns the named network, or nil.
func (c *Config) Network(name string) *NetworkConfig {
	for i := range c.Networks {
		if c.Networks[i].Name == name {
			return &c.Networks[i]
		}
	}
	return nil
}

// Chain returns the chain on this network with the given id, or nil.
func (n *NetworkConfig) Chain(chainID int64) *ChainConfig {
	for i := range n.Chains {
		if n.Chains[i].ChainID == chainID {
			return &n.Chains[i]
		}
	}
	return nil
}
