// Package config loads service configuration from the environment.
package config

import (
	"github.com/spf13/viper"

	"github.com/cygnuslabs/cygnus/types"
)

// Config holds all settings for the cygnus service.
type Config struct {
	StellarNetwork string `mapstructure:"STELLAR_NETWORK"`
	HorizonURL     string `mapstructure:"HORIZON_URL"`
	SorobanRPCURL  string `mapstructure:"SOROBAN_RPC_URL"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	AgentSecretKey string `mapstructure:"AGENT_SECRET_KEY"`

	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	X402Enabled   bool   `mapstructure:"X402_ENABLED"`
	X402AmountXLM string `mapstructure:"X402_AMOUNT_XLM"`
	X402PayTo     string `mapstructure:"X402_PAY_TO"`

	SchedulerPaymentDestination     string `mapstructure:"SCHEDULER_PAYMENT_DESTINATION"`
	SchedulerPaymentAmount          string `mapstructure:"SCHEDULER_PAYMENT_AMOUNT"`
	SchedulerPaymentIntervalSeconds int64  `mapstructure:"SCHEDULER_PAYMENT_INTERVAL_SECONDS"`
}

// Network maps the configured network name onto the typed enum; anything
// unrecognized falls back to testnet.
func (c *Config) Network() types.Network {
	if c.StellarNetwork == string(types.NetworkPubnet) {
		return types.NetworkPubnet
	}
	return types.NetworkTestnet
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	viper.SetDefault("STELLAR_NETWORK", "testnet")
	viper.SetDefault("HORIZON_URL", "https://horizon-testnet.stellar.org")
	viper.SetDefault("SOROBAN_RPC_URL", "https://soroban-testnet.stellar.org")
	viper.SetDefault("LISTEN_ADDR", ":8000")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("X402_ENABLED", false)
	viper.SetDefault("X402_AMOUNT_XLM", "1")
	viper.SetDefault("SCHEDULER_PAYMENT_INTERVAL_SECONDS", 0)
	viper.AutomaticEnv()

	// Bind explicitly so the variables appear in Unmarshal
	for _, key := range []string{
		"STELLAR_NETWORK", "HORIZON_URL", "SOROBAN_RPC_URL", "DATABASE_URL",
		"AGENT_SECRET_KEY", "LISTEN_ADDR", "LOG_LEVEL",
		"X402_ENABLED", "X402_AMOUNT_XLM", "X402_PAY_TO",
		"SCHEDULER_PAYMENT_DESTINATION", "SCHEDULER_PAYMENT_AMOUNT",
		"SCHEDULER_PAYMENT_INTERVAL_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
