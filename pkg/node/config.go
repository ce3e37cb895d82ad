package node

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	xcommon "github.com/xerc1155/xchain/pkg/common"
)

// ConfigOptions is used to configure the loading of config parameters by "xercd node".
type ConfigOptions struct {
	// FilePath is the path to the config file to be loaded, including the file name and extension.
	// The file may be any of the types supported by Viper (such as .yaml or .json).
	FilePath string

	// EnvPrefix is the prefix of environment variables overriding config file settings. For instance, setting it to
	// "XERCD" makes XERCD_DATADIR override dataDir.
	EnvPrefix string
}

type Config struct {
	Env        string `mapstructure:"env"`
	DataDir    string `mapstructure:"dataDir"`
	APIAddr    string `mapstructure:"apiAddr"`
	StatusAddr string `mapstructure:"statusAddr"`
	// SystemdSocket serves the API on the socket passed by systemd instead of listening on APIAddr.
	SystemdSocket bool `mapstructure:"systemdSocket"`
	// AutoRegister maps every configured chain to the contracts on all other configured chains at startup, acting as
	// each contract's owner. Existing mappings are left alone.
	AutoRegister bool          `mapstructure:"autoRegister"`
	Relayer      RelayerConfig `mapstructure:"relayer"`
	Chains       []ChainConfig `mapstructure:"chains"`
}

type RelayerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DeliveryDelay time.Duration `mapstructure:"deliveryDelay"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	// RateLimit is in deliveries per second. Zero means unlimited.
	RateLimit  float64 `mapstructure:"rateLimit"`
	RateBurst  int     `mapstructure:"rateBurst"`
	MaxRetries uint64  `mapstructure:"maxRetries"`
}

type ChainConfig struct {
	ChainID string `mapstructure:"chainId"`
	Address string `mapstructure:"address"`
	Owner   string `mapstructure:"owner"`
	// Gateway defaults to an address derived from the chain id.
	Gateway           string `mapstructure:"gateway"`
	FeePayer          string `mapstructure:"feePayer"`
	URI               string `mapstructure:"uri"`
	ReplayProtection  bool   `mapstructure:"replayProtection"`
	StrictOrigin      bool   `mapstructure:"strictOrigin"`
	SkipEmptyDispatch bool   `mapstructure:"skipEmptyDispatch"`
	RegistryCacheSize int    `mapstructure:"registryCacheSize"`

	// InitialMint is minted to Owner when the contract is created. It is ignored once the chain database exists.
	InitialMint []TokenAmount `mapstructure:"initialMint"`
}

// TokenAmount holds a token id and an amount, each as a decimal or 0x-prefixed hex string.
type TokenAmount struct {
	ID     string `mapstructure:"id"`
	Amount string `mapstructure:"amount"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", string(xcommon.UnsafeDevNet))
	v.SetDefault("dataDir", "")
	v.SetDefault("apiAddr", "[::]:7071")
	v.SetDefault("statusAddr", "[::]:6060")
	v.SetDefault("systemdSocket", false)
	v.SetDefault("autoRegister", false)
	v.SetDefault("relayer.enabled", true)
	v.SetDefault("relayer.deliveryDelay", time.Duration(0))
	v.SetDefault("relayer.sweepInterval", 30*time.Second)
	v.SetDefault("relayer.rateLimit", 0.0)
	v.SetDefault("relayer.rateBurst", 1)
	v.SetDefault("relayer.maxRetries", 5)
}

// LoadConfig builds the node configuration according to the following precedence:
// 1. Command line flags (flags with the same name as a config key)
// 2. Environment variables
// 3. Config file
// 4. Defaults
func LoadConfig(flags *pflag.FlagSet, options ConfigOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if options.FilePath != "" {
		v.SetConfigFile(options.FilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Nested keys map to variables like XERCD_RELAYER_ENABLED.
	v.SetEnvPrefix(options.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and returns the parsed environment.
func (c *Config) Validate() (xcommon.Environment, error) {
	env, err := xcommon.ParseEnvironment(c.Env)
	if err != nil {
		return env, err
	}
	if c.DataDir == "" && env == xcommon.MainNet {
		return env, errors.New("dataDir must be set in production")
	}
	if !c.SystemdSocket && c.APIAddr != "" {
		if err := xcommon.ValidateListenAddr(c.APIAddr); err != nil {
			return env, fmt.Errorf("apiAddr: %w", err)
		}
	}
	if c.StatusAddr != "" {
		if err := xcommon.ValidateListenAddr(c.StatusAddr); err != nil {
			return env, fmt.Errorf("statusAddr: %w", err)
		}
	}
	if c.Relayer.Enabled && c.Relayer.SweepInterval <= 0 {
		return env, errors.New("relayer.sweepInterval must be positive")
	}
	if c.Relayer.RateLimit < 0 {
		return env, errors.New("relayer.rateLimit must not be negative")
	}
	if c.Relayer.RateLimit > 0 && c.Relayer.RateBurst < 1 {
		return env, errors.New("relayer.rateBurst must be at least 1")
	}

	if len(c.Chains) == 0 {
		return env, errors.New("at least one chain must be configured")
	}
	seen := make(map[string]struct{}, len(c.Chains))
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.ChainID == "" {
			return env, fmt.Errorf("chains[%d]: chainId must be set", i)
		}
		if _, ok := seen[ch.ChainID]; ok {
			return env, fmt.Errorf("chains[%d]: duplicate chainId %s", i, ch.ChainID)
		}
		seen[ch.ChainID] = struct{}{}

		if !common.IsHexAddress(ch.Address) {
			return env, fmt.Errorf("chain %s: invalid address %q", ch.ChainID, ch.Address)
		}
		if !common.IsHexAddress(ch.Owner) {
			return env, fmt.Errorf("chain %s: invalid owner %q", ch.ChainID, ch.Owner)
		}
		if ch.Gateway != "" && !common.IsHexAddress(ch.Gateway) {
			return env, fmt.Errorf("chain %s: invalid gateway %q", ch.ChainID, ch.Gateway)
		}
		if ch.URI != "" {
			if err := xcommon.ValidateURL(ch.URI, "http", "https", "ipfs"); err != nil {
				return env, fmt.Errorf("chain %s: %w", ch.ChainID, err)
			}
		}
		if ch.RegistryCacheSize < 0 {
			return env, fmt.Errorf("chain %s: registryCacheSize must not be negative", ch.ChainID)
		}
		if _, _, err := ch.InitialSupply(); err != nil {
			return env, fmt.Errorf("chain %s: %w", ch.ChainID, err)
		}
	}
	return env, nil
}

// GatewayAddress returns the address the loopback gateway uses as caller on this chain.
func (c *ChainConfig) GatewayAddress() common.Address {
	if c.Gateway != "" {
		return common.HexToAddress(c.Gateway)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("xerc-gateway/" + c.ChainID)))
}

// DBPath is the database directory of the chain relative to the data directory. Chain ids are opaque, so the
// directory name is their hex encoding.
func (c *ChainConfig) DBPath() string {
	return filepath.Join("chains", hex.EncodeToString([]byte(c.ChainID)))
}

// InitialSupply parses InitialMint.
func (c *ChainConfig) InitialSupply() (ids []*big.Int, amounts []*big.Int, err error) {
	for i, ta := range c.InitialMint {
		id, ok := new(big.Int).SetString(ta.ID, 0)
		if !ok || id.Sign() < 0 {
			return nil, nil, fmt.Errorf("initialMint[%d]: invalid id %q", i, ta.ID)
		}
		amount, ok := new(big.Int).SetString(ta.Amount, 0)
		if !ok || amount.Sign() < 0 {
			return nil, nil, fmt.Errorf("initialMint[%d]: invalid amount %q", i, ta.Amount)
		}
		ids = append(ids, id)
		amounts = append(amounts, amount)
	}
	return ids, amounts, nil
}
