package common

import (
	"fmt"
	"strings"
)

type Environment string

const (
	MainNet      Environment = "prod"
	UnsafeDevNet Environment = "dev"  // local devnet; callers are not authenticated by the API and every write endpoint is open
	TestNet      Environment = "test" // shared testnet; same as devnet but with a persistent data directory expected
	GoTest       Environment = "unit-test"
)

// ParseEnvironment parses a string into the corresponding Environment value, allowing various reasonable variations.
func ParseEnvironment(str string) (Environment, error) {
	switch strings.ToLower(str) {
	case "prod", "mainnet":
		return MainNet, nil
	case "test", "testnet":
		return TestNet, nil
	case "dev", "devnet", "unsafedevnet":
		return UnsafeDevNet, nil
	case "unit-test", "gotest":
		return GoTest, nil
	}
	return UnsafeDevNet, fmt.Errorf("invalid environment string: %s", str)
}

// AllowsImpersonation reports whether API callers may act on behalf of an arbitrary address. The HTTP API has no
// signature scheme, so this is only acceptable outside of production.
func (e Environment) AllowsImpersonation() bool {
	return e != MainNet
}
