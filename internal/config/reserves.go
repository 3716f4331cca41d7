package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserve describes one pooled reserve account to provision at startup.
type Reserve struct {
	Asset     string `yaml:"asset"`
	Code      string `yaml:"code"`
	Liquidity uint64 `yaml:"liquidity"`
}

type reservesFile struct {
	Reserves []Reserve `yaml:"reserves"`
}

// LoadReserves parses a YAML file of the form:
//
//	reserves:
//	  - asset: USDC
//	    liquidity: 1000000
func LoadReserves(path string) ([]Reserve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reserves file: %w", err)
	}
	return ParseReserves(data)
}

// ParseReserves validates reserve definitions and fills default account codes.
func ParseReserves(data []byte) ([]Reserve, error) {
	var parsed reservesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse reserves file: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Reserves))
	out := make([]Reserve, 0, len(parsed.Reserves))
	for i, r := range parsed.Reserves {
		r.Asset = strings.TrimSpace(r.Asset)
		if r.Asset == "" {
			return nil, fmt.Errorf("reserve %d: asset is required", i)
		}
		if r.Code == "" {
			r.Code = ReserveCode(r.Asset)
		}
		if seen[r.Code] {
			return nil, fmt.Errorf("reserve %d: duplicate account %s", i, r.Code)
		}
		seen[r.Code] = true
		out = append(out, r)
	}
	return out, nil
}

// ReserveCode is the default ledger account code for an asset's reserve.
func ReserveCode(asset string) string {
	return "reserve:" + asset
}
