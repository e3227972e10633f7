package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// AssetConfig declares a token the router accepts.
type AssetConfig struct {
	Symbol       string `yaml:"symbol"`
	Decimals     int32  `yaml:"decimals"`
	ThresholdBps int64  `yaml:"rebalance_threshold_bps"`
	Supported    *bool  `yaml:"supported"`
	// Network is the chain used when issuing Prime deposit addresses.
	Network string `yaml:"network"`
}

// IsSupported defaults to true when the catalog does not say otherwise.
func (a AssetConfig) IsSupported() bool {
	return a.Supported == nil || *a.Supported
}

// VenueConfig declares a simulated lending venue and its per-asset APY.
type VenueConfig struct {
	Name  string           `yaml:"name"`
	Chain string           `yaml:"chain"`
	APY   map[string]int64 `yaml:"apy_bps"`
}

// FeeConfig seeds the fee settings on first setup.
type FeeConfig struct {
	RateBps *int64 `yaml:"rate_bps"`
	Sink    string `yaml:"sink"`
}

type Catalog struct {
	Assets []AssetConfig `yaml:"assets"`
	Venues []VenueConfig `yaml:"venues"`
	Fees   FeeConfig     `yaml:"fees"`
}

// Asset returns the catalog entry for symbol.
func (c *Catalog) Asset(symbol string) (AssetConfig, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// LoadCatalog reads and validates a catalog file. Relative paths resolve
// against the working directory.
func LoadCatalog(catalogFile string) (*Catalog, error) {
	var catalogPath string
	if filepath.IsAbs(catalogFile) {
		catalogPath = catalogFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		catalogPath = filepath.Join(wd, catalogFile)
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", catalogFile, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unable to parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i, asset := range catalog.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if seen[asset.Symbol] {
			return nil, fmt.Errorf("asset %s declared twice", asset.Symbol)
		}
		seen[asset.Symbol] = true
		if asset.Decimals < 0 {
			return nil, fmt.Errorf("asset %s has negative decimals", asset.Symbol)
		}
	}

	for i, v := range catalog.Venues {
		if v.Name == "" || v.Chain == "" {
			return nil, fmt.Errorf("venue at index %d missing name or chain", i)
		}
		for symbol, bps := range v.APY {
			if !seen[symbol] {
				return nil, fmt.Errorf("venue %s quotes unknown asset %s", v.Name, symbol)
			}
			if bps < 0 {
				return nil, fmt.Errorf("venue %s has negative apy for %s", v.Name, symbol)
			}
		}
	}

	return &catalog, nil
}
