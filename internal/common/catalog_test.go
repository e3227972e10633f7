package common

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yield-router-go/internal/venue"
)

const testCatalog = `
assets:
  - symbol: USDC
    decimals: 6
    rebalance_threshold_bps: 50
    network: base-mainnet
  - symbol: DAI
    decimals: 18
    supported: false
venues:
  - name: aave
    chain: base-mainnet
    apy_bps:
      USDC: 500
  - name: compound
    chain: base-mainnet
    apy_bps:
      USDC: 400
fees:
  rate_bps: 1500
  sink: dao
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}

	if len(catalog.Assets) != 2 || len(catalog.Venues) != 2 {
		t.Fatalf("got %d assets and %d venues, want 2 and 2", len(catalog.Assets), len(catalog.Venues))
	}

	usdc, ok := catalog.Asset("USDC")
	if !ok {
		t.Fatal("USDC missing from catalog")
	}
	if !usdc.IsSupported() || usdc.Decimals != 6 || usdc.ThresholdBps != 50 {
		t.Errorf("USDC = %+v", usdc)
	}

	dai, _ := catalog.Asset("DAI")
	if dai.IsSupported() {
		t.Error("DAI should be unsupported")
	}

	if catalog.Fees.RateBps == nil || *catalog.Fees.RateBps != 1500 || catalog.Fees.Sink != "dao" {
		t.Errorf("Fees = %+v", catalog.Fees)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing symbol", "assets:\n  - decimals: 6\n", "missing symbol"},
		{"duplicate asset", "assets:\n  - symbol: USDC\n  - symbol: USDC\n", "declared twice"},
		{"negative decimals", "assets:\n  - symbol: USDC\n    decimals: -1\n", "negative decimals"},
		{"venue without chain", "venues:\n  - name: aave\n", "missing name or chain"},
		{"unknown asset", "venues:\n  - name: aave\n    chain: base\n    apy_bps:\n      WBTC: 100\n", "unknown asset"},
		{"negative apy", "assets:\n  - symbol: USDC\nvenues:\n  - name: aave\n    chain: base\n    apy_bps:\n      USDC: -1\n", "negative apy"},
		{"bad yaml", "assets: [", "unable to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseCatalog() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCatalog(path); err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadCatalog() on a missing file should fail")
	}
}

func TestBuildAdapters(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}

	adapters, err := BuildAdapters(catalog, venue.NewMemoryPoolStore())
	if err != nil {
		t.Fatalf("BuildAdapters() error = %v", err)
	}
	if len(adapters) != 2 {
		t.Fatalf("got %d adapters, want 2", len(adapters))
	}

	apy, err := adapters[0].Quote(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if apy != 500 {
		t.Errorf("aave USDC apy = %d, want 500", apy)
	}
	if adapters[0].ID() == adapters[1].ID() {
		t.Error("venues on the same chain must have distinct source ids")
	}
}
