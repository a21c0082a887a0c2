package payroll

import (
	"os"
	"path/filepath"

	"github.com/emar-delivery/backoffice/encoding"
)

// Config carries the company-wide settings the calculators fall back on.
// It lives as a config.json object in the data directory, next to the
// collection files.
type Config struct {
	Currency                 string  `json:"currency"`
	GlobalCommissionPerOrder float64 `json:"global_commission_per_order"`
	PayrollApprovalRequired  bool    `json:"payroll_approval_required"`
}

// DefaultConfig is used when config.json is absent or unreadable.
func DefaultConfig() Config {
	return Config{
		Currency:                 "KWD",
		GlobalCommissionPerOrder: 0.250,
		PayrollApprovalRequired:  true,
	}
}

// LoadConfig reads config.json from dataDir. A missing or malformed file
// degrades to the defaults, mirroring how collection reads degrade to
// empty. Keys absent from the file keep their default; an explicitly
// configured value wins even when it is zero.
func LoadConfig(dataDir string) Config {
	cfg := DefaultConfig()
	ba, err := os.ReadFile(filepath.Join(dataDir, "config.json"))
	if err != nil {
		return cfg
	}
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}
