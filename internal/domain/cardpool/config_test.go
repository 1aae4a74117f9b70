package cardpool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cardvault/internal/domain/cardpool"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*cardpool.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*cardpool.Config) {}},
		{name: "zero cache size", mutate: func(c *cardpool.Config) { c.CacheSize = 0 }, wantErr: true},
		{name: "zero generation count", mutate: func(c *cardpool.Config) { c.GenerationCount = 0 }, wantErr: true},
		{name: "low water of one", mutate: func(c *cardpool.Config) { c.LowWaterFraction = 1 }, wantErr: true},
		{name: "negative low water", mutate: func(c *cardpool.Config) { c.LowWaterFraction = -0.1 }, wantErr: true},
		{name: "no lock timeout", mutate: func(c *cardpool.Config) { c.LockTimeout = 0 }, wantErr: true},
		{name: "no refill timeout", mutate: func(c *cardpool.Config) { c.RefillTimeout = -time.Second }, wantErr: true},
		{name: "bad BIN", mutate: func(c *cardpool.Config) { c.Numbering.BIN = "40x" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cardpool.DefaultConfig(testBIN)
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
