package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "10", want: "10"},
		{in: "10.5", want: "10.5"},
		{in: "0.01", want: "0.01"},
		{in: "1.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewMoneyFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMustMoney_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMoney("1.234") })
	assert.True(t, MustMoney("1.23").Equal(MustMoney("1.230")))
	assert.True(t, Zero().IsZero())
}
