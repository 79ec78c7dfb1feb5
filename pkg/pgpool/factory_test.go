package pgpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteDSNValue(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{
			name:     "plain",
			password: "s3cr3t",
			want:     "'s3cr3t'",
		},
		{
			name:     "space",
			password: "s3cr3t with space",
			want:     "'s3cr3t with space'",
		},
		{
			name:     "single quote",
			password: "it's",
			want:     `'it\'s'`,
		},
		{
			name:     "backslash",
			password: `back\slash`,
			want:     `'back\\slash'`,
		},
		{
			name:     "empty",
			password: "",
			want:     "''",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteDSNValue(tt.password))
		})
	}
}
