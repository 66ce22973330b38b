package env

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekisa-team/modelweb/internal/envvar"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"", Development},
		{"development", Development},
		{"production", Production},
		{" PROD ", Production},
		{"staging", Development},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(envvar.ModelwebEnv, "production")
	assert.True(t, FromEnv().IsProduction())

	t.Setenv(envvar.ModelwebEnv, "")
	assert.False(t, FromEnv().IsProduction())
}
