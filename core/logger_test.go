package core

import (
	"testing"

	"github.com/kat-co/vala"
	"github.com/stretchr/testify/assert"
)

func TestNopsPassConstructorChecks(t *testing.T) {
	assert.NotPanics(t, func() {
		vala.BeginValidation().Validate(
			vala.IsNotNil(NopLogger, "logger"),
			vala.IsNotNil(NopMetrics, "metrics"),
		).CheckAndPanic()
	})
	assert.Panics(t, func() { NopLogger.Fatal("boom") })
}
