package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("generation", "g1")

	l.Info("corpus loaded", "records", 3)
	l.Warn("dangling reference", "target", "nonexistent-id")

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "corpus loaded", first.Message)
	assert.Equal(t, "g1", first.ContextMap()["generation"])
	assert.EqualValues(t, 3, first.ContextMap()["records"])
	assert.Equal(t, zap.WarnLevel, logs.All()[1].Level)
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"development", "production", "prod", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		l.Debug("hello")
	}
}

func TestNop(t *testing.T) {
	Nop().Error("ignored", "k", "v")
}
