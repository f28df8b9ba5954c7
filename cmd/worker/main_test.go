package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salespulse/salespulse/internal/app"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SALESPULSE_TEST_MODE", "1")
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.TestMode)
	main()
}
