package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("refgenes.quantile", 0.05)
	viper.Set("refgenes.set-name", "encode")

	var (
		quantile float64
		setName  string
	)
	cmd := &cobra.Command{Use: "refgenes"}
	cmd.Flags().Float64Var(&quantile, "quantile", 0.02, "")
	cmd.Flags().StringVar(&setName, "set-name", "default", "")

	// a flag given on the command line wins over the config file
	require.NoError(t, cmd.Flags().Set("set-name", "explicit"))
	require.NoError(t, applyConfigDefaults(cmd, "refgenes", "quantile", "set-name"))

	assert.Equal(t, 0.05, quantile)
	assert.Equal(t, "explicit", setName)
}

func TestApplyConfigDefaults_UnsetKeysKeepFlagDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	var (
		workers  int
		noFilter bool
	)
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().IntVar(&workers, "workers", 0, "")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "")

	require.NoError(t, applyConfigDefaults(cmd, "run", "workers", "no-filter"))
	assert.Equal(t, 0, workers)
	assert.False(t, noFilter)
}

func TestApplyConfigDefaults_BadValue(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("run.workers", "many")

	var workers int
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().IntVar(&workers, "workers", 0, "")

	err := applyConfigDefaults(cmd, "run", "workers")
	assert.ErrorContains(t, err, "config run.workers")
}
