package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/wormhole-keeper/keeper-app/config"
	"github.com/compose-network/wormhole-keeper/x/bridge"
	"github.com/compose-network/wormhole-keeper/x/keeper"
)

func TestRender(t *testing.T) {
	decision := keeper.FinalizeDecision{Eligible: true, Reason: "flush message pending on L1"}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", decision))
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	require.Equal(t, true, fromJSON["eligible"])

	buf.Reset()
	require.NoError(t, render(&buf, "YAML", decision))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Equal(t, true, fromYAML["eligible"])

	require.Error(t, render(&buf, "xml", decision))
}

func TestRender_DomainAsName(t *testing.T) {
	report := keeper.StatusReport{
		Domain:      bridge.MustParseDomain("GOERLI-SLAVE-STARKNET-1"),
		Policy:      keeper.DelayGated,
		PendingDebt: bridge.NewSplitAmount(500, 0),
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputYAML, report))
	require.Contains(t, buf.String(), "domain: GOERLI-SLAVE-STARKNET-1")
	require.Contains(t, buf.String(), "policy: delay-gated")
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("domain", "", "")
	cmd.Flags().String("flush-policy", "", "")
	cmd.Flags().Uint64("flush-delay-blocks", 0, "")
	cmd.Flags().Bool("require-delivered", true, "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Duration("run-interval", 0, "")
	cmd.Flags().Int("metrics-port", 0, "")
	return cmd
}

func TestApplyFlags(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--domain", "OTHER-DOMAIN",
		"--flush-policy", "delay-gated",
		"--require-delivered=false",
		"--run-interval", "90s",
		"--metrics-port", "9100",
	}))

	cfg := &config.Config{Domain: "GOERLI-SLAVE-STARKNET-1"}
	cfg.Keeper.RequireMessageDelivered = true
	cfg.Log.Level = "info"

	applyFlags(cmd, cfg)

	require.Equal(t, "OTHER-DOMAIN", cfg.Domain)
	require.Equal(t, "delay-gated", cfg.Keeper.FlushPolicy)
	require.False(t, cfg.Keeper.RequireMessageDelivered)
	require.Equal(t, 90*time.Second, cfg.Keeper.RunInterval)
	require.Equal(t, 9100, cfg.Metrics.Port)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, changed(cmd, "listen-addr"))
}

func TestRunVersion(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	runVersion(cmd, nil)
	require.Contains(t, buf.String(), "Version:    "+Version)
}
