package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/wormhole-keeper/keeper-app/config"
	"github.com/compose-network/wormhole-keeper/log"
	"github.com/compose-network/wormhole-keeper/x/oracle"
)

var (
	cfgFile string
	envFile string
	output  string

	rootCmd = &cobra.Command{
		Use:           "wormhole-keeper",
		Short:         "DAI wormhole keeper for StarkNet",
		Long:          "Flushes batched wormhole debt on StarkNet and finalizes the flush on L1.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Flush pending debt on L2 and wait until it is accepted on L1",
		RunE:  runFlush,
	}

	finalizeCmd = &cobra.Command{
		Use:   "finalize",
		Short: "Call finalizeFlush on the L1 gateway when the flush message is pending",
		RunE:  runFinalize,
	}

	cycleCmd = &cobra.Command{
		Use:   "cycle",
		Short: "Run flush followed by finalize once",
		RunE:  runCycle,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run keeper cycles periodically and serve the status API",
		RunE:  runDaemon,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current debt, settlement and delivery view without sending transactions",
		RunE:  runStatus,
	}

	attestationsCmd = &cobra.Command{
		Use:   "attestations <l2-tx-hash>",
		Short: "Fetch oracle attestations for a wormhole initiated in an L2 transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runAttestations,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.ExecuteContext(context.Background())
}

func initCommands() {
	rootCmd.AddCommand(flushCmd, finalizeCmd, cycleCmd, runCmd, statusCmd, attestationsCmd, versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded when present")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputJSON, "result format (json, yaml)")
	rootCmd.PersistentFlags().String("network", "", "network (MAINNET, GOERLI, LOCALHOST)")
	rootCmd.PersistentFlags().String("domain", "", "source domain name")
	rootCmd.PersistentFlags().String("flush-policy", "", "flush policy (unconditional, delay-gated)")
	rootCmd.PersistentFlags().Uint64("flush-delay-blocks", 0, "delay-gated policy block margin")
	rootCmd.PersistentFlags().Bool("require-delivered", true, "only finalize when the flush message is pending on L1")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Run mode flags
	runCmd.Flags().Duration("run-interval", 0, "time between keeper cycles")
	runCmd.Flags().String("listen-addr", "", "status API listen address")
	runCmd.Flags().Bool("metrics", false, "enable metrics")
	runCmd.Flags().Int("metrics-port", 0, "dedicated metrics port, 0 serves them on the API")
}

// loadConfig loads configuration and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	network, _ := cmd.Flags().GetString("network")
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: cfgFile,
		EnvFile:    envFile,
		Network:    network,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	return cfg, nil
}

// newKeeperApp validates cfg for the keeper commands and builds the App.
func newKeeperApp(cmd *cobra.Command, signs bool) (*App, *log.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	if signs {
		if err := cfg.ValidateSigner(); err != nil {
			return nil, nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	logger := log.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	application, err := NewApp(cmd.Context(), cfg, logger.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create application: %w", err)
	}
	return application, logger, nil
}

func runFlush(cmd *cobra.Command, _ []string) error {
	application, _, err := newKeeperApp(cmd, false)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Keeper().Flush(cmd.Context())
	if rerr := render(cmd.OutOrStdout(), output, res); rerr != nil {
		return rerr
	}
	return err
}

func runFinalize(cmd *cobra.Command, _ []string) error {
	application, _, err := newKeeperApp(cmd, true)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Keeper().FinalizeFlush(cmd.Context())
	if rerr := render(cmd.OutOrStdout(), output, res); rerr != nil {
		return rerr
	}
	return err
}

func runCycle(cmd *cobra.Command, _ []string) error {
	application, _, err := newKeeperApp(cmd, true)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Keeper().Cycle(cmd.Context())
	if rerr := render(cmd.OutOrStdout(), output, res); rerr != nil {
		return rerr
	}
	return err
}

func runStatus(cmd *cobra.Command, _ []string) error {
	application, _, err := newKeeperApp(cmd, false)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Keeper().Status(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, report)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	application, logger, err := newKeeperApp(cmd, true)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	return application.Run(cmd.Context())
}

func runAttestations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateOracle(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := log.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	client, err := oracle.NewClient(cfg.Oracle, nil, logger.Logger)
	if err != nil {
		return err
	}

	att, err := client.FetchAttestations(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, att)
}

func runVersion(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Wormhole Keeper\n")
	fmt.Fprintf(w, "Version:    %s\n", Version)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// changed reports whether a flag visible to cmd was set explicitly.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if changed(cmd, "domain") {
		cfg.Domain, _ = cmd.Flags().GetString("domain")
	}
	if changed(cmd, "flush-policy") {
		cfg.Keeper.FlushPolicy, _ = cmd.Flags().GetString("flush-policy")
	}
	if changed(cmd, "flush-delay-blocks") {
		cfg.Keeper.FlushDelayBlocks, _ = cmd.Flags().GetUint64("flush-delay-blocks")
	}
	if changed(cmd, "require-delivered") {
		cfg.Keeper.RequireMessageDelivered, _ = cmd.Flags().GetBool("require-delivered")
	}

	if changed(cmd, "log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if changed(cmd, "log-pretty") {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if changed(cmd, "run-interval") {
		cfg.Keeper.RunInterval, _ = cmd.Flags().GetDuration("run-interval")
	}
	if changed(cmd, "listen-addr") {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if changed(cmd, "metrics") {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
	if changed(cmd, "metrics-port") {
		cfg.Metrics.Port, _ = cmd.Flags().GetInt("metrics-port")
	}
}
