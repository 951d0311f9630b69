// Package commands implements the latticectl cobra CLI: apply, plan,
// rollback and report, grounded on the teacher's cmd/froyo/commands
// layout.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticectl/lattice/internal/telemetry"
)

var (
	manifestPaths []string
	policyPaths   []string
	dbPath        string
	tags          []string
	ignoreTags    bool
	ignoreSched   bool
	traceErrors   bool

	// remote-* flags configure the single SSH connection shared by every
	// declared "remotefile" resource. remoteHost empty means no remotefile
	// kind is registered at all (see (a *app) registry).
	remoteHost           string
	remotePort           int
	remoteUser           string
	remoteAuthMethod     string
	remotePassword       string
	remoteKeyPath        string
	remoteKeyPassphrase  string
	remoteKnownHosts     string
	remoteStrictHostKeys bool
	remoteConnTimeout    time.Duration

	// plugin-* flags load a single third-party WASM resource kind. Only
	// one plugin kind can be registered per invocation today — a CLI
	// limitation, not a provider one; providers/plugin itself supports any
	// number of modules sharing one Module per kind.
	pluginKind   string
	pluginBinary string

	// cliVersion is stamped by Execute so the app (and the Tracer it
	// builds) can tag spans with the running binary's version.
	cliVersion = "dev"
)

// Execute builds and runs the root command.
func Execute(ctx context.Context, log *telemetry.Logger, version, commit, buildDate string) error {
	cliVersion = version
	rootCmd := newRootCommand(log, version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(log *telemetry.Logger, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "latticectl",
		Short: "lattice - a sequential configuration-management transaction engine",
		Long: `latticectl drives the lattice transaction engine: it loads a manifest of
declared resources, builds their relationship graph, and evaluates them in
dependency order, triggering notify/subscribe callbacks and recording a
report as it goes.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringSliceVarP(&manifestPaths, "manifest", "m", []string{"manifest.yaml"}, "manifest file(s) to load")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "rego policy file(s) or directories to load")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "lattice.db", "sqlite database path for transaction history")
	rootCmd.PersistentFlags().StringSliceVar(&tags, "tags", nil, "restrict evaluation to resources carrying one of these tags")
	rootCmd.PersistentFlags().BoolVar(&ignoreTags, "ignore-tags", false, "bypass tag filtering entirely")
	rootCmd.PersistentFlags().BoolVar(&ignoreSched, "ignore-schedules", false, "bypass schedule filtering entirely")
	rootCmd.PersistentFlags().BoolVar(&traceErrors, "trace", false, "attach a stack trace to log lines emitted for caught errors")

	rootCmd.PersistentFlags().StringVar(&remoteHost, "remote-host", "", "SSH host for remotefile resources (unset disables the remotefile kind)")
	rootCmd.PersistentFlags().IntVar(&remotePort, "remote-port", 22, "SSH port for remotefile resources")
	rootCmd.PersistentFlags().StringVar(&remoteUser, "remote-user", "", "SSH user for remotefile resources")
	rootCmd.PersistentFlags().StringVar(&remoteAuthMethod, "remote-auth", "key", "SSH auth method for remotefile resources: key or password")
	rootCmd.PersistentFlags().StringVar(&remotePassword, "remote-password", "", "SSH password, when --remote-auth=password")
	rootCmd.PersistentFlags().StringVar(&remoteKeyPath, "remote-key", "", "SSH private key path, when --remote-auth=key")
	rootCmd.PersistentFlags().StringVar(&remoteKeyPassphrase, "remote-key-passphrase", "", "passphrase for --remote-key")
	rootCmd.PersistentFlags().StringVar(&remoteKnownHosts, "remote-known-hosts", "", "known_hosts path for host key verification")
	rootCmd.PersistentFlags().BoolVar(&remoteStrictHostKeys, "remote-strict-host-keys", true, "reject unknown remote host keys")
	rootCmd.PersistentFlags().DurationVar(&remoteConnTimeout, "remote-timeout", 10*time.Second, "SSH dial timeout for remotefile resources")

	rootCmd.PersistentFlags().StringVar(&pluginKind, "plugin-kind", "", "resource kind implemented by --plugin-binary (unset disables plugin loading)")
	rootCmd.PersistentFlags().StringVar(&pluginBinary, "plugin-binary", "", "path to a compiled WASM module implementing --plugin-kind")

	rootCmd.AddCommand(newApplyCommand(log))
	rootCmd.AddCommand(newPlanCommand(log))
	rootCmd.AddCommand(newRollbackCommand(log))
	rootCmd.AddCommand(newReportCommand(log))

	return rootCmd
}
