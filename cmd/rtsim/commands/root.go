package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	flagDevice string
	flagRedis  string
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtsim",
	Short: "rtsim - host harness for the rtcore control stack",
	Long: `rtsim boots the full control stack on the host: the executive over a
loopback wire, the embedded device profiles, the heartbeat service and an
optional Redis telemetry mirror.

Use "rtsim run" for a headless rig, or "rtsim console" for an interactive
control prompt against a live rig.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		red.Fprintln(rootCmd.ErrOrStderr(), err.Error())
	}
	return err
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "sim",
		"embedded config profile to boot")
	rootCmd.PersistentFlags().StringVar(&flagRedis, "redis", "",
		"mirror retained telemetry to this Redis address (host:port)")
}
