package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rtcore-go/bus"
	"rtcore-go/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the rig headless and stream state transitions",
	Long: `Boots the configured device profile and stays attached, printing
executive state transitions and heartbeats until interrupted.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := startRig(ctx)
	if err != nil {
		return err
	}

	stateSub := conn.Subscribe(bus.T("exec", "state"))
	beatSub := conn.Subscribe(bus.T("heartbeat", "beat"))
	defer conn.Unsubscribe(stateSub)
	defer conn.Unsubscribe(beatSub)

	cyan.Printf("rig %q up, ctrl-c to stop\n", flagDevice)

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			green.Println("shutting down")
			return nil
		case m := <-stateSub.Channel():
			st, ok := m.Payload.(types.ServiceState)
			if !ok {
				continue
			}
			line := fmt.Sprintf("exec: %s (%s)", st.Level, st.Status)
			switch st.Level {
			case "error":
				red.Println(line, st.Error)
			case "ready":
				green.Println(line)
			default:
				fmt.Println(line)
			}
		case m := <-beatSub.Channel():
			if beat, ok := m.Payload.(types.Heartbeat); ok {
				fmt.Printf("beat %d\n", beat.Seq)
			}
		}
	}
}
