package cmd

import (
	"github.com/encodeous/weft/core"
	"github.com/encodeous/weft/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run weft",
	Long:  `This will run the connector described by the node config until it receives SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		err := core.Bootstrap(state.NodeConfigPath, logPath, verbose)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "weft",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().BoolVarP(&state.DBG_debug, "debug", "d", false, "Serve pprof and metrics on "+state.DebugAddr)
	runCmd.Flags().BoolVar(&state.DBG_trace, "ltrace", false, "Write a runtime trace to trace.out")
	runCmd.Flags().BoolVarP(&state.DBG_log_router, "lroute", "r", false, "Write router updates to console")
	runCmd.Flags().BoolVarP(&state.DBG_log_packets, "lpacket", "p", false, "Write every resolved packet to console")
}
