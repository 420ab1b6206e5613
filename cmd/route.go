package cmd

import (
	"fmt"
	"strings"

	"github.com/encodeous/weft/core"
	"github.com/encodeous/weft/state"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route <destination> [source account]",
	Short: "Shows how a running connector would route a packet",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 1 || len(args) > 2 {
			_ = cmd.Usage()
			return
		}
		if err := state.AddressValidator(args[0]); err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		socket, _ := cmd.Flags().GetString("socket")
		socket, err := ipcSocket([]string{socket})
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		result, err := core.IPCGet(socket, "route "+strings.Join(args, " "))
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "weft",
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringP("socket", "s", "", "ipc socket of the connector, defaults to the one in the node config")
}
