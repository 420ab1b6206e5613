package cmd

import (
	"fmt"

	"github.com/encodeous/weft/core"
	"github.com/encodeous/weft/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect [socket]",
	Aliases: []string{"i"},
	Short:   "Inspects the routing table and balances of a running connector",
	Run: func(cmd *cobra.Command, args []string) {
		socket, err := ipcSocket(args)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		result, err := core.IPCGet(socket, "inspect")
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "weft",
}

// ipcSocket takes the socket from the arguments, falling back to the node config
func ipcSocket(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	cfg, err := state.ReadNodeConfig(state.NodeConfigPath)
	if err != nil {
		return "", err
	}
	if cfg.IpcSocket == "" {
		return "", fmt.Errorf("%s does not configure ipc_socket", state.NodeConfigPath)
	}
	return cfg.IpcSocket, nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
