package cmd

import (
	"os"

	"github.com/encodeous/weft/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft Interledger Connector",
	Long: `Weft is an Interledger connector.
It routes ILP prepare packets between accounts, converts amounts between assets, tracks balances and triggers settlement.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure Weft",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "weft",
		Title: "Weft Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "config", "c", state.NodeConfigPath, "node config")
}
