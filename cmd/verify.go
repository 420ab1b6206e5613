package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/weft/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the node config and prints it with defaults filled in",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.ReadNodeConfig(state.NodeConfigPath)
		if err != nil {
			panic(err)
		}
		state.ExpandNodeConfig(cfg)
		err = state.NodeConfigValidator(cfg)
		if err != nil {
			fmt.Printf("%s is not valid: %s\n", state.NodeConfigPath, err)
			os.Exit(1)
		}

		cfgYaml, err := yaml.Marshal(cfg)
		if err != nil {
			panic(err)
		}
		fmt.Println("Config is valid")
		fmt.Println(string(cfgYaml))
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
