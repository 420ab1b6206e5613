package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/encodeous/weft/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a node configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			return
		}
		name := args[0]
		err := state.NameValidator(name)
		if err != nil {
			fmt.Printf("Invalid name: %s\n", name)
			os.Exit(-1)
		}
		addr, _ := cmd.Flags().GetString("address")
		if addr == "" {
			addr = "test." + name
		}
		operator, err := state.ParseAddress(addr)
		if err != nil {
			fmt.Printf("Invalid address: %s\n", err)
			os.Exit(-1)
		}
		asset, _ := cmd.Flags().GetString("asset")
		scale, _ := cmd.Flags().GetUint8("scale")

		minBalance := int64(0)
		nodeCfg := state.NodeCfg{
			Id:              name,
			OperatorAddress: operator,
			IpcSocket:       filepath.Join(os.TempDir(), "weft-"+name+".sock"),
			Accounts: []state.AccountSettings{
				{
					Id:           "sink",
					Description:  "fulfills every packet",
					AssetCode:    asset,
					AssetScale:   scale,
					Relationship: state.RelationshipChild,
					LinkType:     "loopback",
					Internal:     true,
				},
				{
					Id:           "ping",
					AssetCode:    asset,
					AssetScale:   scale,
					Relationship: state.RelationshipChild,
					LinkType:     "ping",
					Internal:     true,
					Balance:      state.BalanceSettings{MinBalance: &minBalance},
				},
			},
		}

		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			panic(err)
		}

		outPath := cmd.Flag("output").Value.String()
		err = os.WriteFile(outPath, ncfg, 0600)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %s for %s\n", outPath, operator)
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", state.NodeConfigPath, "node config output file path")
	newCmd.Flags().StringP("address", "a", "", "ILP address of the connector, defaults to test.<name>")
	newCmd.Flags().String("asset", "USD", "asset code of the generated accounts")
	newCmd.Flags().Uint8("scale", 2, "asset scale of the generated accounts")
}
