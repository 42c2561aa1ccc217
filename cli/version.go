package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exef-pl/exef/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build and dependency information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetBuildInfo()
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Println(info.MainVersion)
			return
		}
		fmt.Println(string(out))
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
