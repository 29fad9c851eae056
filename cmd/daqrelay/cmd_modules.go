package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/daqrelay/internal/registry"
)

func init() {
	rootCmd.AddCommand(modulesCmd)
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules the configuration declares",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reg := registry.Parse(cfg.Modules, slog.Default())

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tCHANNELS\tDESCRIPTION")
		for _, mod := range reg.Descriptors() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				mod.Name, mod.Type, len(mod.Channels), mod.Description)
		}
		return w.Flush()
	},
}
