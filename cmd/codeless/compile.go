package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codeless/pkg/codeless"
)

var compileCmd = &cobra.Command{
	Use:   "compile <selector>...",
	Short: "Print the XPath query each selector compiles to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m := codeless.New(cfg)
		for _, sel := range args {
			q, err := m.Compile(sel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q)
		}
		return nil
	},
}
