package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeless/internal/config"
)

var (
	configFile string
	settings   = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:           "codeless",
	Short:         "Bind YAML or JSON data onto HTML templates by selector",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			settings.SetConfigFile(configFile)
			if err := settings.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config %s: %w", configFile, err)
			}
		}
		log.SetLevel(config.Config{LogLevel: settings.GetString("log_level")}.Level())
		log.SetOutput(os.Stderr)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (YAML, JSON or TOML)")
	flags.String("dialect", "", "Default selector dialect (css, xpath)")
	flags.Bool("format", true, "Indent duplicated nodes like their originals")
	flags.Bool("reparse", false, "Run a second pass over inserted markup")
	flags.String("repeat-x", "", "Repeat flags for the x axis")
	flags.String("repeat-y", "", "Repeat flags for the y axis")
	flags.String("on-empty", "", "Blank content policy (do_nothing, clear, set_flag, clear_and_set_flag, no_render)")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")

	bind(settings, map[string]string{
		"selector_dialect":    "dialect",
		"format_html":         "format",
		"parse_inserted_data": "reparse",
		"repeat_fn_x":         "repeat-x",
		"repeat_fn_y":         "repeat-y",
		"on_content_empty":    "on-empty",
		"log_level":           "log-level",
	})

	rootCmd.AddCommand(renderCmd, compileCmd)
}

// bind maps config keys onto persistent flags; a flag only wins when it was set
func bind(v *viper.Viper, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func loadConfig() (config.Config, error) {
	return config.FromViper(settings)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
