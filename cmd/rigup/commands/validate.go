package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/policy"
	"github.com/rigup/rigup/pkg/registry"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate the configuration, the capability registry, and the policies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = config.ResolvePaths(home).ConfigFile
			}

			cfg := config.Default()
			if _, err := os.Stat(path); err == nil {
				cfg, err = config.NewParser().Load(path)
				if err != nil {
					return err
				}
				fmt.Printf("config %s: ok\n", path)
			} else {
				fmt.Printf("config %s: not found, using defaults\n", path)
			}

			reg, err := registry.Default()
			if err != nil {
				return err
			}
			fmt.Printf("registry: ok (%d capabilities)\n", len(reg.All()))

			for _, id := range cfg.Capabilities {
				if _, ok := reg.Get(id); !ok {
					return fmt.Errorf("unknown capability in config: %s", id)
				}
			}

			if _, err := policy.NewEngine(zerolog.Nop()); err != nil {
				return err
			}
			fmt.Println("policies: ok")
			return nil
		},
	}
}
