package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rigup/rigup/pkg/config"
)

func newDevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Watch the config file and re-validate on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			path := configPath
			if path == "" {
				path = a.paths.ConfigFile
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config file not found: %s", path)
			}

			return config.Watch(cmd.Context(), path, a.logger, func(cfg *config.Config, err error) {
				if err != nil {
					fmt.Printf("invalid: %v\n", err)
					return
				}
				for _, id := range cfg.Capabilities {
					if _, ok := a.reg.Get(id); !ok {
						fmt.Printf("invalid: unknown capability %s\n", id)
						return
					}
				}
				fmt.Println("valid")
			})
		},
	}
}
