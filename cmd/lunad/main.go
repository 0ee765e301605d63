package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"luna-backend/config"
)

var logger = log.New(os.Stdout, "lunad ", log.LstdFlags)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lunad",
		Short:         "Backend for the LUNA library book-delivery robot",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to the YAML configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the request lifecycle engine",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "import-books <catalog.yaml>",
			Short: "Insert or refresh catalog entries from a YAML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(cmd.Context(), configPath, args[0])
			},
		},
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Printf("configuration loaded successfully from %s", path)
	return cfg, nil
}
