package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashureev/chatrelay/internal/config"
)

// cli carries state shared by subcommands.
type cli struct {
	v          *viper.Viper
	envFile    string
	envMissing bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Relay addressed group chat messages to an LLM and back",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.String("log-format", "", "log format: json or text (overrides LOG_FORMAT)")

	root.AddCommand(newServeCmd(c), newHistoryCmd(c), newVersionCmd())
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if err := godotenv.Load(c.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		c.envMissing = true
	}

	c.v = config.NewViper()
	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{"LOG_LEVEL": "log-level", "LOG_FORMAT": "log-format"} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := c.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// logEnvSource reports where configuration came from once logging is set up.
func (c *cli) logEnvSource(logger *slog.Logger) {
	if c.envMissing {
		logger.Info("No .env file found, using environment variables", "env_file", c.envFile)
		return
	}
	logger.Info("Loaded environment file", "env_file", c.envFile)
}
