// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/config"
	"github.com/xkilldash9x/sendlater/internal/observability"
)

type contextKey string

// configKey stores the validated configuration in the command context.
const configKey contextKey = "config"

// viperKey annotates flags with the configuration key they override.
const viperKey = "sendlater_viper_key"

var cfgFile string

// NewRootCommand builds the command tree. Every call returns an independent tree,
// which keeps flag state from leaking between executions.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "sendlater",
		Short:         "sendlater delivers chat messages at a time of your choosing.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			bindFlags(cmd, v)
			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sendlater"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting sendlater", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.sendlater/config.yaml)")
	root.PersistentFlags().String("log-level", "", "override logger.level")
	overrides(root.PersistentFlags(), "log-level", "logger.level")

	root.AddCommand(
		newDaemonCmd(),
		newRunnerCmd(),
		newScheduleCmd(),
		newListCmd(),
		newCancelCmd(),
		newDispatchCmd(),
		newSendCmd(),
		newProbeCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with the signal-aware ctx.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// overrides marks flag name as overriding the configuration key.
func overrides(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, viperKey, []string{key})
}

// bindFlags binds the annotated flags of the command being executed. Binding only
// the running command keeps commands sharing a key from shadowing each other.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[viperKey]; len(keys) > 0 {
			_ = v.BindPFlag(keys[0], f)
		}
	})
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sendlater")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SENDLATER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
