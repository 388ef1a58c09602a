package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/logging"
)

type rootOptions struct {
	cfgFile string
	verbose bool
	cfg     *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shelfscan",
		Short: "Add books to your library from a photo of your shelf",
		Long: `Shelfscan sends a photo of books to a vision LLM, filters out books you
already own, and adds the rest to your library with a cover and age rating.

Providers are configured with GEMINI_API_KEY, OPENAI_API_KEY, or OLLAMA_URL.
Other settings come from shelfscan.yaml or SHELFSCAN_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.verbose {
				level = "debug"
			}
			logging.Setup(level)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "Config file (default ./shelfscan.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newLibraryCmd(opts))

	return cmd
}
