package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/keanucz/maktabdl/internal/config"
	"github.com/keanucz/maktabdl/internal/logging"
	"github.com/keanucz/maktabdl/internal/version"
)

var (
	verboseFlag bool
	outputFlag  string
	cookiesFlag string
	envFileFlag string
)

// Logger is the global logger instance.
var Logger *log.Logger

// Config is the loaded configuration with flag overrides applied.
var Config *config.Config

var rootCmd = &cobra.Command{
	Use:     "maktabdl",
	Short:   "Download Maktabkhooneh courses",
	Long:    fmt.Sprintf("maktabdl %s\n\nCrawl, enroll in and download Maktabkhooneh courses.", version.Short()),
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFileFlag)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir = outputFlag
		}
		if cmd.Flags().Changed("cookies") {
			cfg.CookiesPath = cookiesFlag
		}
		if verboseFlag {
			cfg.Verbose = true
		}
		Config = cfg
		Logger = logging.New(os.Stderr, cfg.Verbose)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command. Interrupts cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("maktabdl %s\n", version.Short()))

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose debug output")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", ".", "Directory courses are downloaded into")
	rootCmd.PersistentFlags().StringVarP(&cookiesFlag, "cookies", "c", config.DefaultCookiesPath(), "Path to the cookies file")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Optional dotenv file with MAKTABDL_* settings")
}
