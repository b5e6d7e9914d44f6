package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/keanucz/maktabdl/internal/version"
)

var (
	versionShortFlag bool
	versionJSONFlag  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long: `Print the maktabdl build: version, commit, build date, Go version and
platform, followed by the site the session talks to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		site := ""
		if Config != nil {
			site = Config.BaseURL
		}
		return printVersion(cmd.OutOrStdout(), site, versionShortFlag, versionJSONFlag)
	},
}

func printVersion(out io.Writer, site string, short, asJSON bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			version.Build
			Site string `json:"site,omitempty"`
		}{version.Current(), site})
	case short:
		_, err := fmt.Fprintln(out, version.Short())
		return err
	}
	if _, err := fmt.Fprintln(out, version.Info()); err != nil {
		return err
	}
	if site != "" {
		_, err := fmt.Fprintf(out, "Site:       %s\n", site)
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShortFlag, "short", false, "Print only the version and commit")
	versionCmd.Flags().BoolVar(&versionJSONFlag, "json", false, "Print the build information as JSON")
}
