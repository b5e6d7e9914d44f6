package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/downloader"
	"github.com/keanucz/maktabdl/internal/layout"
	"github.com/keanucz/maktabdl/internal/report"
)

var crawlJSONFlag bool

var crawlCmd = &cobra.Command{
	Use:   "crawl <course-url>",
	Short: "Show the chapters and units of a course",
	Example: `  maktabdl crawl https://maktabkhooneh.org/course/python-mk1234/
  maktabdl crawl python-mk1234 --json > course.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient(Config)
		if err != nil {
			return err
		}
		info, err := course.NewResolver(client, Config.BaseURL, Logger).Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if crawlJSONFlag {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "%s\n%s\n\n", info.Course.Title, info.Link)
		for ci, ch := range info.Chapters.Chapters {
			fmt.Fprintf(out, "%d. %s\n", ci+1, ch.Title)
			for ui, u := range ch.Units {
				extra := ""
				if u.Attachment {
					extra = " [attachment]"
				}
				fmt.Fprintf(out, "   %d.%d %s (%s)%s\n", ci+1, ui+1, u.Title, u.Type, extra)
			}
		}
		return nil
	},
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <course-url>...",
	Short: "Enroll the logged in account in one or more courses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authenticatedClient(cmd.Context(), Config)
		if err != nil {
			return err
		}
		resolver := course.NewResolver(client, Config.BaseURL, Logger)
		var failed int
		for _, raw := range args {
			c, err := resolver.Enroll(cmd.Context(), raw)
			if err != nil {
				Logger.Error("failed to enroll", "url", raw, "error", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m Enrolled in %q\n", c.Title)
		}
		if failed > 0 {
			return fmt.Errorf("%d enrollment(s) failed", failed)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <course-url>",
	Short: "Export course information to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient(Config)
		if err != nil {
			return err
		}
		info, err := course.NewResolver(client, Config.BaseURL, Logger).Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		path := layout.Planner{Root: Config.OutputDir}.ReportPath(info.Course.Title)
		if err := report.ExportCourse(path, info); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Course information exported to: %s\n", path)
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <course-url>",
	Short: "Save every download link of a course to a text file",
	Long: `Fetch every unit page of a course and save its video, subtitle, attachment and
archive links to {course}_links.txt, one URL per line, for use with an external
download manager.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authenticatedClient(cmd.Context(), Config)
		if err != nil {
			return err
		}
		info, err := course.NewResolver(client, Config.BaseURL, Logger).Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		dl := downloader.New(client, downloader.Options{OutputDir: Config.OutputDir, Log: Logger})
		path, err := saveLinks(cmd, dl, info)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Download links saved to: %s\n", path)
		return nil
	},
}

func saveLinks(cmd *cobra.Command, dl *downloader.Downloader, info *course.Info) (string, error) {
	units, err := dl.CollectLinks(cmd.Context(), info)
	if err != nil {
		return "", err
	}
	path := dl.Planner().LinksPath(info.Course.Title)
	return path, report.SaveLinks(path, info, units)
}

func init() {
	rootCmd.AddCommand(crawlCmd, enrollCmd, exportCmd, linksCmd)
	crawlCmd.Flags().BoolVar(&crawlJSONFlag, "json", false, "Print the course tree as JSON")
}
