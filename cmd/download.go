package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/downloader"
	"github.com/keanucz/maktabdl/internal/transport"
	"github.com/keanucz/maktabdl/internal/version"
)

// coursePause separates courses of a batch.
const coursePause = 2 * time.Second

var (
	urlFileFlag    string
	noEnrollFlag   bool
	extractFlag    bool
	transcriptFlag bool
	linksFlag      bool
	noProgressFlag bool
	strictFlag     bool
)

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&urlFileFlag, "file", "f", "", "Path to a text file containing course URLs (one per line)")
	downloadCmd.Flags().BoolVar(&noEnrollFlag, "no-enroll", false, "Do not enroll in the course before downloading")
	downloadCmd.Flags().BoolVar(&extractFlag, "extract", false, "Extract downloaded .zip and .7z files")
	downloadCmd.Flags().BoolVar(&transcriptFlag, "transcript", false, "Write a plain-text transcript next to each subtitle")
	downloadCmd.Flags().BoolVar(&linksFlag, "links", false, "Also save the course links file (always on with --file)")
	downloadCmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Hide transfer progress bars")
	downloadCmd.Flags().BoolVar(&strictFlag, "strict", false, "Exit with an error when any course fails")
}

// formatBytes converts bytes to human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var downloadCmd = &cobra.Command{
	Use:   "download [course-urls...]",
	Short: "Download one or more courses",
	Long: `Download one or more Maktabkhooneh courses.

For every course the chapters and units are crawled, the account is enrolled,
and each unit's video, subtitle, attachment and page content is downloaded
into {output}/{course}/{chapter}/. Progress is tracked in
{course}_download_log.xlsx; re-running skips files that are already complete.

URLs can be provided:
  - As command line arguments (space-separated)
  - From a text file using --file/-f (one URL per line, # for comments)
  - Or both combined

Examples:
  maktabdl download https://maktabkhooneh.org/course/python-mk1234/
  maktabdl download -o ~/courses python-mk1234 golang-mk99
  maktabdl download -f courses.txt --extract`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := make([]string, 0)
		urls = append(urls, args...)
		if urlFileFlag != "" {
			fileURLs, err := readURLsFromFile(urlFileFlag)
			if err != nil {
				return fmt.Errorf("failed to read URLs from file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs provided. Specify URLs as arguments or use --file/-f")
		}
		urls = deduplicateURLs(urls)

		fmt.Println()
		fmt.Println("╭──────────────────────────────────────╮")
		fmt.Printf("│  🎓 maktabdl %-24s│\n", version.Version)
		fmt.Println("╰──────────────────────────────────────╯")
		fmt.Println()

		ctx := cmd.Context()
		client, err := authenticatedClient(ctx, Config)
		if err != nil {
			return err
		}
		resolver := course.NewResolver(client, Config.BaseURL, Logger)

		opts := downloader.Options{
			OutputDir:  Config.OutputDir,
			Log:        Logger,
			Extract:    extractFlag,
			Transcript: transcriptFlag,
		}
		var bars *progressBars
		if !noProgressFlag {
			bars = &progressBars{}
			opts.OnProgress = bars.update
		}
		dl := downloader.New(client, opts)
		writeLinks := linksFlag || urlFileFlag != ""

		Logger.Info("starting batch download", "count", len(urls))

		var (
			summaries  []downloader.Summary
			failedURLs []string
		)
		for i, rawURL := range urls {
			if i > 0 {
				if err := transport.Sleep(ctx, coursePause); err != nil {
					return err
				}
			}
			Logger.Info(fmt.Sprintf("processing course %d/%d", i+1, len(urls)), "url", rawURL)

			sum, err := downloadCourse(ctx, cmd, resolver, dl, rawURL, writeLinks)
			if bars != nil {
				bars.finish()
			}
			if err != nil {
				Logger.Error("failed to download course", "url", rawURL, "error", err)
				failedURLs = append(failedURLs, rawURL)
				if ctx.Err() != nil {
					break
				}
				continue
			}
			summaries = append(summaries, sum)
			fmt.Fprintf(cmd.OutOrStdout(), "\n\033[32m✓\033[0m Saved course \"%s\" to %s\n", sum.Course, filepath.Dir(sum.LedgerPath))
		}

		printSummary(cmd, summaries, failedURLs)
		return batchResult(ctx, failedURLs, strictFlag)
	},
}

func downloadCourse(ctx context.Context, cmd *cobra.Command, resolver *course.Resolver, dl *downloader.Downloader, rawURL string, writeLinks bool) (downloader.Summary, error) {
	info, err := resolver.Resolve(ctx, rawURL)
	if err != nil {
		return downloader.Summary{}, err
	}
	if !noEnrollFlag {
		if _, err := resolver.Enroll(ctx, info.Link); err != nil {
			Logger.Warn("enrollment failed, continuing", "url", info.Link, "error", err)
		}
	}

	sum, err := dl.DownloadCourse(ctx, info)
	if err != nil {
		return sum, err
	}
	if writeLinks {
		path, err := saveLinks(cmd, dl, info)
		if err != nil {
			Logger.Warn("could not save links", "error", err)
		} else {
			Logger.Info("links saved", "path", path)
		}
	}
	return sum, nil
}

// batchResult is the command's result once every course was attempted.
// Failed courses are only an error in strict mode; an interrupted batch
// always is.
func batchResult(ctx context.Context, failedURLs []string, strict bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strict && len(failedURLs) > 0 {
		return fmt.Errorf("%d course(s) failed", len(failedURLs))
	}
	return nil
}

func printSummary(cmd *cobra.Command, summaries []downloader.Summary, failedURLs []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, s := range summaries {
		failColor := "\033[0m"
		if s.Failed > 0 {
			failColor = "\033[31m"
		}
		fmt.Fprintf(out, "%s: \033[32m%d downloaded\033[0m, %d existing, %d without content, %s%d failed\033[0m (%s)\n",
			s.Course, s.Downloaded, s.Existing, s.NoContent, failColor, s.Failed, formatBytes(s.Bytes))
		for _, f := range s.Failures {
			fmt.Fprintf(out, "  \033[31m✗\033[0m %s: %v\n", f.Title, f.Err)
		}
	}
	if len(failedURLs) > 0 {
		fmt.Fprintf(out, "\nFailed courses:\n")
		for _, u := range failedURLs {
			fmt.Fprintf(out, "  \033[31m✗\033[0m %s\n", u)
		}
	}
}

// progressBars renders one byte progress bar per file being streamed.
type progressBars struct {
	mu   sync.Mutex
	path string
	bar  *progressbar.ProgressBar
}

func (p *progressBars) update(path string, written, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if path != p.path || p.bar == nil {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		size := total
		if size <= 0 {
			size = -1
		}
		p.path = path
		p.bar = progressbar.NewOptions64(
			size,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(truncate(filepath.Base(path), 30)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set64(written)
}

func (p *progressBars) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
		p.path = ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// readURLsFromFile reads URLs from a text file, one per line
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

// deduplicateURLs removes duplicate URLs while preserving order
func deduplicateURLs(urls []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(urls))
	for _, url := range urls {
		if !seen[url] {
			seen[url] = true
			result = append(result, url)
		}
	}
	return result
}
