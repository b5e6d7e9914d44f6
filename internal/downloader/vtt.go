package downloader

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	cueTimeRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})[.,]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}`)
	cueTagRe  = regexp.MustCompile(`<[^>]+>`)
)

// WriteTranscript converts a WebVTT subtitle into a plain text transcript
// with one "[hh:mm:ss] text" line per cue. Repeated lines are dropped.
func WriteTranscript(vttPath, outputPath string) error {
	f, err := os.Open(vttPath)
	if err != nil {
		return err
	}
	defer f.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	scanner := bufio.NewScanner(f)
	var (
		inCue       bool
		lastText    string
		cueStart    string
		lineCount   int
		wroteHeader bool
	)

	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "\ufeff")
		lineCount++

		if lineCount == 1 && strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if match := cueTimeRe.FindStringSubmatch(line); len(match) >= 2 {
			inCue = true
			cueStart = match[1]
			continue
		}
		if strings.TrimSpace(line) == "" {
			inCue = false
			continue
		}
		// cue identifiers and NOTE blocks
		if !inCue {
			continue
		}

		text := strings.TrimSpace(cueTagRe.ReplaceAllString(line, ""))
		if text == "" || text == lastText {
			continue
		}
		if !wroteHeader {
			fmt.Fprintf(w, "TRANSCRIPT\n")
			fmt.Fprintf(w, "==========\n\n")
			wroteHeader = true
		}
		fmt.Fprintf(w, "[%s] %s\n", cueStart, text)
		lastText = text
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return out.Close()
}
