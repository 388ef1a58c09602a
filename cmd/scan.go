package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/shelfscan/internal/scan"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID   string
		jsonOutput  bool
		summaryYAML string
	)

	cmd := &cobra.Command{
		Use:   "scan IMAGE",
		Short: "Scan a photo of books and add them to your library",
		Example: `  # Scan a shelf photo with the configured provider
  shelfscan scan shelf.jpg

  # Stream raw events and keep a YAML summary
  shelfscan scan shelf.jpg --json --summary-yaml summary.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			events, err := a.orchestrator.StartScan(cmd.Context(), sessionID, data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var (
				summary *scan.Summary
				failure *scan.Failure
			)
			enc := json.NewEncoder(out)
			for event := range events {
				if jsonOutput {
					if err := enc.Encode(event); err != nil {
						return err
					}
				} else {
					printEvent(out, event)
				}
				switch event.Type {
				case scan.EventSummary:
					summary = event.Summary
				case scan.EventScanFailed:
					failure = event.Failure
				}
			}

			if summaryYAML != "" && summary != nil {
				if err := writeSummaryYAML(summaryYAML, summary); err != nil {
					return err
				}
			}
			if failure != nil {
				return errors.New(failure.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "cli", "Session the scan belongs to")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print events as newline-delimited JSON")
	cmd.Flags().StringVar(&summaryYAML, "summary-yaml", "", "Write the scan summary to this YAML file")

	return cmd
}

func printEvent(w io.Writer, e scan.Event) {
	switch e.Type {
	case scan.EventStatus:
		switch e.State {
		case scan.StateInFlight:
			fmt.Fprintf(w, "Looking for books (attempt %d)...\n", e.Attempt)
		case scan.StateRetrying:
			fmt.Fprintf(w, "Attempt %d failed, retrying...\n", e.Attempt)
		case scan.StateEnriching:
			fmt.Fprintln(w, "Adding books to your library...")
		}
	case scan.EventBookEnriched:
		b := e.Book
		if b.Author != "" {
			fmt.Fprintf(w, "  + %s by %s (%s)\n", b.Title, b.Author, b.AgeRating)
		} else {
			fmt.Fprintf(w, "  + %s (%s)\n", b.Title, b.AgeRating)
		}
	case scan.EventBookFailed:
		fmt.Fprintf(w, "  ! %s\n", e.Failure.Message)
	case scan.EventScanFailed:
		fmt.Fprintf(w, "Scan failed: %s\n", e.Failure.Message)
		if e.Failure.Retryable {
			fmt.Fprintln(w, "Running the scan again may help.")
		}
	case scan.EventSummary:
		if e.Summary.Narrative != "" {
			fmt.Fprintln(w, e.Summary.Narrative)
		}
	}
}

func writeSummaryYAML(path string, s *scan.Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
