package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"trackpoint/models"
	"trackpoint/store"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

var csvColumns = []string{
	"eventId", "eventName", "eventType", "timestamp", "serverTime", "userId", "deviceId",
	"sessionId", "platform", "appId", "appVersion", "sdkVersion", "pageUrl", "pageTitle",
	"referrer", "properties",
}

type exportOptions struct {
	filter store.EventFilter
	format string
	output string
}

func newExportCommand(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	var eventType string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "json" && opts.format != "csv" {
				return fmt.Errorf("unsupported format %q (json|csv)", opts.format)
			}
			opts.filter.EventType = models.EventType(eventType)
			if eventType != "" && !opts.filter.EventType.Valid() {
				return fmt.Errorf("unknown event type %q", eventType)
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg.DB)
			if err != nil {
				return err
			}
			defer s.Close()
			return runExport(cmd.Context(), s, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.filter.StartDate, "from", "", "first day to export (YYYY-MM-DD)")
	f.StringVar(&opts.filter.EndDate, "to", "", "last day to export (YYYY-MM-DD)")
	f.StringVar(&opts.filter.EventName, "event-name", "", "only events with this name")
	f.StringVar(&eventType, "event-type", "", "only events of this type")
	f.StringVar(&opts.filter.AppID, "app-id", "", "only events of this app")
	f.IntVar(&opts.filter.Limit, "limit", 0, "maximum number of events (0 = all)")
	f.StringVar(&opts.format, "format", "json", "output format: json|csv")
	f.StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// EventQuerier is the part of the store the export reads from.
type EventQuerier interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error)
}

func runExport(ctx context.Context, q EventQuerier, opts *exportOptions, stdout, stderr io.Writer) error {
	events, err := q.QueryEvents(ctx, opts.filter)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(stderr, "No events found matching the criteria.")
		return nil
	}

	if opts.output == "" {
		return writeEvents(stdout, events, opts.format)
	}

	if err := os.MkdirAll(filepath.Dir(opts.output), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := writeEvents(f, events, opts.format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	log.Debug().Str("file", opts.output).Int("events", len(events)).Msg("export: written")
	fmt.Fprintf(stderr, "Exported %d events to %s\n", len(events), opts.output)
	return nil
}

func writeEvents(w io.Writer, events []models.Event, format string) error {
	if format == "csv" {
		return writeCSV(w, events)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, events []models.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range events {
		row, err := csvRow(&events[i])
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(e *models.Event) ([]string, error) {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties of %s: %w", e.EventID, err)
	}
	return []string{
		e.EventID,
		e.EventName,
		string(e.EventType),
		isoTime(e.Timestamp),
		isoTime(e.ServerTime),
		deref(e.UserID),
		e.DeviceID,
		e.SessionID,
		string(e.Platform),
		e.AppID,
		e.AppVersion,
		e.SDKVersion,
		deref(e.PageURL),
		deref(e.PageTitle),
		deref(e.Referrer),
		string(props),
	}, nil
}

func isoTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(isoMillis)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
