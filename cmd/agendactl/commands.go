package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/clinicapi"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const commandHelp = `  list      [-filter all|today|<status>] [-date YYYY-MM-DD] [-q text]
  today     today's appointments as the backend reports them
  stats     aggregate counters
  status    last spreadsheet sync
  overview  stats, today and sync status in one call
  sync      import the spreadsheet now
  confirm   <id>
  cancel    <id>
`

var errUsage = errors.New("usage")

// API is everything the CLI needs from the backend client.
type API interface {
	agenda.Backend
	agenda.SyncAPI
	GetAppointmentStats(ctx context.Context) (*appointments.Stats, error)
	GetTodayAppointments(ctx context.Context) ([]appointments.Record, error)
}

type cli struct {
	api      API
	out      io.Writer
	json     bool
	location *time.Location
	settle   time.Duration
	logger   *logging.Logger
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "list":
		return c.list(ctx, args)
	case "today":
		return c.today(ctx)
	case "stats":
		return c.stats(ctx)
	case "status":
		return c.status(ctx)
	case "overview":
		return c.overview(ctx)
	case "sync":
		return c.sync(ctx)
	case "confirm":
		return c.transition(ctx, args, agenda.ActionConfirm)
	case "cancel":
		return c.transition(ctx, args, agenda.ActionCancel)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func (c *cli) board() *agenda.Board {
	return agenda.NewBoard(agenda.BoardConfig{API: c.api, Logger: c.logger, Location: c.location})
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	filter := fs.String("filter", "all", "all, today, or a status")
	date := fs.String("date", "", "day for -filter today (YYYY-MM-DD, default today)")
	search := fs.String("q", "", "search patient, treatment, doctor or patient number")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	key, err := appointments.ParseFilterKey(*filter)
	if err != nil {
		// Accept the spreadsheet's wording too, e.g. "confirmada".
		status, ok := appointments.LookupStatus(*filter)
		if !ok {
			return err
		}
		key = appointments.FilterKey(status)
	}
	selected := time.Now().In(c.location)
	if *date != "" {
		selected, err = time.ParseInLocation("2006-01-02", *date, c.location)
		if err != nil {
			return fmt.Errorf("-date must be YYYY-MM-DD: %w", err)
		}
	}

	board := c.board()
	defer board.Close()
	board.SetCriteria(appointments.Criteria{StatusFilter: key, SelectedDate: selected, SearchTerm: *search})
	if err := board.Refresh(ctx); err != nil {
		return errors.New(clinicapi.ErrorMessage(err, "could not fetch appointments"))
	}
	snap := board.Snapshot()
	if c.json {
		return c.printJSON(snap)
	}
	c.printAppointments(snap.Appointments)
	t := snap.Summary
	fmt.Fprintf(c.out, "\n%d shown of %d loaded: %d pending, %d confirmed, %d completed, %d cancelled, %d rescheduled\n",
		len(snap.Appointments), t.Total, t.Pending, t.Confirmed, t.Completed, t.Cancelled, t.Rescheduled)
	return nil
}

func (c *cli) today(ctx context.Context) error {
	records, err := c.api.GetTodayAppointments(ctx)
	if err != nil {
		return err
	}
	views := viewsOf(records)
	if c.json {
		return c.printJSON(views)
	}
	c.printAppointments(views)
	return nil
}

func (c *cli) stats(ctx context.Context) error {
	stats, err := c.api.GetAppointmentStats(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(stats)
	}
	c.printStats(stats)
	return nil
}

func (c *cli) status(ctx context.Context) error {
	status, err := c.api.GetSyncStatus(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(status)
	}
	c.printSyncStatus(status)
	return nil
}

// overview fetches the three dashboard panels concurrently.
func (c *cli) overview(ctx context.Context) error {
	var (
		stats  *appointments.Stats
		today  []appointments.Record
		status *appointments.SyncStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = c.api.GetAppointmentStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = c.api.GetTodayAppointments(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		status, err = c.api.GetSyncStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	views := viewsOf(today)
	if c.json {
		return c.printJSON(map[string]any{"stats": stats, "today": views, "sync": status})
	}
	c.printStats(stats)
	fmt.Fprintln(c.out)
	c.printSyncStatus(status)
	fmt.Fprintln(c.out)
	c.printAppointments(views)
	return nil
}

func (c *cli) sync(ctx context.Context) error {
	ctrl, err := agenda.NewSyncController(agenda.SyncConfig{API: c.api, SettleDelay: c.settle, Logger: c.logger})
	if err != nil {
		return err
	}
	result, err := ctrl.Sync(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(result)
	}
	if !result.Success {
		return fmt.Errorf("sync reported failure: %s", result.Message)
	}
	fmt.Fprintf(c.out, "%s (%d appointments)\n", result.Message, result.Synced)
	return nil
}

func (c *cli) transition(ctx context.Context, args []string, action agenda.Action) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: %s needs exactly one appointment id", errUsage, action)
	}
	board := c.board()
	defer board.Close()
	if err := board.Refresh(ctx); err != nil {
		return errors.New(clinicapi.ErrorMessage(err, "could not fetch appointments"))
	}
	rec, err := board.Transition(ctx, args[0], action)
	if err != nil {
		return errors.New(clinicapi.ErrorMessage(err, "could not update appointment"))
	}
	if c.json {
		return c.printJSON(agenda.NewAppointmentView(*rec))
	}
	fmt.Fprintf(c.out, "%s %s %s: %s\n", rec.DisplayName(), rec.Date, rec.Time, rec.DisplayStatus())
	return nil
}

func viewsOf(records []appointments.Record) []agenda.AppointmentView {
	sorted := appointments.Apply(records, appointments.Criteria{StatusFilter: appointments.FilterAll})
	views := make([]agenda.AppointmentView, 0, len(sorted))
	for _, rec := range sorted {
		views = append(views, agenda.NewAppointmentView(rec))
	}
	return views
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printAppointments(views []agenda.AppointmentView) {
	if len(views) == 0 {
		fmt.Fprintln(c.out, "No appointments.")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tPATIENT\tTREATMENT\tDOCTOR\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Date, v.Time, v.DisplayName, v.Treatment, v.Doctor, v.DisplayStatus)
	}
	_ = tw.Flush()
}

func (c *cli) printStats(s *appointments.Stats) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	fmt.Fprintf(tw, "Today\t%d\n", s.Today)
	fmt.Fprintf(tw, "Pending\t%d\n", s.Pending)
	fmt.Fprintf(tw, "Confirmed\t%d\n", s.Confirmed)
	fmt.Fprintf(tw, "Completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "Cancelled\t%d\n", s.Cancelled)
	_ = tw.Flush()
}

func (c *cli) printSyncStatus(s *appointments.SyncStatus) {
	fmt.Fprintf(c.out, "Last sync: %s\n", s.Display(c.location))
	if s.AutoSyncActive {
		fmt.Fprintf(c.out, "Auto sync: every %d min\n", s.SyncIntervalMinutes)
	}
}
