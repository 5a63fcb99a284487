package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ternarybob/pulse/internal/app"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/newsletter"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func runNewsletter(ctx context.Context, a *app.App, args []string) error {
	if err := a.RequirePrices(); err != nil {
		return err
	}

	var (
		report *newsletter.RunReport
		err    error
	)
	if len(args) > 0 {
		report, err = a.NewsletterService.RunUser(ctx, args[0])
	} else {
		report, err = a.NewsletterService.RunAll(ctx)
	}
	if report != nil {
		if printErr := printRunReport(os.Stdout, report); printErr != nil && err == nil {
			err = printErr
		}
	}
	if err != nil {
		return err
	}
	if failed := report.Count(newsletter.StatusFailed); failed > 0 {
		return fmt.Errorf("%d of %d newsletters failed", failed, len(report.Users))
	}
	return nil
}

func printRunReport(out io.Writer, report *newsletter.RunReport) error {
	w := newTable(out)
	fmt.Fprintln(w, "USER\tSTATUS\tWEEK\tYTD\tRECIPIENTS\tREASON")
	for _, u := range report.Users {
		fmt.Fprintf(w, "%s\t%s\t%+.2f%%\t%+.2f%%\t%s\t%s\n",
			u.UserID, u.Status, u.WeeklyPct, u.YTDPct, strings.Join(u.Recipients, ","), u.Reason)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nrun %s: %d sent, %d skipped, %d failed, %d dry run in %s\n",
		report.RunID,
		report.Count(newsletter.StatusSent),
		report.Count(newsletter.StatusSkipped),
		report.Count(newsletter.StatusFailed),
		report.Count(newsletter.StatusDryRun),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	for _, u := range report.Users {
		for _, path := range u.Files {
			fmt.Fprintf(out, "  wrote %s\n", path)
		}
	}
	return nil
}

func runSchedule(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	now := fs.Bool("now", false, "Run once immediately before waiting for the schedule")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.RegisterNewsletterJob(ctx); err != nil {
		return err
	}
	if err := a.SchedulerService.Start(); err != nil {
		return err
	}

	if *now {
		if err := a.SchedulerService.TriggerNow(app.NewsletterJob); err != nil {
			a.Logger.Warn().Err(err).Msg("Immediate newsletter run failed")
		}
	}

	if status, err := a.SchedulerService.GetJobStatus(app.NewsletterJob); err == nil && status.NextRun != nil {
		a.Logger.Info().
			Str("schedule", status.Schedule).
			Str("next_run", status.NextRun.Format(time.RFC3339)).
			Msg("Scheduler ready - Press Ctrl+C to stop")
	}

	<-ctx.Done()
	a.Logger.Info().Msg("Interrupt signal received")
	return nil
}

func runPrices(ctx context.Context, a *app.App, args []string) error {
	if err := a.RequirePrices(); err != nil {
		return err
	}
	tickers := common.CleanTickers(args)
	if len(tickers) == 0 {
		return errors.New("usage: pulse prices <ticker>...")
	}

	quotes := a.PortfolioService.GetCurrentPrices(ctx, tickers)

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "TICKER\tNAME\tPRICE\tDATE\tSOURCE\tERROR")
	for _, ticker := range tickers {
		q := quotes[ticker]
		price := "n/a"
		if q.HasPrice() {
			price = fmt.Sprintf("%.2f", *q.CurrentPrice)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", ticker, q.DisplayName, price, q.Date, q.Source, q.Error)
	}
	return w.Flush()
}

func runPerformance(ctx context.Context, a *app.App, args []string) error {
	if err := a.RequirePrices(); err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("usage: pulse performance <weekly|mtd|ytd> <user|ticker>...")
	}
	period := strings.ToLower(args[0])

	var holdings models.Holdings
	tickers := common.CleanTickers(args[1:])
	if len(args) == 2 {
		stored, err := a.StorageManager.HoldingsStorage().LoadHoldings(ctx, args[1])
		switch {
		case err == nil:
			holdings = stored.Holdings
			tickers = holdings.Tickers()
		case !errors.Is(err, interfaces.ErrHoldingsNotFound):
			return err
		}
	}

	report, err := a.PortfolioService.GetPeriodReport(ctx, tickers, period, holdings)
	if err != nil {
		return err
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "TICKER\tSTART\tEND\tCHANGE\tERROR")
	for _, ticker := range tickers {
		result, ok := report.Results[ticker]
		switch {
		case !ok:
			continue
		case result.OK():
			r := result.Record
			fmt.Fprintf(w, "%s\t%s %.2f\t%s %.2f\t%+.2f%%\t\n",
				ticker, r.FirstDate, r.FirstClose, r.LastDate, r.LastClose, r.PctChange)
		default:
			fmt.Fprintf(w, "%s\t\t\t\t%s: %s\n", ticker, result.Failure.Kind, result.Failure.Message)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	perf := report.Performance
	fmt.Printf("\n%s: %+.2f%% (weighted: %t), success rate %.2f%%, movers: %s\n",
		period, perf.OverallChangePct, perf.Weighted, perf.SuccessRatePct, strings.Join(perf.MajorMovers, ", "))
	return nil
}

func runValidate(ctx context.Context, a *app.App, args []string) error {
	if err := a.RequirePrices(); err != nil {
		return err
	}
	tickers := common.CleanTickers(args)
	if len(tickers) == 0 {
		return errors.New("usage: pulse validate <ticker>...")
	}

	valid := make(map[string]bool)
	for _, ticker := range a.PortfolioService.ValidateTickers(ctx, tickers) {
		valid[ticker] = true
	}

	var invalid []string
	for _, ticker := range tickers {
		if valid[ticker] {
			fmt.Printf("%s\tok\n", ticker)
		} else {
			fmt.Printf("%s\tinvalid\n", ticker)
			invalid = append(invalid, ticker)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d invalid tickers: %s", len(invalid), strings.Join(invalid, ", "))
	}
	return nil
}

func runImport(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: pulse import <file> [user]")
	}
	userID := ""
	if len(args) > 1 {
		userID = args[1]
	}

	byUser, err := a.Importer.ImportFile(ctx, args[0], userID)
	if err != nil {
		return err
	}

	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		fmt.Printf("%s: %d holdings (%s)\n", user, len(byUser[user]), strings.Join(byUser[user].Tickers(), ", "))
	}
	return nil
}

func runUsers(ctx context.Context, a *app.App, args []string) error {
	storage := a.StorageManager.HoldingsStorage()

	if len(args) > 0 {
		if args[0] != "delete" || len(args) != 2 {
			return errors.New("usage: pulse users [delete <user>]")
		}
		if err := storage.DeleteUser(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[1])
		return nil
	}

	users, err := storage.ListAllUsers(ctx)
	if err != nil {
		return err
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "USER\tHOLDINGS\tUPDATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.UserID, strings.Join(u.Holdings.Tickers(), ","), u.LastUpdated.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runKeys(ctx context.Context, a *app.App, args []string) error {
	if len(args) > 0 {
		switch {
		case args[0] == "set" && (len(args) == 3 || len(args) == 4):
			description := ""
			if len(args) == 4 {
				description = args[3]
			}
			return a.KVService.Set(ctx, args[1], args[2], description)
		case args[0] == "delete" && len(args) == 2:
			return a.KVService.Delete(ctx, args[1])
		default:
			return errors.New("usage: pulse keys [set <key> <value> [description]|delete <key>]")
		}
	}

	pairs, err := a.KVService.List(ctx)
	if err != nil {
		return err
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "KEY\tVALUE\tDESCRIPTION")
	for _, p := range pairs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key, p.Value, p.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	missing, err := a.KVService.Missing(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		fmt.Printf("\nnot stored (environment or config may still provide them): %s\n", strings.Join(missing, ", "))
	}
	return nil
}
