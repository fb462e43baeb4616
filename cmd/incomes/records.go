package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"incomes/internal/cli"
	"incomes/internal/core"
	"incomes/internal/ingest"
	"incomes/internal/report"
	"incomes/internal/storage"
)

// filterFlags binds the record filter shared by export and summary.
type filterFlags struct {
	company, name, from, to string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.company, "company", "", "only records of this company")
	cmd.Flags().StringVar(&f.name, "name", "", "only records with this name")
	cmd.Flags().StringVar(&f.from, "from", "", "earliest date, inclusive")
	cmd.Flags().StringVar(&f.to, "to", "", "latest date, inclusive")
}

func (f *filterFlags) filter() (storage.Filter, error) {
	out := storage.Filter{Company: strings.TrimSpace(f.company), Name: strings.TrimSpace(f.name)}
	for _, p := range []struct {
		flag, value string
		dst         *core.Date
	}{{"from", f.from, &out.From}, {"to", f.to, &out.To}} {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		d, ok := core.ParseDate(p.value)
		if !ok {
			return storage.Filter{}, fmt.Errorf("invalid --%s date %q", p.flag, p.value)
		}
		*p.dst = d
	}
	if !out.From.IsNull() && !out.To.IsNull() && out.To.Before(out.From.Time) {
		return storage.Filter{}, fmt.Errorf("--from %s is after --to %s", out.From, out.To)
	}
	return out, nil
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Ingest CSV or XLSX files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			uploads := make([]ingest.Upload, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				uploads = append(uploads, ingest.Upload{Name: filepath.Base(path), Data: data})
			}

			svc, err := cli.InitService(ctx, a.cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			rep, err := svc.Import(ctx, uploads...)
			printResults(cmd.OutOrStdout(), rep.Files...)
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d new records\n", rep.BatchID, rep.Inserted())
			if err != nil {
				return err
			}
			return rejectedFiles(rep.Files...)
		},
	}
}

func newImportSheetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-sheet [RANGE]",
		Short: "Ingest a Google Sheets range (default GOOGLE_SHEET_RANGE)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			rng := a.cfg.GoogleSheetRange
			if len(args) == 1 {
				rng = args[0]
			}

			svc, err := cli.InitService(ctx, a.cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.ImportSheet(ctx, rng)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), res)
			return rejectedFiles(res)
		},
	}
}

func printResults(w io.Writer, results ...ingest.FileResult) {
	for _, f := range results {
		if f.Err != nil {
			fmt.Fprintf(w, "%s: rejected: %v\n", f.File, f.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d rows, %d inserted, %d duplicates, %d null dates, %d row errors\n",
			f.File, f.Rows, f.Inserted, f.Duplicates, f.NullDates, len(f.RowErrors))
		for _, re := range f.RowErrors {
			fmt.Fprintf(w, "  %v\n", re)
		}
	}
}

func rejectedFiles(results ...ingest.FileResult) error {
	var errs []error
	for _, f := range results {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.File, f.Err))
		}
	}
	return errors.Join(errs...)
}

func newExportCommand(a *app) *cobra.Command {
	var (
		ff     filterFlags
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored records as csv, xlsx or json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			f, err := ff.filter()
			if err != nil {
				return err
			}

			svc, err := cli.InitService(ctx, a.cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			data, used, err := svc.Export(ctx, format, f)
			if err != nil {
				return err
			}
			if out == "" {
				out = storage.ExportSheet + "." + string(used)
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", out, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv, xlsx or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file, "-" for stdout (default income_data.<format>)`)
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete COMPANY",
		Short: "Remove every record of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			svc, err := cli.InitService(ctx, a.cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.DeleteCompany(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records of %s\n", n, strings.TrimSpace(args[0]))
			return nil
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the store without --yes")
			}
			ctx := a.ctx(cmd)
			svc, err := cli.InitService(ctx, a.cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removal of all records")
	return cmd
}

func newSummaryCommand(a *app) *cobra.Command {
	var (
		ff     filterFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals per company and name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			f, err := ff.filter()
			if err != nil {
				return err
			}
			svc, err := cli.InitService(ctx, a.cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			sum, err := svc.Summary(ctx, f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			return printSummary(cmd.OutOrStdout(), sum)
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum report.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, c := range sum.Companies {
		fmt.Fprintf(tw, "%s\t\t%d\t%s\t\n", c.Company, c.Count, c.Label)
		for _, n := range c.Names {
			fmt.Fprintf(tw, "\t%s\t%d\t%s\t\n", n.Name, n.Count, n.Label)
		}
	}
	fmt.Fprintf(tw, "Total\t\t%d\t%s\t\n", sum.Count, sum.TotalLabel)
	if err := tw.Flush(); err != nil {
		return err
	}
	if sum.Count > 0 {
		fmt.Fprintf(w, "dates %s to %s, %d without a date\n", dateOrDash(sum.First), dateOrDash(sum.Last), sum.NullDates)
	}
	return nil
}

func dateOrDash(d core.Date) string {
	if d.IsNull() {
		return "-"
	}
	return d.String()
}
