package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/habedi/uniboard/pkg/pool"
	"github.com/habedi/uniboard/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// filterFlags are the dashboard filters shared by the data subcommands.
type filterFlags struct {
	year       int
	semester   string
	college    string
	department string
	asJSON     bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.year, "year", "y", 0, "Filter by academic year")
	cmd.Flags().StringVarP(&f.semester, "semester", "s", "", "Filter by semester")
	cmd.Flags().StringVarP(&f.college, "college", "c", "", "Filter by college")
	cmd.Flags().StringVarP(&f.department, "department", "d", "", "Filter by department")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the raw response as JSON")
}

func (f *filterFlags) filters() client.DashboardFilters {
	return client.DashboardFilters{
		Year:       f.year,
		Semester:   f.semester,
		College:    f.college,
		Department: f.department,
	}
}

// dashboardCmd creates the command group for reading dashboard data.
func dashboardCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"dash"},
		Short:   "Read dashboard data",
		Long:    "Read the dashboard summary, KPI, publication, research and student data from the API",
	}

	cmd.AddCommand(
		summaryCmd(opts),
		dataCmd(opts, "kpi", "Show department KPI data", "fetch KPI data",
			func(ctx context.Context, c *client.Client, f client.DashboardFilters) (any, []client.Record, error) {
				resp, err := c.KPIData(ctx, f)
				if err != nil {
					return nil, nil, err
				}
				return resp, resp.Data, nil
			}),
		dataCmd(opts, "publications", "Show publication data", "fetch publications data",
			func(ctx context.Context, c *client.Client, f client.DashboardFilters) (any, []client.Record, error) {
				resp, err := c.Publications(ctx, f)
				if err != nil {
					return nil, nil, err
				}
				return resp, resp.Data, nil
			}),
		dataCmd(opts, "research", "Show research project data", "fetch research data",
			func(ctx context.Context, c *client.Client, f client.DashboardFilters) (any, []client.Record, error) {
				resp, err := c.Research(ctx, f)
				if err != nil {
					return nil, nil, err
				}
				return resp, resp.Data, nil
			}),
		dataCmd(opts, "students", "Show student data", "fetch students data",
			func(ctx context.Context, c *client.Client, f client.DashboardFilters) (any, []client.Record, error) {
				resp, err := c.Students(ctx, f)
				if err != nil {
					return nil, nil, err
				}
				return resp, resp.Data, nil
			}),
		filtersCmd(opts),
		reportCmd(opts),
		overviewCmd(opts),
	)

	return cmd
}

func summaryCmd(opts *rootOptions) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the headline totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.DashboardSummary(cmd.Context(), flags.filters())
			if err != nil {
				return reportError(cmd, "fetch the dashboard summary", err)
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			table := newTable(cmd.OutOrStdout(), "Metric", "Value")
			table.Append([]string{"Year", rawYear(resp.Year)})
			table.Append([]string{"Students", fmt.Sprintf("%d", resp.Summary.TotalStudents)})
			table.Append([]string{"Publications", fmt.Sprintf("%d", resp.Summary.TotalPublications)})
			table.Append([]string{"Research projects", fmt.Sprintf("%d", resp.Summary.TotalResearchProjects)})
			table.Append([]string{"Research budget", fmt.Sprintf("%.2f", resp.Summary.TotalResearchBudget)})
			table.Render()
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

type fetchFunc func(ctx context.Context, c *client.Client, f client.DashboardFilters) (any, []client.Record, error)

// dataCmd builds a subcommand that fetches one filtered data set and prints its rows.
func dataCmd(opts *rootOptions, use, short, action string, fetch fetchFunc) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, records, err := fetch(cmd.Context(), a.client, flags.filters())
			if err != nil {
				return reportError(cmd, action, err)
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderRecords(cmd.OutOrStdout(), records)
			cmd.Printf("%d record(s)\n", len(records))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func filtersCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the available filter values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.AvailableFilters(cmd.Context())
			if err != nil {
				return reportError(cmd, "fetch the available filters", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			years := make([]string, len(resp.Years))
			for i, y := range resp.Years {
				years[i] = itoa(y)
			}
			table := newTable(cmd.OutOrStdout(), "Filter", "Values")
			table.Append([]string{"Years", strings.Join(years, ", ")})
			table.Append([]string{"Semesters", strings.Join(resp.Semesters, ", ")})
			table.Append([]string{"Colleges", strings.Join(resp.Colleges, ", ")})
			table.Append([]string{"Departments", strings.Join(resp.Departments, ", ")})
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	return cmd
}

func reportCmd(opts *rootOptions) *cobra.Command {
	var flags filterFlags
	var page, limit int
	cmd := &cobra.Command{
		Use:       "report <type>",
		Short:     "Show one page of a detailed report",
		Long:      "Show one page of a detailed report. Type is one of: " + strings.Join(validation.ReportTypes, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: validation.ReportTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateReportType(args[0]); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.Report(cmd.Context(), args[0], client.ReportFilters{
				DashboardFilters: flags.filters(),
				Page:             page,
				Limit:            limit,
			})
			if err != nil {
				return reportError(cmd, "fetch the "+args[0]+" report", err)
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderRecords(cmd.OutOrStdout(), resp.Data)
			p := resp.Pagination
			cmd.Printf("Page %d of %d (%d record(s) in total)\n", p.Page, p.Pages, p.Total)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "Records per page")
	return cmd
}

// overviewCmd fetches every data set concurrently and prints their row counts.
func overviewCmd(opts *rootOptions) *cobra.Command {
	var flags filterFlags
	var workers int
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Fetch all data sets concurrently and show their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateWorkerCount(workers); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}

			f := flags.filters()
			sections := map[string]func(ctx context.Context) (int, error){
				"kpi": func(ctx context.Context) (int, error) {
					r, err := a.client.KPIData(ctx, f)
					if err != nil {
						return 0, err
					}
					return r.Count, nil
				},
				"publications": func(ctx context.Context) (int, error) {
					r, err := a.client.Publications(ctx, f)
					if err != nil {
						return 0, err
					}
					return r.Count, nil
				},
				"research": func(ctx context.Context) (int, error) {
					r, err := a.client.Research(ctx, f)
					if err != nil {
						return 0, err
					}
					return r.Count, nil
				},
				"students": func(ctx context.Context) (int, error) {
					r, err := a.client.Students(ctx, f)
					if err != nil {
						return 0, err
					}
					return r.Count, nil
				},
			}
			names := make([]string, 0, len(sections))
			for name := range sections {
				names = append(names, name)
			}
			sort.Strings(names)

			counts, failures := fetchSections(cmd.Context(), names, sections, workers)

			if flags.asJSON && len(failures) == 0 {
				return printJSON(cmd.OutOrStdout(), counts)
			}
			table := newTable(cmd.OutOrStdout(), "Data set", "Records")
			for _, name := range names {
				if err, failed := failures[name]; failed {
					log.Warn().Err(err).Str("section", name).Msg("Failed to fetch data set")
					table.Append([]string{name, "error"})
					continue
				}
				table.Append([]string{name, itoa(counts[name])})
			}
			table.Render()

			for _, name := range names {
				if err, failed := failures[name]; failed {
					return reportError(cmd, "fetch "+name+" data", err)
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of concurrent requests")
	return cmd
}

// fetchSections runs the section fetchers with up to workers at a time.
// Every name ends up in exactly one of the returned maps; a fetcher that
// panicked or never ran is reported as a failure.
func fetchSections(ctx context.Context, names []string, sections map[string]func(ctx context.Context) (int, error), workers int) (map[string]int, map[string]error) {
	var mu sync.Mutex
	counts := make(map[string]int, len(names))
	failures := make(map[string]error)
	errs := pool.Run(ctx, names, workers, func(ctx context.Context, name string) error {
		n, err := sections[name](ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures[name] = err
			return err
		}
		counts[name] = n
		return nil
	})

	for _, name := range names {
		if _, ok := counts[name]; ok {
			continue
		}
		if _, ok := failures[name]; ok {
			continue
		}
		missing := errors.Join(errs...)
		if missing == nil {
			missing = ctx.Err()
		}
		if missing == nil {
			missing = errors.New("no result")
		}
		failures[name] = missing
	}
	return counts, failures
}
