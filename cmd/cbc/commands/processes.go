package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewProcessesCommand creates the processes command group.
func NewProcessesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "processes",
		Aliases: []string{"process", "proc"},
		Short:   "Search processes",
		Long:    "Run process search and facet jobs",
	}

	cmd.AddCommand(newProcessesSearchCommand())
	cmd.AddCommand(newProcessesFacetCommand())

	return cmd
}

func newProcessesSearchCommand() *cobra.Command {
	var (
		flags   = &searchFlags{}
		window  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search processes",
		Long:  "Submit a process search job, wait for it and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Processes(), flags)
				if err != nil {
					return err
				}

				if window != "" {
					query = query.SetTimeRange(cbc.TimeRangeWindow(window))
				}

				if timeout > 0 {
					query = query.SetTimeout(timeout)
				}

				processes, err := query.Execute(ctx)
				if err != nil {
					return fmt.Errorf("process search job %s: %w", orNA(query.JobID()), err)
				}

				Logger().WithFields(logrus.Fields{
					"job_id": query.JobID(),
					"rows":   len(processes),
				}).Debug("Process search finished")

				return outputProcesses(cmd.OutOrStdout(), processes)
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().StringVar(&window, "window", "", "relative time window, e.g. -2w or -24h")
	cmd.Flags().DurationVar(&timeout, "job-timeout", 0, "give up on the search job after this long")

	return cmd
}

func outputProcesses(w io.Writer, processes []*platform.Process) error {
	if len(processes) == 0 {
		if format, _ := outputFormat(); format == OutputFormatTable {
			_, _ = io.WriteString(w, "No processes found\n")

			return nil
		}
	}

	return render(w, documents(processes), func(table *tablewriter.Table) {
		table.Header("GUID", "Name", "PID", "Device", "User", "Started")

		for _, process := range processes {
			_ = table.Append(process.GUID(), orNA(process.Name()), strconv.FormatInt(process.PID(), 10),
				orNA(process.DeviceName()), orNA(process.Username()), formatTime(process.StartTime()))
		}
	})
}

func newProcessesFacetCommand() *cobra.Command {
	var (
		flags  = &searchFlags{}
		ranges []string
		rows   int
	)

	cmd := &cobra.Command{
		Use:   "facet [FIELD...]",
		Short: "Count processes by field",
		Long:  "Submit a process facet job and print the term and range buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(ranges) == 0 {
				return constants.ErrFacetFieldRequired
			}

			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := buildProcessFacet(api.ProcessFacets(), flags, args, ranges, rows)
				if err != nil {
					return err
				}

				result, err := query.Results(ctx)
				if err != nil {
					return fmt.Errorf("failed to facet processes: %w", err)
				}

				return outputFacetResult(cmd.OutOrStdout(), result)
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().StringArrayVar(&ranges, "range", nil, "range facet as field:start:end:bucket_size (repeatable)")
	cmd.Flags().IntVar(&rows, "facet-rows", constants.DefaultFacetRows, "buckets per term field")

	return cmd
}

func buildProcessFacet(query *cbc.FacetQuery, flags *searchFlags, fields, ranges []string, rows int) (*cbc.FacetQuery, error) {
	query = query.Where(flags.query).AddFacetField(fields...).SetFacetRows(rows)

	for _, raw := range flags.criteria {
		field, values, err := parseCriteria(raw)
		if err != nil {
			return nil, err
		}

		query = query.AddCriteria(field, values...)
	}

	for _, raw := range flags.exclusions {
		field, values, err := parseCriteria(raw)
		if err != nil {
			return nil, err
		}

		query = query.AddExclusions(field, values...)
	}

	for _, raw := range ranges {
		r, err := parseRange(raw)
		if err != nil {
			return nil, err
		}

		query = query.AddRange(r)
	}

	return query, nil
}

// parseRange reads "field:start:end:bucket_size". Numeric parts are sent
// as numbers, everything else (such as -30DAYS or NOW) as strings.
func parseRange(raw string) (cbc.Range, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 || parts[0] == "" {
		return cbc.Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
	}

	value := func(s string) any {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}

		return s
	}

	return cbc.Range{
		Field:      parts[0],
		Start:      value(parts[1]),
		End:        value(parts[2]),
		BucketSize: value(parts[3]),
	}, nil
}

func outputFacetResult(w io.Writer, result *cbc.FacetResult) error {
	return render(w, result, func(table *tablewriter.Table) {
		table.Header("Facet", "Bucket", "Total")

		for _, term := range result.Terms {
			for _, value := range term.Values {
				name := value.Name
				if name == "" {
					name = value.ID
				}

				_ = table.Append(term.Field, name, strconv.FormatInt(value.Total, 10))
			}
		}

		for _, r := range result.Ranges {
			for _, value := range r.Values {
				_ = table.Append(r.Field, value.Name, strconv.FormatInt(value.Total, 10))
			}
		}
	})
}
