package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Manage platform jobs",
		Long:    "Monitor long-running platform jobs such as alert workflow updates",
	}

	cmd.AddCommand(newJobsListCommand())
	cmd.AddCommand(newJobsGetCommand())
	cmd.AddCommand(newJobsProgressCommand())
	cmd.AddCommand(newJobsWaitCommand())

	return cmd
}

func newJobsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Long:  "List recent jobs of the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				jobs, err := api.Jobs(ctx)
				if err != nil {
					return fmt.Errorf("failed to list jobs: %w", err)
				}

				return render(cmd.OutOrStdout(), documents(jobs), func(table *tablewriter.Table) {
					table.Header("ID", "Type", "Status", "State")

					for _, job := range jobs {
						_ = table.Append(job.ID(), orNA(job.JobType()), orNA(job.Status()), job.State().String())
					}
				})
			})
		},
	}
}

func newJobsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Get job details",
		Long:  "Display detailed information about a specific job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				job, err := api.GetJob(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get job: %w", err)
				}

				return outputJob(cmd.OutOrStdout(), job)
			})
		},
	}
}

func outputJob(w io.Writer, job *platform.Job) error {
	return render(w, job.Fields(), func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("ID", job.ID())
		_ = table.Append("Type", orNA(job.JobType()))
		_ = table.Append("Status", orNA(job.Status()))
		_ = table.Append("State", job.State().String())

		if msg := job.ErrorMessage(); msg != "" {
			_ = table.Append("Error", msg)
		}
	})
}

func newJobsProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress JOB_ID",
		Short: "Show job progress",
		Long:  "Display the completed and total work counters of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				progress, err := api.NewJob(args[0]).Progress(ctx)
				if err != nil {
					return fmt.Errorf("failed to get job progress: %w", err)
				}

				return render(cmd.OutOrStdout(), progress, func(table *tablewriter.Table) {
					table.Header("Property", "Value")
					_ = table.Append("Completed", strconv.Itoa(progress.NumCompleted))
					_ = table.Append("Total", strconv.Itoa(progress.NumTotal))
					_ = table.Append("Message", orNA(progress.Message))
				})
			})
		},
	}
}

func newJobsWaitCommand() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "wait JOB_ID",
		Aliases: []string{"poll"},
		Short:   "Wait for a job to finish",
		Long:    "Poll a job until it completes, fails, or times out",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				job := api.NewJob(args[0])

				waitErr := job.PollUntilComplete(ctx)
				if waitErr != nil && !job.State().Terminal() {
					return fmt.Errorf("failed to poll job: %w", waitErr)
				}

				err := outputJob(cmd.OutOrStdout(), job)
				if err != nil {
					return err
				}

				if waitErr != nil {
					return fmt.Errorf("%w: %w", ErrJobFailed, waitErr)
				}

				return nil
			}, platform.WithJobPolling(interval, timeout))
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", constants.DefaultPollInterval, "polling interval")
	cmd.Flags().DurationVar(&timeout, "wait-timeout", constants.DefaultJobPollTimeout, "give up waiting after this long")

	return cmd
}
