package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ragconsole/internal/backend"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/interpret"
	"ragconsole/internal/store"
)

func newIngestCmd(o *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest [source-type...]",
		Short: "Start a source sync",
		Long: `Starts a sync of the given source types, or of every configured type when
none are given: CONFLUENCE_PAGE, CONFLUENCE_ATTACHMENT, FILE_CATALOG_OBJECT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := o.ingestion(cmd.Context(), interval)
			if err != nil {
				return err
			}
			types := args
			if len(types) == 0 {
				types = ingestion.DefaultSourceTypes
			}
			acc, err := svc.StartSync(cmd.Context(), types)
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", acc.JobID, acc.JobStatus)
			if !watch {
				return nil
			}
			return watchJob(cmd, svc, acc.JobID)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the job until it finishes")
	cmd.Flags().DurationVar(&interval, "interval", ingestion.DefaultPollInterval, "poll interval for --watch")
	return cmd
}

func newJobCmd(o *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := o.ingestion(cmd.Context(), interval)
			if err != nil {
				return err
			}
			if watch {
				return watchJob(cmd, svc, args[0])
			}
			job, err := svc.Status(cmd.Context(), args[0])
			if err != nil {
				return friendly(err)
			}
			printJobs(cmd.OutOrStdout(), []backend.Job{job})
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", ingestion.DefaultPollInterval, "poll interval for --watch")
	return cmd
}

func newJobsCmd(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent ingestion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := o.ingestion(cmd.Context(), ingestion.DefaultPollInterval)
			if err != nil {
				return err
			}
			jobs, err := svc.Recent(cmd.Context(), limit)
			if err != nil {
				return friendly(err)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}
			printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", ingestion.DefaultRecentLimit, "number of jobs")
	return cmd
}

func newHealthCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the RAG backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := backend.NewClient(o.transport(cmd.Context()), o.tenant).Health(cmd.Context())
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", h.Service, h.Version, h.Status)
			return nil
		},
	}
}

func newHistoryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <transcript.json>",
		Short: "Print a transcript saved by ask --transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := store.NewFileTranscriptStore(args[0]).Read()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if t == nil {
				fmt.Fprintln(out, "no transcript")
				return nil
			}
			fmt.Fprintf(out, "tenant %s, saved %s\n", t.TenantID, t.SavedAt.Format(time.RFC3339))
			for _, m := range t.Messages {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Text)
			}
			return nil
		},
	}
}

func watchJob(cmd *cobra.Command, svc *ingestion.Service, jobID string) error {
	out := cmd.OutOrStdout()
	var last backend.JobStatus
	job, err := svc.Watch(cmd.Context(), jobID, func(j backend.Job, err error) {
		if err != nil {
			fmt.Fprintf(out, "! %s\n", interpret.FriendlyMessage(err))
			return
		}
		if j.JobStatus != last {
			fmt.Fprintf(out, "%s %s\n", j.JobID, j.JobStatus)
			last = j.JobStatus
		}
	})
	if err != nil {
		return err
	}
	if job.Error != nil {
		return fmt.Errorf("job %s failed: %s", job.JobID, job.Error.Error.Message)
	}
	return nil
}

func printJobs(w io.Writer, jobs []backend.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tTYPE\tSTATUS\tSTARTED\tFINISHED")
	for _, j := range jobs {
		finished := "-"
		if j.FinishedAt != nil {
			finished = *j.FinishedAt
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.JobID, j.JobType, j.JobStatus, j.StartedAt, finished)
	}
	_ = tw.Flush()
}
