// Package terminal implements the interactive operator shell. Commands are
// looked up in a dispatch table built once when the shell is created.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"agentrunner/internal/job"
)

const prompt = "> "

// Jobs is the lifecycle surface the shell drives.
type Jobs interface {
	CreateJob(ctx context.Context, name string) (*job.Job, error)
	StopJob(ctx context.Context, id int64) error
	StartJob(ctx context.Context, id int64) error
	StopAllJobs(ctx context.Context) (*job.BatchReport, error)
	GetAllJobs(ctx context.Context) ([]string, error)
	GetAllContainers(ctx context.Context) ([]string, error)
	GetAllImages(ctx context.Context) ([]string, error)
	JobForContainer(ctx context.Context, containerID string) (*job.Job, error)
	AccessURL(port int) string
}

type command struct {
	usage   string
	summary string
	minArgs int
	run     func(ctx context.Context, args []string) error
}

// Shell reads commands line by line and writes human output to out.
type Shell struct {
	jobs     Jobs
	out      io.Writer
	commands map[string]command
	logger   *slog.Logger
}

// New creates a shell over jobs writing to out.
func New(jobs Jobs, out io.Writer) *Shell {
	s := &Shell{
		jobs:   jobs,
		out:    out,
		logger: slog.With("component", "terminal"),
	}
	s.commands = map[string]command{
		"create-job":      {usage: "create-job <name>", summary: "Create a job and start its container", minArgs: 1, run: s.createJob},
		"stop-job":        {usage: "stop-job <id>", summary: "Stop a job by ID", minArgs: 1, run: s.stopJob},
		"start-job":       {usage: "start-job <id>", summary: "Restart a stopped job by ID", minArgs: 1, run: s.startJob},
		"stop-all":        {usage: "stop-all", summary: "Stop all running jobs", run: s.stopAll},
		"list-jobs":       {usage: "list-jobs", summary: "List jobs with their VNC links", run: s.listJobs},
		"list-containers": {usage: "list-containers", summary: "List running containers", run: s.listContainers},
		"list-images":     {usage: "list-images", summary: "List available images", run: s.listImages},
		"job-of":          {usage: "job-of <containerId>", summary: "Show the job linked to a container", minArgs: 1, run: s.jobOf},
		"help":            {usage: "help", summary: "Show this help message", run: s.help},
		"exit":            {usage: "exit", summary: "Exit the terminal"},
	}
	return s
}

// Run reads commands from in until exit, end of input or ctx is cancelled.
// A failing command is reported and the loop carries on.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.printf("Agent terminal started. Type 'help' for a list of commands.\n")
	for {
		s.printf(prompt)
		select {
		case <-ctx.Done():
			s.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				s.printf("\n")
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if !s.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the shell should continue.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	name, args := fields[0], fields[1:]

	if name == "exit" {
		s.printf("Bye!\n")
		return false
	}

	cmd, ok := s.commands[name]
	if !ok {
		s.printf("Unknown command: %s. Type 'help' for commands.\n", name)
		return true
	}
	if len(args) < cmd.minArgs {
		s.printf("Usage: %s\n", cmd.usage)
		return true
	}

	if err := cmd.run(ctx, args); err != nil {
		s.logger.DebugContext(ctx, "Command failed", "command", name, "error", err)
		s.printf("Error executing command '%s': %v\n", name, err)
	}
	return true
}

func (s *Shell) createJob(ctx context.Context, args []string) error {
	s.printf("Creating job and starting container...\n")
	j, err := s.jobs.CreateJob(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if j.Status != job.StatusStarted {
		s.printf("Failed to start container; job %d recorded as %s\n", j.ID, j.Status)
		return nil
	}
	s.printf("Job %d created and container started. VNC: %s\n", j.ID, s.jobs.AccessURL(j.VNCPort))
	return nil
}

func (s *Shell) stopJob(ctx context.Context, args []string) error {
	id, ok := s.parseID(args[0])
	if !ok {
		return nil
	}
	if err := s.jobs.StopJob(ctx, id); err != nil {
		s.printf("Failed to stop job: %v\n", err)
		return nil
	}
	s.printf("Job stopped successfully\n")
	return nil
}

func (s *Shell) startJob(ctx context.Context, args []string) error {
	id, ok := s.parseID(args[0])
	if !ok {
		return nil
	}
	if err := s.jobs.StartJob(ctx, id); err != nil {
		s.printf("Failed to start job: %v\n", err)
		return nil
	}
	s.printf("Job started successfully\n")
	return nil
}

func (s *Shell) stopAll(ctx context.Context, _ []string) error {
	report, err := s.jobs.StopAllJobs(ctx)
	if err != nil {
		return err
	}
	for _, o := range report.Outcomes {
		if o.Stopped {
			s.printf("- %d - %s: stopped\n", o.JobID, o.Name)
		} else {
			s.printf("- %d - %s: failed (%s)\n", o.JobID, o.Name, o.Error)
		}
	}
	s.printf("Stopped %d job(s), %d failed\n", report.Stopped, report.Failed)
	return nil
}

func (s *Shell) listJobs(ctx context.Context, _ []string) error {
	lines, err := s.jobs.GetAllJobs(ctx)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		s.printf("No jobs\n")
	}
	for _, l := range lines {
		s.printf("- %s\n", l)
	}
	return nil
}

func (s *Shell) listContainers(ctx context.Context, _ []string) error {
	lines, err := s.jobs.GetAllContainers(ctx)
	if err != nil {
		return err
	}
	for _, l := range lines {
		s.printf("%s\n", l)
	}
	return nil
}

func (s *Shell) listImages(ctx context.Context, _ []string) error {
	lines, err := s.jobs.GetAllImages(ctx)
	if err != nil {
		return err
	}
	for _, l := range lines {
		s.printf("%s\n", l)
	}
	return nil
}

func (s *Shell) jobOf(ctx context.Context, args []string) error {
	j, err := s.jobs.JobForContainer(ctx, args[0])
	if err != nil {
		return err
	}
	s.printf("%s\n", job.FormatJob(job.Listing{Job: *j}))
	return nil
}

func (s *Shell) help(context.Context, []string) error {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := s.commands[name]
		s.printf("  %-22s - %s\n", cmd.usage, cmd.summary)
	}
	return nil
}

func (s *Shell) parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.printf("Invalid job ID format: %s\n", raw)
		return 0, false
	}
	return id, true
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
