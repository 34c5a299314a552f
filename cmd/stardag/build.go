package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/stardag-dev/stardag-go/internal/demo"
	"github.com/stardag-dev/stardag-go/internal/scheduler"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// statusFile is where the last build's report is cached so `stardag
// status` can redisplay it without re-running anything - the registry
// client is write-only (spec.md §4.4), so there is nothing to query it
// for after the fact.
func statusFile() string {
	return filepath.Join(xdg.CacheHome, "stardag", "last-build.json")
}

// savedStatus is the on-disk shape statusFile holds.
type savedStatus struct {
	BuildID   string            `json:"build_id"`
	RanAt     time.Time         `json:"ran_at"`
	FailMode  string            `json:"fail_mode"`
	Report    string            `json:"report,omitempty"`
	RunError  string            `json:"run_error,omitempty"`
	TaskNames map[string]string `json:"task_names"`
	States    map[string]string `json:"states"`
}

func newBuildCommand() *cobra.Command {
	var n int64
	var failFast bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the demo pipeline through the build engine",
		Long:  "stardag build [--n=5] [--fail-fast] runs a small built-in task pipeline and prints the resulting task status table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), n, failFast)
		},
	}
	cmd.Flags().Int64Var(&n, "n", 5, "size parameter for the demo pipeline's range tasks")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort remaining tasks on the first failure instead of continuing independent branches")
	return cmd
}

func runBuild(ctx context.Context, n int64, failFast bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newEngineLogger()
	client := newRegistryClient(cfg)

	store := demo.NewStore()
	report := demo.BuildPipeline(store, n)

	failMode := scheduler.BestEffort
	if failFast {
		failMode = scheduler.FailFast
	}

	b, err := scheduler.NewBuild(
		[]task.Task{report},
		scheduler.WithRegistry(client),
		scheduler.WithLogger(log),
		scheduler.WithFailMode(failMode),
		scheduler.WithDescription("stardag demo build"),
	)
	if err != nil {
		return fmt.Errorf("constructing build: %w", err)
	}

	start := time.Now()
	summary, runErr := b.Run(ctx)
	elapsed := time.Since(start)

	names := pipelineTaskNames(report)
	renderStatusTable(summary, names, elapsed)

	saved := savedStatus{
		RanAt:     start,
		FailMode:  failModeName(failMode),
		TaskNames: make(map[string]string, len(names)),
		States:    make(map[string]string, len(names)),
	}
	if summary != nil {
		saved.BuildID = summary.BuildID
		for id, st := range summary.States {
			saved.States[id.String()] = st.String()
		}
	}
	for id, name := range names {
		saved.TaskNames[id] = name
	}
	if runErr != nil {
		saved.RunError = runErr.Error()
	} else if v, ok := demoTargetValue(report); ok {
		saved.Report = v
	}
	if err := persistStatus(saved); err != nil {
		log.Warnf("failed to persist build status: %v", err)
	}

	return runErr
}

// pipelineTaskNames gives every task in the demo pipeline a short,
// human-readable label for the status table, since content-addressed
// uuids alone are not useful in a terminal.
func pipelineTaskNames(report *demo.ReportTask) map[string]string {
	names := map[string]string{report.ID().String(): "report"}
	for i, s := range report.Sums {
		names[s.ID().String()] = fmt.Sprintf("sum[%d]", i)
		names[s.Of.ID().String()] = fmt.Sprintf("range[%d]", i)
	}
	return names
}

func demoTargetValue(report *demo.ReportTask) (string, bool) {
	t := report.Output()
	type reader interface{ Read() (any, bool) }
	r, ok := t.(reader)
	if !ok {
		return "", false
	}
	v, ok := r.Read()
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func failModeName(m scheduler.FailMode) string {
	if m == scheduler.FailFast {
		return "fail-fast"
	}
	return "best-effort"
}

func renderStatusTable(summary *scheduler.Summary, names map[string]string, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "ID", "State"})

	if summary != nil {
		for id, st := range summary.States {
			name := names[id.String()]
			if name == "" {
				name = id.String()
			}
			t.AppendRow(table.Row{name, id.String(), st.String()})
		}
	}
	t.Render()
	fmt.Printf("elapsed: %s\n", elapsed.Round(time.Millisecond))
}

func persistStatus(s savedStatus) error {
	path := statusFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
