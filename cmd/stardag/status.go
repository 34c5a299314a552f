package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last `stardag build`",
		Long:  "stardag status reprints the task status table from the last build, without re-running anything.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	data, err := os.ReadFile(statusFile())
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("no prior build found; run `stardag build` first")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading status file: %w", err)
	}

	var s savedStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing status file: %w", err)
	}

	if s.BuildID != "" {
		fmt.Printf("build %s (%s), ran at %s\n", s.BuildID, s.FailMode, s.RanAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("build (%s), ran at %s\n", s.FailMode, s.RanAt.Format("2006-01-02 15:04:05"))
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "ID", "State"})
	for id, st := range s.States {
		name := s.TaskNames[id]
		if name == "" {
			name = id
		}
		t.AppendRow(table.Row{name, id, st})
	}
	t.Render()

	if s.RunError != "" {
		fmt.Printf("run error: %s\n", s.RunError)
		return nil
	}
	if s.Report != "" {
		fmt.Printf("report: %s\n", s.Report)
	}
	return nil
}
