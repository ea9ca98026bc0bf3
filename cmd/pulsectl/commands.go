package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pulsedev/pulse/internal/agent"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/pulsedev/pulse/internal/biz/instance"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent's schedule and run state",
	RunE:  runStatus,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show today's planned run points",
	RunE:  runSchedule,
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List recently applied export packages",
	RunE:  runPackages,
}

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List registered agent instances",
	RunE:  runInstances,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Request an immediate sync run",
	RunE:  runTrigger,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <status>",
	Short: "Set the external monitor status",
	Long: `Sets the health status the next run's download scope is derived from.
Valid statuses: healthy, self_monitoring, probably_sick, confirmed_sick.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <true|false>",
	Short: "Grant or revoke sync authorization",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthorize,
}

var packagesLimit int

func init() {
	packagesCmd.Flags().IntVar(&packagesLimit, "limit", 20, "maximum number of packages to list")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(authorizeCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var view agent.StatusView
	if err := newAPIClient().get("/api/v1/status", &view); err != nil {
		return err
	}
	if verbose {
		cmd.Print(spew.Sdump(view))
		return nil
	}

	cmd.Printf("Instance:       %s\n", view.InstanceID)
	cmd.Printf("Task:           %s\n", view.TaskID)
	cmd.Printf("Leader:         %v\n", view.Leader)
	cmd.Printf("Monitor status: %s\n", view.MonitorStatus)
	cmd.Printf("Authorized:     %v\n", view.Authorized)
	cmd.Printf("Armed for:      %s\n", formatTime(view.ArmedFor))
	cmd.Printf("Last success:   %s\n", formatTime(view.LastSuccessAt))
	if view.LastOutcome != "" {
		cmd.Printf("Last outcome:   %s\n", view.LastOutcome)
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	var view agent.ScheduleView
	if err := newAPIClient().get("/api/v1/schedule", &view); err != nil {
		return err
	}
	if verbose {
		cmd.Print(spew.Sdump(view))
		return nil
	}

	cmd.Printf("Window:   %s - %s every %dh\n", view.DailyStart, view.DailyEnd, view.IntervalHours)
	for _, point := range view.TodayRuns {
		marker := " "
		if view.NextRun != nil && point.Equal(*view.NextRun) {
			marker = ">"
		}
		cmd.Printf("  %s %s\n", marker, point.Format(time.RFC3339))
	}
	if view.NextRun == nil {
		cmd.Println("No runs left today.")
	}
	return nil
}

func runPackages(cmd *cobra.Command, args []string) error {
	var resp struct {
		Packages []download.AppliedPackage `json:"packages"`
		Count    int                       `json:"count"`
	}
	if err := newAPIClient().get("/api/v1/packages?limit="+strconv.Itoa(packagesLimit), &resp); err != nil {
		return err
	}
	if verbose {
		cmd.Print(spew.Sdump(resp))
		return nil
	}

	if resp.Count == 0 {
		cmd.Println("No packages applied yet.")
		return nil
	}
	for _, p := range resp.Packages {
		cmd.Printf("%-24s %8d bytes  applied %s\n",
			p.PackageID, p.Size, p.AppliedAt.Format(time.RFC3339))
	}
	return nil
}

func runInstances(cmd *cobra.Command, args []string) error {
	var resp struct {
		Instances []*instance.AgentInstance `json:"instances"`
		Count     int                       `json:"count"`
	}
	if err := newAPIClient().get("/api/v1/instances", &resp); err != nil {
		return err
	}
	if verbose {
		cmd.Print(spew.Sdump(resp))
		return nil
	}

	if resp.Count == 0 {
		cmd.Println("No instances registered.")
		return nil
	}
	for _, inst := range resp.Instances {
		marker := " "
		if inst.Leader {
			marker = "*"
		}
		cmd.Printf("%s %-20s %s:%d  seen %s\n",
			marker, inst.InstanceID, inst.Host, inst.Port, inst.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().do(http.MethodPost, "/api/v1/runs/trigger", nil, nil); err != nil {
		return err
	}
	cmd.Println("Run triggered.")
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	status := health.Status(args[0])
	if !status.Valid() {
		return fmt.Errorf("unknown monitor status %q", args[0])
	}

	payload, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return err
	}
	if err := newAPIClient().do(http.MethodPut, "/api/v1/monitor/status", bytes.NewReader(payload), nil); err != nil {
		return err
	}
	cmd.Printf("Monitor status set to %s.\n", status)
	return nil
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	granted, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", args[0])
	}

	payload, err := json.Marshal(map[string]bool{"granted": granted})
	if err != nil {
		return err
	}
	if err := newAPIClient().do(http.MethodPut, "/api/v1/authorization", bytes.NewReader(payload), nil); err != nil {
		return err
	}
	if granted {
		cmd.Println("Sync authorized.")
	} else {
		cmd.Println("Sync authorization revoked.")
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
