package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetops/dutyroster/app"
	"github.com/fleetops/dutyroster/config"
)

var (
	planTenant string
	planWeek   string
)

// planCandidate is the best compliant driver found for one block.
type planCandidate struct {
	BlockID         string  `json:"block_id"`
	BlockDescriptor string  `json:"block_descriptor"`
	DriverID        string  `json:"driver_id,omitempty"`
	DriverName      string  `json:"driver_name,omitempty"`
	CombinedScore   float64 `json:"combined_score"`
	// FailReasons explains why no driver qualified, present only for
	// uncoverable blocks.
	FailReasons []string `json:"fail_reasons,omitempty"`
}

// planOutput is the dry-run result: a ranked suggestion per block plus a
// coverage summary. Nothing is committed.
type planOutput struct {
	TenantID    string          `json:"tenant_id"`
	WeekStart   string          `json:"week_start"`
	Suggestions []planCandidate `json:"suggestions"`
	Blocks      int             `json:"blocks"`
	Coverable   int             `json:"coverable"`
	Uncoverable int             `json:"uncoverable"`
	// DriverDays tallies blocks already committed to each driver this
	// week, before any of the suggestions are applied.
	DriverDays map[string]int `json:"driver_days"`
	Degraded   bool           `json:"degraded"`
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run a week: suggest the best compliant driver per unassigned block",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTenant, "tenant", "", "tenant identifier")
	planCmd.Flags().StringVar(&planWeek, "week", "", "week start (Sunday), YYYY-MM-DD")
	_ = planCmd.MarkFlagRequired("tenant")
	_ = planCmd.MarkFlagRequired("week")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sess, err := svc.Manager.GetOrCreate(ctx, planTenant, planWeek)
	if err != nil {
		return err
	}

	out := planOutput{
		TenantID:   planTenant,
		WeekStart:  planWeek,
		DriverDays: make(map[string]int),
		Degraded:   sess.Degraded(),
	}
	for _, driver := range sess.Drivers() {
		out.DriverDays[driver.Name] = sess.DayCount(driver.ID)
	}
	for _, block := range sess.RemainingBlocks() {
		cand := planCandidate{BlockID: block.ID, BlockDescriptor: block.Descriptor(), CombinedScore: -1}
		var lastFail []string
		for _, driver := range sess.Drivers() {
			checks, err := sess.RunAllChecks(ctx, driver.ID, block.ID)
			if err != nil {
				return err
			}
			if !checks.CanAssign {
				lastFail = checks.FailReasons
				continue
			}
			if checks.CombinedScore > cand.CombinedScore {
				cand.DriverID = driver.ID
				cand.DriverName = driver.Name
				cand.CombinedScore = checks.CombinedScore
			}
		}
		out.Blocks++
		if cand.DriverID == "" {
			cand.CombinedScore = 0
			cand.FailReasons = lastFail
			out.Uncoverable++
		} else {
			out.Coverable++
		}
		out.Suggestions = append(out.Suggestions, cand)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
