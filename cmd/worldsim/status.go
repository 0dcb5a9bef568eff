package main

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/crossroads/internal/config"
	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/engine"
	"github.com/talgya/crossroads/internal/persistence"
)

var statusEvents int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session",
	Long:  `Display the saved session's progress: discoveries, unlocks, activity and recent events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Crossroads Session ==="))
		if !db.HasSession() {
			fmt.Printf("  %s\n\n", gray("No saved session in "+cfg.DBPath))
			return nil
		}

		session, _ := db.GetMeta(persistence.MetaSessionID)
		var tick uint64
		if v, err := db.GetMeta(persistence.MetaLastTick); err == nil {
			tick, _ = strconv.ParseUint(v, 10, 64)
		}
		fmt.Printf("  Session:  %s\n", session)
		fmt.Printf("  Tick:     %s (%s)\n", humanize.Comma(int64(tick)), engine.SimTime(tick))
		if v, err := db.GetMeta(persistence.MetaSavedAt); err == nil {
			if at, err := time.Parse(time.RFC3339, v); err == nil {
				fmt.Printf("  Saved:    %s\n", humanize.Time(at))
			}
		}

		ledger, err := db.LoadLedger()
		if err != nil {
			return err
		}
		st, err := db.LoadEngine()
		if err != nil {
			return err
		}
		fmt.Printf("  Cycles:   %s (%d since last discovery)\n\n",
			humanize.Comma(int64(st.Cycles)), st.CyclesWithoutDiscovery)

		defs, err := config.LoadCatalog(cfg.Discovery.Catalog)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", yellow("Discoveries:"), gray(fmt.Sprintf("%d/%d", len(ledger.Completed), len(defs))))
		for i, name := range ledger.Completed {
			fmt.Printf("  %s %s %s\n", green("●"), name, gray(humanize.Ordinal(i+1)))
		}
		for _, d := range defs {
			if slices.Contains(ledger.Completed, d.Name) {
				continue
			}
			line := fmt.Sprintf("  ○ %s", d.Name)
			if n := st.EligibleCycles[d.Name]; n > 0 {
				line += fmt.Sprintf(" (eligible %s)", english.Plural(n, "cycle", ""))
			}
			fmt.Println(gray(line))
		}

		fmt.Printf("\n%s\n", yellow("Unlocked:"))
		printTags("Capabilities", ledger.Capabilities)
		printTags("Structures", ledger.Structures)
		printTags("Resources", ledger.Resources)

		counts, err := db.LoadActivity()
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", yellow("Activity:"))
		if len(counts) == 0 {
			fmt.Printf("  %s\n", gray("none"))
		}
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			fmt.Printf("  %-12s %s\n", k, humanize.Comma(int64(counts[discovery.Activity(k)])))
		}

		if statusEvents > 0 {
			events, err := db.RecentEvents(statusEvents)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", yellow("Recent events:"))
			for _, e := range events {
				fmt.Printf("  %s %s\n", gray(engine.SimTime(e.Tick)), e.Description)
			}
		}
		fmt.Println()
		return nil
	},
}

func printTags(label string, tags []string) {
	if len(tags) == 0 {
		fmt.Printf("  %-13s %s\n", label+":", color.HiBlackString("none"))
		return
	}
	fmt.Printf("  %-13s %v\n", label+":", tags)
}

func init() {
	statusCmd.Flags().IntVarP(&statusEvents, "events", "n", 10, "Number of recent events to show")
	rootCmd.AddCommand(statusCmd)
}
