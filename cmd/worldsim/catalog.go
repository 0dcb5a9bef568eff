package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/crossroads/internal/config"
	"github.com/talgya/crossroads/internal/discovery"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the discovery catalog",
	Long: `Load the configured discovery catalog (or the built-in one), register it
with a fresh engine to check prerequisites, and print each rule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defs, err := config.LoadCatalog(cfg.Discovery.Catalog)
		if err != nil {
			return err
		}
		disc := discovery.NewEngine(discovery.DefaultConfig(), nil, nil, nil, nil)
		if err := config.RegisterAll(disc, defs); err != nil {
			return fmt.Errorf("catalog rejected: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Discovery Catalog ==="))
		for _, d := range disc.Definitions() {
			fmt.Printf("%s %s %s\n", gray(fmt.Sprintf("%2d", d.ID)), green(d.Name), gray(d.Kind.String()))
			if d.Description != "" {
				fmt.Printf("   %s\n", d.Description)
			}
			fmt.Printf("   %s\n", gray(requirement(d)))
			if len(d.Prerequisites) > 0 {
				fmt.Printf("   after: %s\n", strings.Join(d.Prerequisites, ", "))
			}
			var unlocks []string
			unlocks = append(unlocks, d.UnlockedCapabilities...)
			unlocks = append(unlocks, d.UnlockedStructures...)
			unlocks = append(unlocks, d.UnlockedResources...)
			if len(unlocks) > 0 {
				fmt.Printf("   unlocks: %s\n", strings.Join(unlocks, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

// requirement summarises a rule's trial parameters on one line.
func requirement(d discovery.Definition) string {
	var b strings.Builder
	switch d.Kind {
	case discovery.KindBiome:
		tags := make([]string, len(d.RequiredBiomes))
		for i, t := range d.RequiredBiomes {
			tags[i] = string(t)
		}
		fmt.Fprintf(&b, "biomes [%s], ", strings.Join(tags, " "))
	case discovery.KindActivity:
		fmt.Fprintf(&b, "%d× %s, ", d.RequiredActivityCount, d.RequiredActivity)
	}
	fmt.Fprintf(&b, "p=%.3f", d.BaseProbability)
	if d.RepetitionBonus > 0 {
		fmt.Fprintf(&b, " +%.3f/cycle", d.RepetitionBonus)
	}
	if d.BadLuckThreshold > 0 {
		fmt.Fprintf(&b, ", pity after %d", d.BadLuckThreshold)
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
