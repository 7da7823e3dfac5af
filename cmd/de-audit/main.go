package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/bulkload"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/di"
	"github.com/aali87/sfmc-scripting-sub000/internal/exclusions"
	"github.com/aali87/sfmc-scripting-sub000/internal/report"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Audit failed: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected.
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	analyzer *report.Analyzer,
	checker *exclusions.Checker,
	history core.HistoryStore,
) error {
	defer logger.Sync()
	ctx := context.Background()

	des, err := readTargets(flags)
	if err != nil {
		return err
	}
	if len(des) == 0 {
		return fmt.Errorf("no data extension keys supplied (use -keys, -keys-file or stdin)")
	}

	kept, excluded := checker.Filter(des)
	if len(excluded) > 0 {
		logger.Info("Excluded protected data extensions", zap.Int("count", len(excluded)))
	}

	rep, err := analyzer.Analyze(ctx, kept, report.Options{
		Load: bulkload.Options{
			ForceRefresh:            flags.ForceRefresh,
			IncludeAutomationDetail: !flags.SkipDetail,
			IncludeQueryText:        !flags.SkipSQL,
			OnProgress: func(stage string, completed, total int) {
				logger.Debug("Hydration progress",
					zap.String("stage", stage),
					zap.Int("completed", completed),
					zap.Int("total", total))
			},
		},
		StaleAfterDays: flags.StaleDays,
	})
	if err != nil {
		return err
	}

	if history != nil {
		defer history.Close()
	}

	if flags.JSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printReport(rep, kept)
	return nil
}

// readTargets collects data extensions from -keys, -keys-file or stdin.
// File and stdin lines may carry `customerKey,name,objectId`; name and
// objectId unlock name- and objectId-based matching (data-filter
// source/destination, SQL-by-name), which key-only input cannot trigger.
func readTargets(flags *di.CLIFlags) ([]core.DataExtension, error) {
	var lines []string
	switch {
	case flags.Keys != "":
		for _, k := range strings.Split(flags.Keys, ",") {
			lines = append(lines, strings.TrimSpace(k))
		}
	case flags.KeysFile != "":
		f, err := os.Open(flags.KeysFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open keys file: %w", err)
		}
		defer f.Close()
		lines = scanLines(f)
	default:
		lines = scanLines(os.Stdin)
	}

	var des []core.DataExtension
	seen := map[string]bool{}
	for _, line := range lines {
		de, ok := parseTarget(line)
		if !ok || seen[de.CustomerKey] {
			continue
		}
		seen[de.CustomerKey] = true
		des = append(des, de)
	}
	return des, nil
}

// parseTarget parses one `customerKey[,name[,objectId]]` line.
func parseTarget(line string) (core.DataExtension, bool) {
	parts := strings.SplitN(line, ",", 3)
	de := core.DataExtension{CustomerKey: strings.TrimSpace(parts[0])}
	if de.CustomerKey == "" {
		return core.DataExtension{}, false
	}
	if len(parts) > 1 {
		de.Name = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		de.ObjectID = strings.TrimSpace(parts[2])
	}
	return de, true
}

func scanLines(f *os.File) []string {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines
}

func printReport(rep *core.Report, des []core.DataExtension) {
	fmt.Printf("\n=== Audit Summary ===\n")
	fmt.Printf("Run: %s\n", rep.RunID)
	fmt.Printf("Data extensions audited: %d\n", rep.Summary.DataExtensions)
	fmt.Printf("Unique dependencies: %d\n", rep.Summary.Dependencies)
	fmt.Printf("Unreferenced (no dependencies found): %d\n", rep.Summary.Unreferenced)
	fmt.Printf("Staleness cutoff: %s\n", rep.StaleCutoff.Format("2006-01-02"))

	fmt.Printf("\nVerdicts:\n")
	for _, c := range []core.Classification{core.SafeToDelete, core.RequiresReview, core.Unknown} {
		fmt.Printf("  %-16s %d\n", c, rep.Summary.ByClassification[c])
	}

	if len(rep.Summary.ByType) > 0 {
		fmt.Printf("\nDependencies by type:\n")
		types := make([]string, 0, len(rep.Summary.ByType))
		for t := range rep.Summary.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-16s %d\n", t, rep.Summary.ByType[core.DependencyType(t)])
		}
	}

	fmt.Printf("\n=== Per Data Extension ===\n")
	for _, de := range des {
		deps := rep.ByDataExtension[de.CustomerKey]
		if len(deps) == 0 {
			fmt.Printf("%s: no dependencies found\n", de.CustomerKey)
			continue
		}
		fmt.Printf("%s:\n", de.CustomerKey)
		for _, dep := range deps {
			fmt.Printf("  [%s] %s: %s\n", dep.Type, dep.Name, dep.Detail)
		}
	}

	fmt.Printf("\n=== Classified Dependencies ===\n")
	for _, dep := range rep.Dependencies {
		fmt.Printf("[%s] %s (%s)\n", dep.Type, dep.Name, dep.ID)
		fmt.Printf("  verdict: %s (%s)\n", dep.Verdict.Classification, dep.Verdict.Reason)
		if len(dep.Verdict.Metadata) > 0 {
			keys := make([]string, 0, len(dep.Verdict.Metadata))
			for k := range dep.Verdict.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s: %s\n", k, dep.Verdict.Metadata[k])
			}
		}
	}
}
