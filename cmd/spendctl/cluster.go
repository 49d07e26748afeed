package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spend-intake/internal/audit"
	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/config"
	"github.com/spend-intake/internal/hierarchy"
	import_pkg "github.com/spend-intake/internal/import"
)

// clusterFlags are the per-run overrides of the cluster config section.
type clusterFlags struct {
	threshold int
	workers   int
	gate      string
	limit     int
	order     string
}

func (f *clusterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.threshold, "threshold", cluster.DefaultThreshold, "minimum similarity score (0-100)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel scoring workers (default: config or CPU count)")
	cmd.Flags().StringVar(&f.gate, "gate", string(cluster.GateSubstring), "candidate gate: substring or all")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "keep only the best N matches per record (gate=all)")
	cmd.Flags().StringVar(&f.order, "order", string(hierarchy.OrderSpend), "group order: spend, total or input")
}

// apply copies explicitly set flags over cfg and revalidates it.
func (f *clusterFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Cluster.Threshold = f.threshold
	}
	if flags.Changed("workers") {
		cfg.Cluster.Workers = f.workers
	}
	if flags.Changed("gate") {
		cfg.Cluster.Gate = f.gate
	}
	if flags.Changed("limit") {
		cfg.Cluster.Limit = f.limit
	}
	if flags.Changed("order") {
		cfg.Cluster.Order = f.order
	}
	return cfg.Validate()
}

// buildFromFile loads input and clusters it with the configured options.
func (a *app) buildFromFile(cmd *cobra.Command, input, sheet string, tracker *audit.Tracker) ([]cluster.Record, *cluster.Result, error) {
	if sheet == "" {
		sheet = a.cfg.Input.Sheet
	}
	records, err := import_pkg.LoadFile(input, sheet)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("Loaded suppliers", zap.String("file", input), zap.Int("records", len(records)))

	opts, err := a.cfg.ClusterOptions()
	if err != nil {
		return nil, nil, err
	}
	builder, err := cluster.NewBuilder(opts, a.logger, tracker)
	if err != nil {
		return nil, nil, err
	}
	result, err := builder.Build(cmd.Context(), records)
	if err != nil {
		return nil, nil, err
	}
	return records, result, nil
}

func createClusterCmd(a *app) *cobra.Command {
	var (
		input  string
		sheet  string
		output string
		flags  clusterFlags
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group similar supplier names and write a hierarchical report",
		Long: `Reads a supplier sheet (.xlsx, .csv or tab-separated), groups suppliers whose
names are similar enough, and writes each group as a parent row carrying the
group's total spend followed by its member rows. The output format follows
the output file extension; "-" writes CSV to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.cfg); err != nil {
				return err
			}
			order, err := hierarchy.ParseOrder(a.cfg.Cluster.Order)
			if err != nil {
				return err
			}

			tracker := audit.NewTracker("cluster", a.logger)
			records, result, err := a.buildFromFile(cmd, input, sheet, tracker)
			if err != nil {
				return err
			}

			rows := hierarchy.Rows(hierarchy.Sort(result.Groups, records, order), records)
			if err := writeReport(cmd, output, rows); err != nil {
				return err
			}

			if len(result.Failures) > 0 {
				a.logger.Warn("Some suppliers could not be scored and were kept on their own",
					zap.Int("count", len(result.Failures)))
			}
			a.logger.Info("Cluster run complete",
				zap.Int("suppliers", len(records)),
				zap.Int("groups", len(result.Groups)),
				zap.Any("audit", tracker.Counts()),
				zap.String("output", output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "supplier file (.xlsx, .csv, .tsv)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "hierarchical_suppliers.xlsx", "report file (.xlsx or .csv), or - for stdout")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func writeReport(cmd *cobra.Command, output string, rows []hierarchy.Row) error {
	if output == "-" {
		return hierarchy.WriteCSV(cmd.OutOrStdout(), rows)
	}

	switch strings.ToLower(filepath.Ext(output)) {
	case ".xlsx":
		return hierarchy.SaveXLSX(output, rows)
	case ".csv":
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		if err := hierarchy.WriteCSV(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want .xlsx or .csv)", output)
	}
}

func createLookupCmd(a *app) *cobra.Command {
	var (
		input string
		sheet string
		flags clusterFlags
	)

	cmd := &cobra.Command{
		Use:   "lookup NAME",
		Short: "Show the group a supplier name ends up in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.cfg); err != nil {
				return err
			}

			tracker := audit.NewTracker("lookup", a.logger)
			records, result, err := a.buildFromFile(cmd, input, sheet, tracker)
			if err != nil {
				return err
			}

			names := cluster.NewNameIndex(records, a.logger, tracker)
			idx, ok := names.Resolve(args[0])
			if !ok {
				return fmt.Errorf("supplier %q not found in %s", args[0], input)
			}

			out := cmd.OutOrStdout()
			for _, g := range result.Groups {
				if !containsIndex(g.Indices(), idx) {
					continue
				}
				rep := records[g.Representative]
				fmt.Fprintf(out, "%s (row %d) belongs to %s (row %d)\n",
					records[idx].Name, records[idx].OriginalOrder, rep.Name, rep.OriginalOrder)
				fmt.Fprintf(out, "Group total spend: %.2f across %d suppliers\n", g.TotalSpend, g.Size())
				for _, m := range g.Members {
					fmt.Fprintf(out, "  %-40s %12.2f\n", records[m].Name, records[m].Spend)
				}
				break
			}
			if dupes := names.All(args[0]); len(dupes) > 1 {
				fmt.Fprintf(out, "Note: %d rows share this exact name; the first was used\n", len(dupes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "supplier file (.xlsx, .csv, .tsv)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default from config)")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func containsIndex(indices []int, idx int) bool {
	for _, i := range indices {
		if i == idx {
			return true
		}
	}
	return false
}
