package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spend-intake/internal/audit"
	"github.com/spend-intake/internal/classify"
	"github.com/spend-intake/internal/cluster"
	import_pkg "github.com/spend-intake/internal/import"
	"github.com/spend-intake/internal/store"
)

// createImportCmd creates the import subcommand
func createImportCmd(a *app) *cobra.Command {
	var input, sheet string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a supplier file into Postgres, replacing stored suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if sheet == "" {
				sheet = a.cfg.Input.Sheet
			}
			importer := import_pkg.NewSupplierImporter(store.New(conn.DB), a.logger)
			n, err := importer.Import(cmd.Context(), input, sheet)
			if err != nil {
				return fmt.Errorf("failed to import suppliers: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d suppliers\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "supplier file (.xlsx, .csv, .tsv)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default from config)")
	_ = cmd.MarkFlagRequired("input")

	cmd.AddCommand(createImportItemsCmd(a))
	return cmd
}

// createImportItemsCmd adds item codes to the stored item table.
func createImportItemsCmd(a *app) *cobra.Command {
	var input, sheet string

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Add item codes from a file to Postgres for classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			read, added, err := import_pkg.NewItemImporter(store.New(conn.DB), a.logger).Import(cmd.Context(), input, sheet)
			if err != nil {
				return fmt.Errorf("failed to import items: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read %d item codes, %d new\n", read, added)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "item file (.xlsx, .csv, .tsv) with an Item Code column")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default: first sheet)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// createGroupCmd clusters the stored suppliers and saves the run.
func createGroupCmd(a *app) *cobra.Command {
	var (
		runLabel string
		flags    clusterFlags
	)

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Cluster stored suppliers and save the groups as a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.cfg); err != nil {
				return err
			}
			if runLabel == "" {
				runLabel = "run-" + time.Now().UTC().Format("20060102-150405")
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			s := store.New(conn.DB)
			if err := s.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			suppliers, err := s.Suppliers(cmd.Context())
			if err != nil {
				return err
			}
			if len(suppliers) == 0 {
				return errors.New("no suppliers stored; run import first")
			}

			opts, err := a.cfg.ClusterOptions()
			if err != nil {
				return err
			}
			tracker := audit.NewTracker(runLabel, a.logger)
			builder, err := cluster.NewBuilder(opts, a.logger, tracker)
			if err != nil {
				return err
			}
			result, err := builder.Build(cmd.Context(), store.Records(suppliers))
			if err != nil {
				return err
			}

			if err := s.SaveGroups(cmd.Context(), runLabel, suppliers, result.Groups); err != nil {
				return err
			}
			if _, err := tracker.Flush(cmd.Context(), conn.DB); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s: %d suppliers in %d groups (%d scoring failures)\n",
				runLabel, len(suppliers), len(result.Groups), len(result.Failures))
			return nil
		},
	}

	cmd.Flags().StringVar(&runLabel, "run", "", "run label (default: timestamp)")
	flags.register(cmd)
	return cmd
}

// newClassifier builds the chat model classifier from config.
func (a *app) newClassifier() (*classify.Classifier, error) {
	if a.cfg.OpenAI.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	client := classify.NewOpenAIClient(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL)
	return classify.New(client, classify.Options{
		Model:   a.cfg.OpenAI.Model,
		Workers: a.cfg.OpenAI.Workers,
		Timeout: a.cfg.OpenAI.Timeout(),
	}, a.logger), nil
}

// createClassifyCmd classifies stored suppliers with the chat model.
func createClassifyCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Validate and UNSPSC-classify stored suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := a.newClassifier()
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			summary, err := classifier.ClassifyPending(cmd.Context(), store.New(conn.DB), limit)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				a.logger.Warn("Some suppliers were not classified", zap.Int("failed", summary.Failed))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Classified %d of %d suppliers\n", summary.Classified, summary.Attempted)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum suppliers to classify")
	cmd.AddCommand(createClassifyItemsCmd(a))
	return cmd
}

// createClassifyItemsCmd classifies stored items in batches.
func createClassifyItemsCmd(a *app) *cobra.Command {
	var limit, batch int

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Validate and UNSPSC-classify stored item codes in batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || batch < 1 {
				return fmt.Errorf("--limit and --batch must be positive, got %d and %d", limit, batch)
			}
			classifier, err := a.newClassifier()
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			s := store.New(conn.DB)
			if err := s.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			summary, err := classifier.ClassifyItems(cmd.Context(), s, limit, batch)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				a.logger.Warn("Some items were not classified", zap.Int("failed", summary.Failed))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Classified %d of %d items in %d batches; %d items classified in total\n",
				summary.Classified, summary.Attempted, summary.Batches, summary.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum items to attempt")
	cmd.Flags().IntVar(&batch, "batch", 100, "items fetched and classified per batch")
	return cmd
}

// createAuditCmd prints the stored audit trail of a clustering run.
func createAuditCmd(a *app) *cobra.Command {
	var runLabel string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the recorded clustering decisions of a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if runLabel == "" {
				labels, err := store.New(conn.DB).RunLabels(cmd.Context())
				if err != nil {
					return err
				}
				if len(labels) == 0 {
					return errors.New("no stored runs; run group first")
				}
				runLabel = labels[0]
			}

			history, err := audit.History(cmd.Context(), conn.DB, runLabel)
			if err != nil {
				return err
			}
			return writeAudit(cmd.OutOrStdout(), runLabel, history)
		},
	}

	cmd.Flags().StringVar(&runLabel, "run", "", "run label (default: latest)")
	return cmd
}

func writeAudit(out io.Writer, runLabel string, history []audit.Entry) error {
	if _, err := fmt.Fprintf(out, "Run %s: %d audit entries\n", runLabel, len(history)); err != nil {
		return err
	}
	for _, e := range history {
		_, err := fmt.Fprintf(out, "%s  %-16s record %-6d related %-12v %s\n",
			e.RecordedAt.Format(time.RFC3339), e.Kind, e.Record, e.Related, e.Detail)
		if err != nil {
			return err
		}
	}
	return nil
}
