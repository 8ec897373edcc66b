package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"

	"cms-graphql/internal/backref"
	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/naming"
	"cms-graphql/internal/schema"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// buildModel runs the same parse, prepare and build steps the server runs
// on every schema refresh.
func buildModel(path string, logger *slog.Logger) (*schema.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content model: %w", err)
	}
	model, err := contentmodel.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse content model %s: %w", path, err)
	}
	prepared, err := contentmodel.Prepare(model, naming.New(naming.DefaultConfig(), logger))
	if err != nil {
		return nil, err
	}
	return schema.Build(prepared, schema.Options{Logger: logger})
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <content-model>",
		Short: "Check that a content model builds a GraphQL schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := buildModel(args[0], opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			var declared, skipped int
			for _, resolutions := range result.Backrefs {
				for _, res := range resolutions {
					declared++
					if res.Kind == backref.KindSkipped {
						skipped++
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d content types, %d backrefs (%d skipped), fingerprint %s\n",
				len(result.Registry), declared, skipped, result.Model.Fingerprint())
			return nil
		},
	}
}

// backrefRow is one materialization decision as printed by the backrefs command.
type backrefRow struct {
	Target      string `yaml:"target"`
	Field       string `yaml:"field"`
	Source      string `yaml:"source"`
	SourceField string `yaml:"source_field"`
	Cardinality string `yaml:"cardinality"`
	Kind        string `yaml:"kind"`
}

func backrefRows(result *schema.Result) []backrefRow {
	var rows []backrefRow
	for _, ct := range result.Model.ContentTypes {
		for _, res := range result.Backrefs[ct.ID] {
			cardinality := string(res.Backref.Cardinality)
			if cardinality == "" {
				cardinality = "structural"
			}
			rows = append(rows, backrefRow{
				Target:      ct.ID,
				Field:       res.Backref.BackrefFieldName,
				Source:      res.Backref.CtID,
				SourceField: res.Backref.FieldID,
				Cardinality: cardinality,
				Kind:        string(res.Kind),
			})
		}
	}
	return rows
}

func newBackrefsCmd(opts *rootOptions) *cobra.Command {
	var format string
	var onlySkipped bool
	cmd := &cobra.Command{
		Use:   "backrefs <content-model>",
		Short: "List derived backrefs and how each is materialized",
		Long: `List every backref the content model declares or derives, per target
content type, together with the build decision: "type" for a concrete
source type, "basePage" for the shared page interface, and "skipped" when
no GraphQL type exists for the source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := buildModel(args[0], opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			rows := backrefRows(result)
			if onlySkipped {
				rows = slices.DeleteFunc(rows, func(r backrefRow) bool {
					return r.Kind != string(backref.KindSkipped)
				})
			}
			return writeBackrefs(cmd.OutOrStdout(), format, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format (table, yaml)")
	cmd.Flags().BoolVar(&onlySkipped, "skipped", false, "only list backrefs that were not materialized")
	return cmd
}

func writeBackrefs(w io.Writer, format string, rows []backrefRow) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if rows == nil {
			rows = []backrefRow{}
		}
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TARGET\tFIELD\tSOURCE\tSOURCE FIELD\tCARDINALITY\tKIND")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Target, r.Field, r.Source, r.SourceField, r.Cardinality, r.Kind)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (use table or yaml)", format)
	}
}
