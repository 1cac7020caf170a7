package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/format"
)

// errDiffer is returned when the datasets are not equal.
var errDiffer = errors.New("datasets differ")

func newCompareCmd() *cobra.Command {
	var (
		formatA, formatB string
		subsets          []string
		tolerance        float64
		ignoreMedia      bool
	)

	cmd := &cobra.Command{
		Use:   "compare EXPECTED ACTUAL",
		Short: "Report the first difference between two datasets",
		Long: `Import both datasets and report the first difference between them.

Items are matched by id and subset. Coordinates are compared within
--tolerance; attribute values must match in type as well as value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			load := func(name, path string) (*dataset.Dataset, error) {
				if name == "" {
					var err error
					if name, err = detectOne(path); err != nil {
						return nil, err
					}
				}
				return format.Import(name, path, format.ImportOptions{Subsets: subsets})
			}

			if formatB == "" {
				formatB = formatA
			}
			want, err := load(formatA, args[0])
			if err != nil {
				return err
			}
			got, err := load(formatB, args[1])
			if err != nil {
				return err
			}

			opts := []dataset.CompareOption{dataset.WithTolerance(tolerance)}
			if ignoreMedia {
				opts = append(opts, dataset.IgnoreMedia())
			}
			if d := dataset.Compare(want, got, opts...); d != nil {
				fmt.Fprintln(cmd.OutOrStdout(), d)
				return errDiffer
			}
			fmt.Fprintln(cmd.OutOrStdout(), "equal")
			return nil
		},
	}

	cmd.Flags().StringVar(&formatA, "format", "", "Format of EXPECTED (detected when empty)")
	cmd.Flags().StringVar(&formatB, "actual-format", "", "Format of ACTUAL (defaults to --format)")
	cmd.Flags().StringSliceVar(&subsets, "subset", nil, "Only compare these subsets")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-3, "Absolute tolerance for coordinates")
	cmd.Flags().BoolVar(&ignoreMedia, "ignore-media", false, "Skip image size and pixel checks")
	return cmd
}
