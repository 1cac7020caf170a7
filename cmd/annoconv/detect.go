package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
)

func detectOne(path string) (string, error) {
	names := format.Detect(path)
	switch len(names) {
	case 0:
		return "", dserrors.UnsupportedFormat("no known format matches").WithFile(path)
	case 1:
		return names[0], nil
	}
	return "", dserrors.UnsupportedFormat(fmt.Sprintf("ambiguous format (%s), pass --from", strings.Join(names, ", "))).
		WithFile(path)
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect PATH",
		Short: "Print the formats PATH looks like",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := format.Detect(args[0])
			if len(names) == 0 {
				return dserrors.UnsupportedFormat("no known format matches").WithFile(args[0])
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the supported formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, n := range format.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
