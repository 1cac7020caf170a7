package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/transform"
)

func newConvertCmd() *cobra.Command {
	var (
		from, to   string
		subsets    []string
		transforms []string
		remap      map[string]string
		lossy      bool
		saveMedia  bool
	)

	cmd := &cobra.Command{
		Use:   "convert SRC DST",
		Short: "Import SRC and export it to DST in another format",
		Long: `Import SRC and export it to DST in another format.

Without --from the source format is detected. Exports fail when the target
cannot hold an annotation unless --lossy is given, in which case shapes are
reduced to boxes or dropped and unsupported attributes are removed.

Examples:
  annoconv convert --from coco_roboflow --to datumaro ./export ./native
  annoconv convert --to yolo --lossy --transform shapes_to_boxes ./export ./yolo
  annoconv convert --to voc --remap car=vehicle,truck=vehicle ./export ./voc`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			if from == "" {
				var err error
				if from, err = detectOne(src); err != nil {
					return err
				}
			}

			ds, err := format.Import(from, src, format.ImportOptions{Subsets: subsets})
			if err != nil {
				return err
			}

			var ts []transform.Transform
			for _, name := range transforms {
				t, err := transform.ByName(name)
				if err != nil {
					return err
				}
				ts = append(ts, t)
			}
			if len(remap) > 0 {
				ts = append(ts, transform.RemapLabels(remap))
			}
			if len(ts) > 0 {
				if ds, err = transform.Apply(cmd.Context(), ds, ts, transform.WithWorkers(cfg.GetInt("workers"))); err != nil {
					return err
				}
			}

			if err := format.Export(to, ds, dst, format.ExportOptions{Lossy: lossy, SaveMedia: saveMedia}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d items, %d annotations\n", from, to, ds.Len(), ds.AnnotationCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Source format (detected when empty)")
	cmd.Flags().StringVar(&to, "to", "", "Target format")
	cmd.Flags().StringSliceVar(&subsets, "subset", nil, "Only import these subsets")
	cmd.Flags().StringSliceVar(&transforms, "transform", nil, "Transforms to apply: polygons_to_masks, boxes_to_masks, shapes_to_boxes")
	cmd.Flags().StringToStringVar(&remap, "remap", nil, "Rename labels, e.g. car=vehicle; an empty target deletes the label")
	cmd.Flags().BoolVar(&lossy, "lossy", false, "Downgrade or drop what the target format cannot represent")
	cmd.Flags().BoolVar(&saveMedia, "save-media", false, "Copy images next to the exported annotations")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

