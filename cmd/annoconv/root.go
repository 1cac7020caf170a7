package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/model-collapse/annoconv/format/all"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/media"
	"github.com/model-collapse/annoconv/media/cvimage"
)

// Version is set at build time
var Version = "0.1.0"

var cfg = viper.New()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annoconv",
		Short: "Convert annotated image datasets between formats",
		Long: `annoconv reads a dataset in one annotation format and writes it in another.

Formats: coco, coco_roboflow, yolo, voc, datumaro

Example:
  annoconv detect ./export
  annoconv convert --from coco_roboflow --to yolo --lossy ./export ./yolo
  annoconv compare --format coco_roboflow ./a ./b`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup()
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
	flags.String("decoder", "std", "Image decoder (std, opencv)")
	flags.Int("workers", 0, "Parallel workers for transforms (0 = one per CPU)")
	for _, name := range []string{"log-level", "log-format", "decoder", "workers"} {
		_ = cfg.BindPFlag(name, flags.Lookup(name))
	}

	cfg.SetEnvPrefix("annoconv")
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	root.AddCommand(newConvertCmd(), newDetectCmd(), newCompareCmd(), newFormatsCmd())
	return root
}

func setup() error {
	if err := logger.Init(logger.Config{
		Level:  cfg.GetString("log-level"),
		Format: cfg.GetString("log-format"),
	}); err != nil {
		return err
	}

	switch d := cfg.GetString("decoder"); d {
	case "std":
		media.SetOpener(nil)
	case "opencv":
		media.SetOpener(cvimage.Open)
	default:
		return fmt.Errorf("unknown decoder %q", d)
	}
	return nil
}

// Execute runs the CLI
func Execute() error {
	root := newRootCmd()
	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}
