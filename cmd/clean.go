package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanq16/danzo-http/internal/output"
	"github.com/tanq16/danzo-http/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary files",
		Long:  "Remove the working directories of interrupted downloads below path (default: current directory).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			removed, err := utils.Clean(dir)
			if err != nil {
				output.PrintError("Error cleaning up temporary files")
				return err
			}
			if removed == 0 {
				output.PrintInfo("No temporary files found in " + dir)
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d interrupted download(s)", removed))
			return nil
		},
	}
}
