package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tanq16/danzo-http/internal/scheduler"
	"github.com/tanq16/danzo-http/internal/utils"
)

func newHTTPCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "http [URL] [--output OUTPUT_PATH]",
		Short: "Download file via HTTP/HTTPS",
		Long: "Download a file over HTTP/HTTPS in parallel segments. Interrupting the download keeps\n" +
			"its temp files; running the same command again resumes it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := utils.DanzoJob{
				JobType:          "http",
				URL:              args[0],
				OutputPath:       outputPath,
				SaveDir:          settings.SavePath,
				Connections:      settings.Connections,
				HTTPClientConfig: globalHTTPConfig,
				Download:         downloadSettings,
				Metadata:         make(map[string]any),
			}
			if err := scheduler.Run(cmd.Context(), []utils.DanzoJob{job}, 1); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (Danzo infers file name if not provided)")
	return cmd
}
