package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/danzo-http/internal/config"
	"github.com/tanq16/danzo-http/internal/scheduler"
	"github.com/tanq16/danzo-http/internal/utils"
)

// maxConnections caps workers x connections across a batch.
const maxConnections = 64

// BatchFile groups entries by download type, e.g.
//
//	http:
//	  - link: https://example.com/a.iso
//	    op: isos/a.iso
type BatchFile map[string][]utils.DownloadEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchFile, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			jobs := buildJobsFromBatch(batchFile, settings)
			if len(jobs) == 0 {
				return fmt.Errorf("no valid jobs found in the batch file")
			}
			if err := scheduler.Run(cmd.Context(), jobs, settings.Workers); err != nil {
				return err
			}
			return nil
		},
	}
	return cmd
}

func readBatchFile(path string) (BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var batchFile BatchFile
	if err := yaml.Unmarshal(data, &batchFile); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	return batchFile, nil
}

func buildJobsFromBatch(batchFile BatchFile, cfg config.Config) []utils.DanzoJob {
	connectionsPerLink := cfg.Connections
	if cfg.Workers*connectionsPerLink > maxConnections {
		connectionsPerLink = max(maxConnections/cfg.Workers, 1)
	}

	types := make([]string, 0, len(batchFile))
	for jobType := range batchFile {
		types = append(types, jobType)
	}
	sort.Strings(types)

	var jobs []utils.DanzoJob
	for _, jobType := range types {
		normalizedType := normalizeJobType(jobType)
		if normalizedType == "" {
			log.Warn().Str("type", jobType).Msg("Unknown job type, skipping")
			continue
		}
		for _, entry := range batchFile[jobType] {
			if entry.URL == "" {
				log.Warn().Str("type", jobType).Msg("Empty link, skipping")
				continue
			}
			jobs = append(jobs, utils.DanzoJob{
				JobType:          normalizedType,
				URL:              entry.URL,
				OutputPath:       entry.OutputPath,
				SaveDir:          cfg.SavePath,
				Connections:      connectionsPerLink,
				HTTPClientConfig: globalHTTPConfig,
				Download:         downloadSettings,
				Metadata:         make(map[string]any),
			})
		}
	}
	return jobs
}

func normalizeJobType(jobType string) string {
	switch strings.ToLower(jobType) {
	case "http", "https":
		return "http"
	}
	return ""
}
