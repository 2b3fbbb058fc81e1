package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/recording"
)

type decoderInfo struct {
	ID         uuid.UUID                `json:"id"`
	Name       string                   `json:"name"`
	Kind       domain.DecoderKind       `json:"kind"`
	State      domain.DecoderState      `json:"state"`
	Montage    domain.Montage           `json:"montage"`
	Classes    []string                 `json:"classes"`
	Pipeline   domain.PipelineConfig    `json:"pipeline"`
	Components int                      `json:"ica_components,omitempty"`
	Excluded   []int                    `json:"excluded_components,omitempty"`
	Report     *domain.EvaluationReport `json:"report,omitempty"`
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <decoder.json>",
		Short: "Print a decoder file summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := recording.LoadDecoder(args[0])
			if err != nil {
				return fmt.Errorf("load decoder: %w", err)
			}
			info := decoderInfo{
				ID:       d.ID,
				Name:     d.Name,
				Kind:     d.Kind,
				State:    d.State,
				Montage:  d.Montage,
				Classes:  d.Classes,
				Pipeline: d.Pipeline,
				Report:   d.Report,
			}
			if d.Artifact != nil {
				info.Components = len(d.Artifact.Unmixing)
				info.Excluded = d.Artifact.Excluded
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	return cmd
}
