package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"eeg-decoder-service/internal/core/services"
	"eeg-decoder-service/internal/recording"
)

func evaluateCmd() *cobra.Command {
	var decoderPath, recPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a saved decoder on a held-out labelled recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := recording.LoadDecoder(decoderPath)
			if err != nil {
				return fmt.Errorf("load decoder: %w", err)
			}
			rec, err := recording.LoadCSV(recPath, d.Montage.SampleRate, d.Montage.EOGChannels)
			if err != nil {
				return fmt.Errorf("load recording: %w", err)
			}

			store := newDecoderStore()
			if err := store.Create(cmd.Context(), d); err != nil {
				return err
			}
			svc := services.NewDecoderService(store, nil, nil, services.DecoderServiceConfig{})
			report, err := svc.Evaluate(cmd.Context(), d.ProjectID, d.ID, rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&decoderPath, "decoder", "d", "decoder.json", "decoder file")
	cmd.Flags().StringVarP(&recPath, "recording", "r", "", "labelled recording (csv)")
	_ = cmd.MarkFlagRequired("recording")
	return cmd
}
