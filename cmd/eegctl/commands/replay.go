package commands

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/pipeline"
	"eeg-decoder-service/internal/recording"
)

func replayCmd() *cobra.Command {
	var (
		decoderPath string
		recPath     string
		blockSize   int
		realtime    bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Stream a recording through a saved decoder, one prediction per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if blockSize <= 0 {
				return fmt.Errorf("block size must be positive, got %d", blockSize)
			}
			d, model, err := recording.LoadDecoder(decoderPath)
			if err != nil {
				return fmt.Errorf("load decoder: %w", err)
			}
			rec, err := recording.LoadCSV(recPath, d.Montage.SampleRate, d.Montage.EOGChannels)
			if err != nil {
				return fmt.Errorf("load recording: %w", err)
			}
			if !slices.Equal(rec.Montage.Channels, d.Montage.Channels) {
				return fmt.Errorf("%w: recording channels %v, decoder %v", domain.ErrChannelMismatch, rec.Montage.Channels, d.Montage.Channels)
			}

			proc, err := pipeline.NewProcessor(uuid.New(), d, model)
			if err != nil {
				return err
			}

			var tick <-chan time.Time
			if realtime {
				period := time.Duration(float64(blockSize) / d.Montage.SampleRate * float64(time.Second))
				ticker := time.NewTicker(period)
				defer ticker.Stop()
				tick = ticker.C
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			n := rec.Len()
			for start, seq := 0, uint64(0); start < n; seq++ {
				end := min(start+blockSize, n)
				samples := make([][]float64, len(rec.Samples))
				for c := range samples {
					samples[c] = rec.Samples[c][start:end]
				}
				start = end

				if tick != nil {
					select {
					case <-tick:
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					}
				}

				preds, err := proc.Push(domain.Block{Seq: seq, Timestamp: time.Now(), Samples: samples})
				if err != nil {
					log.WithError(err).WithField("seq", seq).Warn("Block rejected")
					continue
				}
				for _, p := range preds {
					if err := enc.Encode(p); err != nil {
						return err
					}
				}
			}

			stats := proc.Stats()
			log.WithFields(log.Fields{
				"blocks":          stats.BlocksIngested,
				"windows":         stats.WindowsProcessed,
				"rejected":        stats.WindowsRejected,
				"mean_latency_ms": stats.MeanLatencyMs,
			}).Info("Replay finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&decoderPath, "decoder", "d", "decoder.json", "decoder file")
	cmd.Flags().StringVarP(&recPath, "recording", "r", "", "recording to replay (csv)")
	cmd.Flags().IntVarP(&blockSize, "block", "b", 32, "samples per block")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace blocks at the sample rate")
	_ = cmd.MarkFlagRequired("recording")
	return cmd
}
