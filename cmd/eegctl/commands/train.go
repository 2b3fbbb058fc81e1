package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/services"
	"eeg-decoder-service/internal/recording"
)

type trainSummary struct {
	ID      uuid.UUID                `json:"id"`
	Name    string                   `json:"name"`
	Kind    domain.DecoderKind       `json:"kind"`
	Classes []string                 `json:"classes"`
	Output  string                   `json:"output"`
	Report  *domain.EvaluationReport `json:"report"`
}

func trainCmd() *cobra.Command {
	var (
		recPath      string
		rate         float64
		eog          []string
		kind         string
		name         string
		classes      []string
		pipelinePath string
		optionsPath  string
		folds        int
		workers      int
		seed         int64
		out          string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Calibrate a decoder from a labelled recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseDecoderKind(kind)
			if err != nil {
				return err
			}
			rec, err := recording.LoadCSV(recPath, rate, eog)
			if err != nil {
				return fmt.Errorf("load recording: %w", err)
			}

			cfg := domain.DefaultPipelineConfig(rate)
			if pipelinePath != "" {
				if err := readJSON(pipelinePath, &cfg); err != nil {
					return fmt.Errorf("load pipeline: %w", err)
				}
			}
			var opts *classify.Options
			if optionsPath != "" {
				o := classify.DefaultOptions()
				if err := readJSON(optionsPath, &o); err != nil {
					return fmt.Errorf("load options: %w", err)
				}
				opts = &o
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(recPath), filepath.Ext(recPath))
			}

			svc := services.NewDecoderService(newDecoderStore(), nil, nil, services.DecoderServiceConfig{
				Folds:       folds,
				EvalWorkers: workers,
				Seed:        seed,
			})
			d, err := svc.Train(cmd.Context(), uuid.New(), services.TrainRequest{
				Name:      name,
				Kind:      k,
				Pipeline:  cfg,
				Classes:   classes,
				Options:   opts,
				Recording: rec,
			})
			if err != nil {
				return err
			}
			if err := recording.SaveDecoder(out, d); err != nil {
				return fmt.Errorf("save decoder: %w", err)
			}
			log.WithFields(log.Fields{"decoder_id": d.ID, "output": out}).Info("Decoder saved")

			return printJSON(cmd.OutOrStdout(), trainSummary{
				ID:      d.ID,
				Name:    d.Name,
				Kind:    d.Kind,
				Classes: d.Classes,
				Output:  out,
				Report:  d.Report,
			})
		},
	}

	cmd.Flags().StringVarP(&recPath, "recording", "r", "", "calibration recording (csv)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "sample rate in Hz")
	cmd.Flags().StringSliceVar(&eog, "eog", nil, "EOG reference channels")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(domain.KindCSPLDA), "decoder kind")
	cmd.Flags().StringVar(&name, "name", "", "decoder name (default: recording file name)")
	cmd.Flags().StringSliceVar(&classes, "classes", nil, "class order (default: first-seen event labels)")
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline config (json)")
	cmd.Flags().StringVar(&optionsPath, "options", "", "classifier options (json)")
	cmd.Flags().IntVar(&folds, "folds", 5, "cross-validation folds")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent folds")
	cmd.Flags().Int64Var(&seed, "seed", 0, "fold assignment seed")
	cmd.Flags().StringVarP(&out, "out", "o", "decoder.json", "output decoder file")
	_ = cmd.MarkFlagRequired("recording")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
