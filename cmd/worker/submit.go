package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mixmaster-audio/pipeline/internal/app"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// newSubmitCommand wires a standalone job-submission path: it reads every
// .wav file in a directory as one stem, stores them as job inputs, and
// pushes a job envelope onto the queue for a running worker to pick up.
// This is the operator-facing complement to the worker loop itself — a
// deployment needs some way to get a job in, and this is the minimal one
// that doesn't require standing up an HTTP surface (explicitly out of
// scope for this runtime).
func newSubmitCommand() *cobra.Command {
	var stemsDir string
	var enabledStages []string
	var stylePreset string
	var uploadMode string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "submit a job from a directory of WAV stems",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer a.Close()

			if stemsDir == "" {
				stemsDir = a.Cfg.MediaDir
			}

			jobID := uuid.NewString()
			inputs, err := loadWAVDirectory(stemsDir)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no .wav files found in %s", stemsDir)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			for name, data := range inputs {
				if err := a.Store.PutInput(ctx, jobID, name, data); err != nil {
					return fmt.Errorf("store input %s: %w", name, err)
				}
			}

			var stageIDs []string
			if len(enabledStages) > 0 {
				stageIDs = enabledStages
			}
			metadata := map[string]any{}
			if stylePreset != "" {
				metadata["style_preset"] = stylePreset
			}
			if uploadMode != "" {
				metadata["upload_mode"] = uploadMode
			}
			if err := a.Queue.Push(ctx, ports.JobEnvelope{
				JobID:           jobID,
				MediaRef:        stemsDir,
				EnabledStageIDs: stageIDs,
				Metadata:        metadata,
			}); err != nil {
				return fmt.Errorf("push job: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s (%d stems)\n", jobID, len(inputs))
			return nil
		},
	}

	cmd.Flags().StringVar(&stemsDir, "stems-dir", "", "directory of .wav stem files (defaults to MIX_MEDIA_DIR)")
	cmd.Flags().StringSliceVar(&enabledStages, "stages", nil, "comma-separated stage ids to run (defaults to every contract)")
	cmd.Flags().StringVar(&stylePreset, "style-preset", "", "style preset name carried in the job's metadata")
	cmd.Flags().StringVar(&uploadMode, "upload-mode", "", "upload-mode hint carried in the job's metadata (e.g. stems, mixdown)")
	return cmd
}

func loadWAVDirectory(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read stems dir %s: %w", dir, err)
	}
	out := map[string][]byte{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read stem %s: %w", e.Name(), err)
		}
		out[e.Name()] = data
	}
	return out, nil
}
