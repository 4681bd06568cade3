package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/audiolibrelab/voicenote/internal/play"
	"github.com/audiolibrelab/voicenote/internal/service"
)

const validStepsHelp = "valid: r=record, c=convert, s=send, p=play"

// pipelineState is what one step hands to the next
type pipelineState struct {
	// file is the latest file on disk: the saved recording, the converted note or the input
	file string
	// recorded is set while the file is a recording still pending in the service
	recorded bool
}

// waitForEnter blocks until the user presses Enter or ctx is done
var waitForEnter = func(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		bufio.NewScanner(os.Stdin).Scan()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// executePipeline runs the steps that follow startStep in the pipeline
func executePipeline(ctx context.Context, svc *service.VoiceNoteService, st *pipelineState, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	return runSteps(ctx, svc, st, steps[startIndex+1:])
}

func runSteps(ctx context.Context, svc *service.VoiceNoteService, st *pipelineState, steps []rune) error {
	for i, step := range steps {
		fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

		switch step {
		case 'r':
			path, err := recordOnce(ctx, svc, func() {
				fmt.Println("Pipeline: recording - Press Enter to stop...")
				waitForEnter(ctx)
			})
			if err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
			st.file, st.recorded = path, true
			fmt.Printf("Pipeline: recording saved to %s\n", path)

		case 'c':
			if st.file == "" {
				return fmt.Errorf("pipeline convert failed: no file to convert")
			}
			out, err := svc.ConvertFile(ctx, st.file, "")
			if err != nil {
				return fmt.Errorf("pipeline convert failed: %s", service.Notice(err))
			}
			st.file, st.recorded = out, false
			fmt.Printf("Pipeline: voice note written to %s\n", out)

		case 's':
			var res *service.SendResult
			var err error
			if st.recorded {
				res, err = svc.SendPending(ctx, conversationID, caption)
			} else if st.file != "" {
				res, err = svc.SendFile(ctx, st.file, conversationID, caption)
			} else {
				return fmt.Errorf("pipeline send failed: nothing to send")
			}
			if err != nil {
				return fmt.Errorf("pipeline send failed: %s", service.Notice(err))
			}
			st.recorded = false
			printSendResult(res)

		case 'p':
			if st.file == "" {
				return fmt.Errorf("pipeline play failed: no file to play")
			}
			if err := play.New().Play(st.file); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
			fmt.Println("Pipeline: playback completed")

		default:
			return fmt.Errorf("unknown pipeline step: '%c' (%s)", step, validStepsHelp)
		}
	}

	return nil
}

// recordOnce starts a recording, calls wait, then stops and saves it.
// The recording also stays pending in the service for a later send step.
func recordOnce(ctx context.Context, svc *service.VoiceNoteService, wait func()) (string, error) {
	if err := svc.StartRecording(ctx); err != nil {
		return "", errors.New(service.Notice(err))
	}

	wait()

	rec, err := svc.StopRecording()
	if err != nil {
		return "", errors.New(service.Notice(err))
	}
	fmt.Printf("Recorded %s (%s, %d bytes)\n", rec.Duration.Round(100*time.Millisecond), rec.MimeType, len(rec.Data))

	return svc.SaveRecording(rec)
}

func printSendResult(res *service.SendResult) {
	fmt.Printf("Sent %s (%s, %d bytes)\n", res.FileName, res.MimeType, res.ByteSize)
	if res.Converted {
		fmt.Println("  converted to Ogg/Opus before upload")
	}
	fmt.Printf("  media: %s\n", res.MediaURL)
	if res.MessageID != "" {
		fmt.Printf("  message: %s\n", res.MessageID)
	}
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'c': true, // convert
		's': true, // send
		'p': true, // play
	}

	for _, step := range strings.ToLower(pipeline) {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (%s)", step, validStepsHelp)
		}
	}

	if strings.ContainsRune(strings.ToLower(pipeline), 's') && conversationID == "" {
		return fmt.Errorf("pipeline step 's' requires --to <conversation-id>")
	}

	return nil
}
