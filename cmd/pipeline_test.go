package cmd

import (
	"context"
	"strings"
	"testing"
)

func withPipeline(t *testing.T, steps, to string) {
	t.Helper()
	prevPipeline, prevTo := pipeline, conversationID
	pipeline, conversationID = steps, to
	t.Cleanup(func() { pipeline, conversationID = prevPipeline, prevTo })
}

func TestValidatePipeline(t *testing.T) {
	tests := []struct {
		steps   string
		to      string
		wantErr string
	}{
		{"", "", ""},
		{"rcp", "", ""},
		{"RS", "conv-1", ""},
		{"rm", "", "invalid pipeline step: 'm'"},
		{"rs", "", "requires --to"},
	}

	for _, tt := range tests {
		withPipeline(t, tt.steps, tt.to)
		err := validatePipeline()
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("pipeline %q: unexpected error: %v", tt.steps, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("pipeline %q: expected error containing %q, got %v", tt.steps, tt.wantErr, err)
		}
	}
}

func TestExecutePipeline_StepNotInPipeline(t *testing.T) {
	withPipeline(t, "cp", "")

	err := executePipeline(context.Background(), nil, &pipelineState{file: "memo.ogg"}, 'r')
	if err == nil || !strings.Contains(err.Error(), "step 'r' not found") {
		t.Errorf("Expected missing step error, got: %v", err)
	}
}

func TestExecutePipeline_Empty(t *testing.T) {
	withPipeline(t, "", "")

	if err := executePipeline(context.Background(), nil, &pipelineState{}, 'r'); err != nil {
		t.Errorf("Expected no error for empty pipeline, got: %v", err)
	}
}

func TestRunSteps_MissingInputs(t *testing.T) {
	tests := []struct {
		step    rune
		wantErr string
	}{
		{'c', "no file to convert"},
		{'s', "nothing to send"},
		{'p', "no file to play"},
		{'x', "unknown pipeline step"},
	}

	for _, tt := range tests {
		err := runSteps(context.Background(), nil, &pipelineState{}, []rune{tt.step})
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("step '%c': expected error containing %q, got %v", tt.step, tt.wantErr, err)
		}
	}
}
