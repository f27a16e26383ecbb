package manager

import (
	"context"
	"fmt"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

// ReplyOptions configures one speech-to-speech round trip. Empty model
// keys fall back to the first catalog key serving each task.
type ReplyOptions struct {
	STTModel string
	GenModel string
	TTSModel string
	Voice    string
	OnEvent  func(types.StreamEvent)
}

// ReplyResult is the product of one round trip.
type ReplyResult struct {
	Transcript string
	Text       string
	Audio      audio.Buffer
}

// Reply drives the full pipeline: transcribe the utterance, generate a
// reply from the transcript, synthesize the reply. All three models must
// already be loaded; the first failing stage aborts the round trip.
func (m *Manager) Reply(ctx context.Context, in audio.Buffer, opts ReplyOptions) (ReplyResult, error) {
	var out ReplyResult

	sttKey, err := m.resolveKey(opts.STTModel, types.TaskSpeechToText)
	if err != nil {
		return out, err
	}
	genKey, err := m.resolveKey(opts.GenModel, types.TaskTextGeneration)
	if err != nil {
		return out, err
	}
	ttsKey, err := m.resolveKey(opts.TTSModel, types.TaskTextToSpeech)
	if err != nil {
		return out, err
	}

	out.Transcript, err = m.Transcribe(ctx, sttKey, in)
	if err != nil {
		return out, err
	}
	out.Text, err = m.Generate(ctx, genKey, out.Transcript, GenerateOptions{OnEvent: opts.OnEvent})
	if err != nil {
		return out, err
	}
	out.Audio, err = m.Speak(ctx, ttsKey, out.Text, opts.Voice)
	if err != nil {
		return out, err
	}

	m.publisher.Publish(Event{Name: "reply_complete", Fields: map[string]any{
		"transcript_len": len(out.Transcript),
		"reply_len":      len(out.Text),
		"audio_ms":       out.Audio.Duration().Milliseconds(),
	}})
	return out, nil
}

// resolveKey returns the explicit key when given, otherwise the first
// catalog key serving the task.
func (m *Manager) resolveKey(explicit string, task types.TaskKind) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if key, ok := m.keyFor(task); ok {
		return key, nil
	}
	return "", fmt.Errorf("no catalog model serves %s", task)
}
