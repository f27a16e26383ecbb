package manager

import (
	"context"
	"strings"
	"time"

	"voiced/pkg/types"
)

// StreamPacing spaces simulated token events. Pacing affects wall-clock
// timing only, never event content or order.
type StreamPacing struct {
	Word     time.Duration
	Sentence time.Duration
}

// PacingFor scales the configured base delays by backend class: the
// faster classes stream with shorter delays, baseline-cpu with longer
// ones.
func (m *Manager) PacingFor(c types.Capability) StreamPacing {
	word, sentence := m.wordDelay, m.sentenceDelay
	switch c {
	case types.CapabilityAccelerated, types.CapabilityRemoteAPI:
		word, sentence = word/2, sentence/2
	case types.CapabilityBaselineCPU:
		word, sentence = word*2, sentence*2
	}
	return StreamPacing{Word: word, Sentence: sentence}
}

// isSentenceEnd reports whether a word closes a sentence.
func isSentenceEnd(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// EmitStream replays text as a deterministic event sequence. Words are
// split on single spaces; a word closing a sentence emits one sentence
// event carrying the buffered sentence, any other word emits one word
// event carrying the word and the accumulated text. A trailing partial
// sentence is flushed, and the stream always ends with one complete
// event carrying the full text, even for empty input. No state survives
// the call: the same text always yields the same events in the same
// order, regardless of pacing.
func (m *Manager) EmitStream(ctx context.Context, text string, pacing StreamPacing, fn func(types.StreamEvent)) (string, error) {
	var accumulated []string
	var sentence []string

	wait := func(d time.Duration) error {
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, word := range strings.Split(text, " ") {
		if word == "" {
			continue
		}
		accumulated = append(accumulated, word)
		sentence = append(sentence, word)
		if isSentenceEnd(word) {
			fn(types.StreamEvent{Type: types.StreamSentence, Text: strings.Join(sentence, " ")})
			sentence = sentence[:0]
			if err := wait(pacing.Sentence); err != nil {
				return "", err
			}
			continue
		}
		fn(types.StreamEvent{Type: types.StreamWord, Text: word, Accumulated: strings.Join(accumulated, " ")})
		if err := wait(pacing.Word); err != nil {
			return "", err
		}
	}
	if len(sentence) > 0 {
		fn(types.StreamEvent{Type: types.StreamSentence, Text: strings.Join(sentence, " ")})
	}
	full := strings.Join(accumulated, " ")
	fn(types.StreamEvent{Type: types.StreamComplete, Text: full, Done: true})
	return full, nil
}

// StreamEvents is the channel form of EmitStream for consumers that
// range instead of passing a callback. The channel closes after the
// complete event, or early when ctx is cancelled.
func (m *Manager) StreamEvents(ctx context.Context, text string, pacing StreamPacing) <-chan types.StreamEvent {
	ch := make(chan types.StreamEvent, 8)
	go func() {
		defer close(ch)
		_, _ = m.EmitStream(ctx, text, pacing, func(ev types.StreamEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}
