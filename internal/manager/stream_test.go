package manager

import (
	"context"
	"reflect"
	"testing"
	"time"

	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/pkg/types"
)

func collectEvents(t *testing.T, m *Manager, text string, pacing StreamPacing) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	full, err := m.EmitStream(context.Background(), text, pacing, func(ev types.StreamEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("EmitStream: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Text != full {
		t.Fatalf("complete event does not carry the returned text")
	}
	return events
}

func TestEmitStreamCanonicalSequence(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	events := collectEvents(t, m, "Hello there. How are you?", StreamPacing{})

	want := []types.StreamEvent{
		{Type: types.StreamWord, Text: "Hello", Accumulated: "Hello"},
		{Type: types.StreamSentence, Text: "Hello there."},
		{Type: types.StreamWord, Text: "How", Accumulated: "Hello there. How"},
		{Type: types.StreamWord, Text: "are", Accumulated: "Hello there. How are"},
		{Type: types.StreamSentence, Text: "How are you?"},
		{Type: types.StreamComplete, Text: "Hello there. How are you?", Done: true},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events =\n%#v\nwant\n%#v", events, want)
	}
}

func TestEmitStreamFlushesTrailingSentence(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	events := collectEvents(t, m, "Goodbye for now", StreamPacing{})

	want := []types.StreamEvent{
		{Type: types.StreamWord, Text: "Goodbye", Accumulated: "Goodbye"},
		{Type: types.StreamWord, Text: "for", Accumulated: "Goodbye for"},
		{Type: types.StreamWord, Text: "now", Accumulated: "Goodbye for now"},
		{Type: types.StreamSentence, Text: "Goodbye for now"},
		{Type: types.StreamComplete, Text: "Goodbye for now", Done: true},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events =\n%#v\nwant\n%#v", events, want)
	}
}

func TestEmitStreamEmptyInput(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	events := collectEvents(t, m, "", StreamPacing{})
	if len(events) != 1 {
		t.Fatalf("events = %v, want a single complete", events)
	}
	if events[0].Type != types.StreamComplete || !events[0].Done {
		t.Fatalf("terminal event = %+v", events[0])
	}
}

func TestEmitStreamExclamationAndQuestion(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	events := collectEvents(t, m, "Stop! Why?", StreamPacing{})
	want := []types.StreamEvent{
		{Type: types.StreamSentence, Text: "Stop!"},
		{Type: types.StreamSentence, Text: "Why?"},
		{Type: types.StreamComplete, Text: "Stop! Why?", Done: true},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events =\n%#v\nwant\n%#v", events, want)
	}
}

func TestPacingAffectsTimingOnly(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	text := "One two. Three four five. Six"
	fast := collectEvents(t, m, text, StreamPacing{})
	slow := collectEvents(t, m, text, StreamPacing{Word: 2 * time.Millisecond, Sentence: 3 * time.Millisecond})
	if !reflect.DeepEqual(fast, slow) {
		t.Fatalf("pacing changed event content:\n%#v\nvs\n%#v", fast, slow)
	}
}

func TestPacingForScalesByBackendClass(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})

	base := m.PacingFor(types.CapabilityPortable)
	if base.Word != defaultWordDelay || base.Sentence != defaultSentenceDelay {
		t.Fatalf("portable pacing = %+v", base)
	}
	if got := m.PacingFor(types.CapabilityAccelerated); got.Word != base.Word/2 {
		t.Fatalf("accelerated word delay = %s", got.Word)
	}
	if got := m.PacingFor(types.CapabilityRemoteAPI); got.Sentence != base.Sentence/2 {
		t.Fatalf("remote sentence delay = %s", got.Sentence)
	}
	if got := m.PacingFor(types.CapabilityBaselineCPU); got.Word != base.Word*2 {
		t.Fatalf("baseline word delay = %s", got.Word)
	}
}

func TestStreamEventsChannelForm(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{})
	var viaChannel []types.StreamEvent
	for ev := range m.StreamEvents(context.Background(), "Hello there. How are you?", StreamPacing{}) {
		viaChannel = append(viaChannel, ev)
	}
	viaCallback := collectEvents(t, m, "Hello there. How are you?", StreamPacing{})
	if !reflect.DeepEqual(viaChannel, viaCallback) {
		t.Fatalf("channel and callback forms diverge:\n%#v\nvs\n%#v", viaChannel, viaCallback)
	}
}
