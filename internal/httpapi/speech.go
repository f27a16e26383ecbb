package httpapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"voiced/internal/audio"
	"voiced/internal/manager"
	"voiced/pkg/types"
)

// readAudio extracts a WAV upload from the request: either the raw body
// or a multipart "file" field. On failure it writes the error response
// and returns false.
func readAudio(w http.ResponseWriter, r *http.Request) (audio.Buffer, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	var src io.Reader = r.Body
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, `multipart upload needs a "file" field`)
			return audio.Buffer{}, false
		}
		defer f.Close()
		src = f
	}

	buf, err := audio.DecodeWAV(src)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "audio upload too large")
			return audio.Buffer{}, false
		}
		writeJSONError(w, http.StatusBadRequest, "decode wav: "+err.Error())
		return audio.Buffer{}, false
	}
	return buf, true
}

// handleTranscribe converts an uploaded WAV into text. The logical model
// defaults to the catalog's speech-to-text entry and can be overridden
// with the model query parameter.
//
//	@Summary  Transcribe speech
//	@Tags     inference
//	@Accept   audio/wav
//	@Produce  json
//	@Param    model query string false "logical model key"
//	@Success  200 {object} types.TranscribeResponse
//	@Failure  409 {object} types.ErrorResponse
//	@Router   /v1/transcribe [post]
func handleTranscribe(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf, ok := readAudio(w, r)
		if !ok {
			return
		}
		model := r.URL.Query().Get("model")
		if model == "" {
			model = defaultSTTModel
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		start := time.Now()
		text, err := svc.Transcribe(ctx, model, buf)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, types.TranscribeResponse{Text: text})
		logRequest(r, requestLogLevel(r), "transcribe complete", map[string]string{
			"model": model,
			"audio": buf.Duration().String(),
			"dur":   time.Since(start).String(),
		})
	}
}

// handleSpeak synthesizes speech and responds with a WAV body.
//
//	@Summary  Synthesize speech
//	@Tags     inference
//	@Accept   json
//	@Produce  audio/wav
//	@Param    request body types.SpeakRequest true "synthesis request"
//	@Success  200 {string} binary "WAV audio"
//	@Failure  409 {object} types.ErrorResponse
//	@Router   /v1/speak [post]
func handleSpeak(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SpeakRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		if req.Model == "" {
			req.Model = defaultTTSModel
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		buf, err := svc.Speak(ctx, req.Model, req.Text, req.Voice)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		if err := buf.EncodeWAV(w); err != nil && zlog != nil {
			zlog.Error().Err(err).Msg("writing wav response")
		}
	}
}

// handleReply drives the full speech-to-speech round trip: WAV in, JSON
// out with the transcript, the generated text and the spoken reply as
// base64 WAV. Voice and per-stage models come from query parameters.
//
//	@Summary  Speech-to-speech round trip
//	@Tags     inference
//	@Accept   audio/wav
//	@Produce  json
//	@Param    voice query string false "voice name"
//	@Success  200 {object} types.ReplyResponse
//	@Failure  409 {object} types.ErrorResponse
//	@Failure  502 {object} types.ErrorResponse
//	@Router   /v1/reply [post]
func handleReply(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := readAudio(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		opts := manager.ReplyOptions{
			STTModel: q.Get("stt_model"),
			GenModel: q.Get("gen_model"),
			TTSModel: q.Get("tts_model"),
			Voice:    q.Get("voice"),
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		start := time.Now()
		res, err := svc.Reply(ctx, in, opts)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var wav bytes.Buffer
		if err := res.Audio.EncodeWAV(&wav); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "encode reply audio: "+err.Error())
			return
		}
		writeJSON(w, types.ReplyResponse{
			Transcript: res.Transcript,
			Text:       res.Text,
			AudioB64:   base64.StdEncoding.EncodeToString(wav.Bytes()),
			SampleRate: res.Audio.SampleRate,
		})
		logRequest(r, requestLogLevel(r), "reply complete", map[string]string{
			"in":  in.Duration().String(),
			"out": res.Audio.Duration().String(),
			"dur": time.Since(start).String(),
		})
	}
}
