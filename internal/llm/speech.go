package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Synthesizer converts text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Speech, error)
}

// Speech is synthesized audio.
type Speech struct {
	Audio       []byte
	ContentType string
}

// OpenAISpeech implements Transcriber and Synthesizer with whisper and tts.
type OpenAISpeech struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

// NewOpenAISpeech creates speech collaborators backed by OpenAI.
func NewOpenAISpeech(apiKey, baseURL, voice string) (*OpenAISpeech, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	return &OpenAISpeech{
		client: newOpenAI(apiKey, baseURL),
		voice:  openai.SpeechVoice(voice),
	}, nil
}

// Transcribe runs speech-to-text on the audio.
func (s *OpenAISpeech) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Synthesize runs text-to-speech and returns mp3 audio.
func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) (*Speech, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return &Speech{Audio: audio, ContentType: "audio/mpeg"}, nil
}
