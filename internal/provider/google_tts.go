// Copyright 2025 James Ross
package provider

import (
	"context"
	"fmt"
	"os"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/ghostradio/podcastd/internal/config"
)

const googleDefaultVoice = "en-US-Chirp3-HD-Achernar"

// GoogleTTSProvider implements TTS using Google Cloud's Chirp 3 HD voices.
type GoogleTTSProvider struct {
	name  string
	voice string
}

// NewGoogleTTSProvider builds a provider from a configured candidate. The
// client is created lazily per call since Application Default Credentials
// may not be present until the process environment is fully set up.
func NewGoogleTTSProvider(cand config.ProviderCandidate) (*GoogleTTSProvider, error) {
	voice := cand.Voice
	if voice == "" {
		voice = googleDefaultVoice
	}
	return &GoogleTTSProvider{name: cand.Name, voice: voice}, nil
}

func (p *GoogleTTSProvider) Name() string { return p.name }

func (p *GoogleTTSProvider) Synthesize(ctx context.Context, text, outputPath string, options map[string]interface{}) SynthesizeResult {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return SynthesizeResult{OK: false, Error: fmt.Sprintf("create google tts client: %v", err)}
	}
	defer client.Close()

	segments := segmentSentences(text, defaultSegmentCharCap)
	var audio []byte
	for _, seg := range segments {
		resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: seg}},
			Voice: &texttospeechpb.VoiceSelectionParams{LanguageCode: "en-US", Name: p.voice},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			},
		})
		if err != nil {
			return SynthesizeResult{OK: false, Error: fmt.Sprintf("google tts synthesize: %v", err)}
		}
		audio = append(audio, resp.AudioContent...)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return SynthesizeResult{OK: false, Error: fmt.Sprintf("write audio file: %v", err)}
	}

	return SynthesizeResult{
		OK:        true,
		Path:      outputPath,
		SizeBytes: int64(len(audio)),
		// DurationSeconds is left zero. The worker stores the
		// provider-reported duration as is and does not probe the audio
		// file, so episodes synthesized here record a zero duration.
	}
}

// Probe checks that Application Default Credentials are resolvable by
// constructing (and immediately closing) a client.
func (p *GoogleTTSProvider) Probe(ctx context.Context) error {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return err
	}
	return client.Close()
}
