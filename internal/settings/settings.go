// Package settings resolves per-user generation parameters. Missing or
// invalid stored values fall back to documented defaults so a request
// never fails on bad settings.
package settings

import (
	"github.com/aviara/copilot/internal/llm"
)

// Tone selects the assistant's register in the system prompt.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneBalanced     Tone = "balanced"
	ToneFriendly     Tone = "friendly"
)

// GenerationSettings parameterizes one orchestration run.
type GenerationSettings struct {
	Tone                  Tone    `json:"tone"`
	Temperature           float64 `json:"temperature"`
	TopP                  float64 `json:"topP"`
	TopK                  int     `json:"topK"`
	MaxTokens             int     `json:"maxTokens"`
	PresencePenalty       float64 `json:"presencePenalty"`
	FrequencyPenalty      float64 `json:"frequencyPenalty"`
	ShowIntermediateSteps bool    `json:"showIntermediateSteps"`
}

// Defaults returns the documented default settings.
func Defaults() GenerationSettings {
	return GenerationSettings{
		Tone:                  ToneBalanced,
		Temperature:           0.7,
		TopP:                  0.9,
		TopK:                  40,
		MaxTokens:             2048,
		PresencePenalty:       0,
		FrequencyPenalty:      0,
		ShowIntermediateSteps: true,
	}
}

// Normalize replaces every out-of-range or unknown field with its
// default. Ranges: temperature [0,2], top-p (0,1], top-k [1,500],
// max tokens [1,8192], penalties [-2,2].
func (s GenerationSettings) Normalize() GenerationSettings {
	def := Defaults()

	switch s.Tone {
	case ToneProfessional, ToneBalanced, ToneFriendly:
	default:
		s.Tone = def.Tone
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		s.Temperature = def.Temperature
	}
	if s.TopP <= 0 || s.TopP > 1 {
		s.TopP = def.TopP
	}
	if s.TopK < 1 || s.TopK > 500 {
		s.TopK = def.TopK
	}
	if s.MaxTokens < 1 || s.MaxTokens > 8192 {
		s.MaxTokens = def.MaxTokens
	}
	if s.PresencePenalty < -2 || s.PresencePenalty > 2 {
		s.PresencePenalty = def.PresencePenalty
	}
	if s.FrequencyPenalty < -2 || s.FrequencyPenalty > 2 {
		s.FrequencyPenalty = def.FrequencyPenalty
	}
	return s
}

// Options converts the settings into inference sampling options.
func (s GenerationSettings) Options() *llm.Options {
	return &llm.Options{
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		NumPredict:       s.MaxTokens,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
	}
}
