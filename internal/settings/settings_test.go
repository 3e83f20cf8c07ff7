package settings

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultsInRange(t *testing.T) {
	def := Defaults()

	if def.Tone != ToneBalanced {
		t.Errorf("tone = %q, want balanced", def.Tone)
	}
	if def.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", def.Temperature)
	}
	if def.TopP != 0.9 {
		t.Errorf("top-p = %v, want 0.9", def.TopP)
	}
	if def.TopK != 40 {
		t.Errorf("top-k = %v, want 40", def.TopK)
	}
	if def.MaxTokens != 2048 {
		t.Errorf("max tokens = %v, want 2048", def.MaxTokens)
	}
	if def.PresencePenalty != 0 || def.FrequencyPenalty != 0 {
		t.Errorf("penalties = %v, %v, want 0", def.PresencePenalty, def.FrequencyPenalty)
	}

	// Defaults must survive their own validation unchanged.
	if def.Normalize() != def {
		t.Errorf("Normalize changed defaults: %+v", def.Normalize())
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		in     GenerationSettings
		verify func(t *testing.T, got GenerationSettings)
	}{
		{
			name: "valid settings pass through",
			in: GenerationSettings{
				Tone: ToneFriendly, Temperature: 1.2, TopP: 0.5, TopK: 10,
				MaxTokens: 512, PresencePenalty: 0.4, FrequencyPenalty: -0.3,
			},
			verify: func(t *testing.T, got GenerationSettings) {
				if got.Tone != ToneFriendly || got.Temperature != 1.2 || got.TopK != 10 {
					t.Errorf("valid settings mutated: %+v", got)
				}
			},
		},
		{
			name: "unknown tone falls back",
			in:   GenerationSettings{Tone: "sarcastic", Temperature: 0.5, TopP: 0.5, TopK: 10, MaxTokens: 512},
			verify: func(t *testing.T, got GenerationSettings) {
				if got.Tone != ToneBalanced {
					t.Errorf("tone = %q", got.Tone)
				}
				if got.Temperature != 0.5 {
					t.Errorf("in-range field mutated: %v", got.Temperature)
				}
			},
		},
		{
			name: "out of range numerics fall back individually",
			in:   GenerationSettings{Tone: ToneBalanced, Temperature: 5, TopP: 0, TopK: -1, MaxTokens: 100000, PresencePenalty: 3, FrequencyPenalty: -9},
			verify: func(t *testing.T, got GenerationSettings) {
				want := Defaults()
				want.ShowIntermediateSteps = false
				if got != want {
					t.Errorf("got %+v, want %+v", got, want)
				}
			},
		},
		{
			name: "zero value resolves to defaults for every numeric",
			in:   GenerationSettings{},
			verify: func(t *testing.T, got GenerationSettings) {
				want := Defaults()
				want.ShowIntermediateSteps = false // boolean zero value is valid
				if got != want {
					t.Errorf("got %+v, want %+v", got, want)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, tt.in.Normalize())
		})
	}
}

func TestOptionsConversion(t *testing.T) {
	gs := GenerationSettings{
		Temperature: 0.3, TopP: 0.8, TopK: 20, MaxTokens: 1024,
		PresencePenalty: 0.1, FrequencyPenalty: 0.2,
	}
	opts := gs.Options()
	if opts.Temperature != 0.3 || opts.TopP != 0.8 || opts.TopK != 20 {
		t.Errorf("sampling options = %+v", opts)
	}
	if opts.NumPredict != 1024 {
		t.Errorf("NumPredict = %d, want 1024", opts.NumPredict)
	}
	if opts.PresencePenalty != 0.1 || opts.FrequencyPenalty != 0.2 {
		t.Errorf("penalties = %v, %v", opts.PresencePenalty, opts.FrequencyPenalty)
	}
}

type errorStore struct{}

func (errorStore) Get(context.Context, string) (*GenerationSettings, error) {
	return nil, errors.New("connection refused")
}

func TestResolveFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("no store", func(t *testing.T) {
		r := NewResolver(nil, nil)
		if got := r.Resolve(ctx, "u1"); got != Defaults() {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("store error", func(t *testing.T) {
		r := NewResolver(errorStore{}, nil)
		if got := r.Resolve(ctx, "u1"); got != Defaults() {
			t.Errorf("got %+v", got)
		}
	})
}

func TestResolveSQLite(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	r := NewResolver(store, nil)

	// No row yet: documented defaults.
	if got := r.Resolve(ctx, "u1"); got != Defaults() {
		t.Errorf("absent row: got %+v, want defaults", got)
	}

	stored := GenerationSettings{
		Tone: ToneProfessional, Temperature: 0.2, TopP: 0.95, TopK: 50,
		MaxTokens: 4096, PresencePenalty: 0.5, FrequencyPenalty: 0.5,
		ShowIntermediateSteps: false,
	}
	if err := store.Put(ctx, "u1", stored); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got := r.Resolve(ctx, "u1")
	if got != stored {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	// Other users still resolve to defaults.
	if got := r.Resolve(ctx, "u2"); got != Defaults() {
		t.Errorf("u2: got %+v, want defaults", got)
	}

	// A stored row with garbage numerics resolves in-range.
	if err := store.Put(ctx, "u3", GenerationSettings{Tone: "x", Temperature: 99}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got = r.Resolve(ctx, "u3")
	if got.Tone != ToneBalanced || got.Temperature != 0.7 {
		t.Errorf("u3 not normalized: %+v", got)
	}
}

func TestPutReplaces(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	first := Defaults()
	first.Temperature = 0.1
	if err := store.Put(ctx, "u1", first); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	second := Defaults()
	second.Temperature = 1.5
	if err := store.Put(ctx, "u1", second); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Temperature != 1.5 {
		t.Errorf("got %+v, want temperature 1.5", got)
	}
}
