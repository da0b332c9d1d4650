package sync

import (
	"math"
	"testing"
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		duration time.Duration
		want     []float64
	}{
		{
			name:     "single word starts at zero",
			words:    []string{"hello"},
			duration: 2 * time.Second,
			want:     []float64{0},
		},
		{
			name:     "character weighted boundaries",
			words:    []string{"ab", "cdef", "gh"},
			duration: 8 * time.Second,
			want:     []float64{0, 2, 6},
		},
		{
			name:     "devanagari words count runes not bytes",
			words:    []string{"रामो", "राजमणिः"},
			duration: 11 * time.Second,
			want:     []float64{0, 4},
		},
		{
			name:     "zero duration yields all zero times",
			words:    []string{"one", "two", "three"},
			duration: 0,
			want:     []float64{0, 0, 0},
		},
		{
			name:     "negative duration treated as zero",
			words:    []string{"one", "two"},
			duration: -time.Second,
			want:     []float64{0, 0},
		},
		{
			name:     "empty words yield all zero times",
			words:    []string{"", "", ""},
			duration: 3 * time.Second,
			want:     []float64{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.words, tt.duration)
			if len(got) != len(tt.want) {
				t.Fatalf("Estimate() returned %d timepoints, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.WordIndex != i {
					t.Errorf("timepoint %d has WordIndex %d", i, p.WordIndex)
				}
				if math.Abs(p.TimeSeconds-tt.want[i]) > 1e-9 {
					t.Errorf("timepoint %d = %vs, want %vs", i, p.TimeSeconds, tt.want[i])
				}
			}
		})
	}
}

func TestEstimateEmptyList(t *testing.T) {
	if got := Estimate(nil, time.Second); got != nil {
		t.Errorf("Estimate(nil) = %v, want nil", got)
	}
	if got := Estimate([]string{}, time.Second); got != nil {
		t.Errorf("Estimate(empty) = %v, want nil", got)
	}
}

func TestEstimateMonotonic(t *testing.T) {
	words := []string{"a", "", "bcd", "e", "", "fg", "रामो"}
	points := Estimate(words, 5*time.Second)

	last := -1.0
	for i, p := range points {
		if p.TimeSeconds < last {
			t.Fatalf("timepoint %d (%vs) precedes timepoint %d (%vs)", i, p.TimeSeconds, i-1, last)
		}
		last = p.TimeSeconds
	}
}

func TestResolve(t *testing.T) {
	words := []string{"one", "two", "three"}
	good := []tts.Timepoint{
		{WordIndex: 0, TimeSeconds: 0},
		{WordIndex: 1, TimeSeconds: 0.4},
		{WordIndex: 2, TimeSeconds: 0.9},
	}

	tests := []struct {
		name         string
		provider     []tts.Timepoint
		wantProvider bool
	}{
		{
			name:         "complete monotonic provider track wins",
			provider:     good,
			wantProvider: true,
		},
		{
			name:         "missing words fall back to estimate",
			provider:     good[:2],
			wantProvider: false,
		},
		{
			name: "non-monotonic track falls back to estimate",
			provider: []tts.Timepoint{
				{WordIndex: 0, TimeSeconds: 0},
				{WordIndex: 1, TimeSeconds: 0.9},
				{WordIndex: 2, TimeSeconds: 0.4},
			},
			wantProvider: false,
		},
		{
			name: "misnumbered track falls back to estimate",
			provider: []tts.Timepoint{
				{WordIndex: 0, TimeSeconds: 0},
				{WordIndex: 2, TimeSeconds: 0.4},
				{WordIndex: 1, TimeSeconds: 0.9},
			},
			wantProvider: false,
		},
		{
			name:         "nil provider track falls back to estimate",
			provider:     nil,
			wantProvider: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(words, tt.provider, time.Second)
			if len(got) != len(words) {
				t.Fatalf("Resolve() returned %d timepoints, want %d", len(got), len(words))
			}
			isProvider := tt.provider != nil && len(got) == len(tt.provider) && got[1].TimeSeconds == tt.provider[1].TimeSeconds
			if isProvider != tt.wantProvider {
				t.Errorf("Resolve() used provider track = %v, want %v", isProvider, tt.wantProvider)
			}
		})
	}
}
