package prosody

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeBaseDelay(t *testing.T) {
	for wpm := 100; wpm <= 1000; wpm++ {
		if got, want := ComputeBaseDelay(wpm), 60000/float64(wpm); got != want {
			t.Fatalf("ComputeBaseDelay(%d) = %v, want %v", wpm, got, want)
		}
	}

	tests := []struct {
		wpm  int
		want float64
	}{
		{100, 600},
		{300, 200},
		{600, 100},
		{1000, 60},
	}
	for _, tt := range tests {
		if got := ComputeBaseDelay(tt.wpm); got != tt.want {
			t.Errorf("ComputeBaseDelay(%d) = %v, want %v", tt.wpm, got, tt.want)
		}
	}
}

func TestComputePivotIndex(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"", 0},
		{"a", 0},
		{"I!", 0},
		{"an", 1},
		{"the", 1},
		{"word", 2},
		{"hello", 2},
		{"Hello,", 2},
		{"reading", 2},
		{"sentence", 2},
		{"wonderful", 2},
		{"everything", 3},
		{"interesting", 3},
		{"extraordinary", 4},
		{"naïve", 2},
		{"!!!", 0},
		{"?!", 0},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			if got := ComputePivotIndex(tt.word); got != tt.want {
				t.Errorf("ComputePivotIndex(%q) = %d, want %d", tt.word, got, tt.want)
			}
		})
	}
}

func TestPivotForLengthMonotonic(t *testing.T) {
	prev := 0
	for n := 0; n <= 64; n++ {
		p := pivotForLength(n)
		if p < prev {
			t.Fatalf("pivot decreased at length %d: %d < %d", n, p, prev)
		}
		if n > 0 && p >= n {
			t.Fatalf("pivot %d outside word of length %d", p, n)
		}
		prev = p
	}
}

func TestAnalyzeProsody(t *testing.T) {
	tests := []struct {
		name        string
		word        string
		sensitivity float64
		pause       float64
		tone        Tone
		emphasis    Emphasis
	}{
		{"plain", "world", 1, 1, ToneNeutral, EmphasisNone},
		{"period", "end.", 1, 2.5, ToneFalling, EmphasisNone},
		{"question", "why?", 1, 2.5, ToneRising, EmphasisNone},
		{"exclamation", "wow!", 1, 2.5, ToneNeutral, EmphasisNone},
		{"semicolon", "first;", 1, 2.0, ToneNeutral, EmphasisNone},
		{"colon", "note:", 1, 1.8, ToneNeutral, EmphasisNone},
		{"comma", "and,", 1, 1.5, ToneNeutral, EmphasisNone},
		{"dash", "well—", 1, 1.5, ToneNeutral, EmphasisNone},
		{"ellipsis dots", "wait...", 1, 2.0, ToneNeutral, EmphasisNone},
		{"ellipsis rune", "so…", 1, 2.0, ToneNeutral, EmphasisNone},
		{"closing quote", "end.\"", 1, 2.5, ToneFalling, EmphasisNone},
		{"half sensitivity", "end.", 0.5, 1.75, ToneFalling, EmphasisNone},
		{"zero sensitivity", "end.", 0, 1, ToneFalling, EmphasisNone},
		{"caps", "NASA", 1, 1, ToneNeutral, EmphasisHigh},
		{"short caps", "OK", 1, 1, ToneNeutral, EmphasisNone},
		{"caps with period", "NASA.", 1, 2.5, ToneFalling, EmphasisHigh},
		{"long word", "internationally", 1, 1.1, ToneNeutral, EmphasisNone},
		{"long word comma", "internationally,", 1, 1.65, ToneNeutral, EmphasisNone},
		{"very long word", "incomprehensibilities", 1, 1.2, ToneNeutral, EmphasisNone},
		{"dialogue", "\"Hello", 1, 1, ToneNeutral, EmphasisMedium},
		{"curly dialogue", "“Stop!”", 1, 2.5, ToneNeutral, EmphasisMedium},
		{"marked", "*really*", 1, 1, ToneNeutral, EmphasisMedium},
		{"marked caps keeps high", "*NEVER*", 1, 1, ToneNeutral, EmphasisHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeProsody(tt.word, tt.sensitivity)
			if !approx(got.Pause, tt.pause) {
				t.Errorf("pause = %v, want %v", got.Pause, tt.pause)
			}
			if got.Tone != tt.tone {
				t.Errorf("tone = %v, want %v", got.Tone, tt.tone)
			}
			if got.Emphasis != tt.emphasis {
				t.Errorf("emphasis = %v, want %v", got.Emphasis, tt.emphasis)
			}
			if got.PauseAfter != 0 {
				t.Errorf("pauseAfter = %v, want 0", got.PauseAfter)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	w := Analyze("Hello,", Options{WPM: 300, Sensitivity: 1})
	if w.Text != "Hello," {
		t.Errorf("text = %q", w.Text)
	}
	if w.BaseDelay != 200 {
		t.Errorf("baseDelay = %v, want 200", w.BaseDelay)
	}
	if w.PivotIndex != 2 {
		t.Errorf("pivot = %d, want 2", w.PivotIndex)
	}
	if w.Prosody == nil || w.Prosody.Pause != 1.5 {
		t.Errorf("prosody = %+v, want pause 1.5", w.Prosody)
	}
	if got := w.DisplayMillis(); got != 300 {
		t.Errorf("DisplayMillis = %v, want 300", got)
	}
}
