package stealth

import (
	"context"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
)

// QWERTY neighbours used to simulate mis-presses
var neighbors = map[rune][]rune{
	'q': {'w', 'a', '1', '2'},
	'w': {'q', 'e', 's', 'a', '2', '3'},
	'e': {'w', 'r', 'd', 's', '3', '4'},
	'r': {'e', 't', 'f', 'd', '4', '5'},
	't': {'r', 'y', 'g', 'f', '5', '6'},
	'y': {'t', 'u', 'h', 'g', '6', '7'},
	'u': {'y', 'i', 'j', 'h', '7', '8'},
	'i': {'u', 'o', 'k', 'j', '8', '9'},
	'o': {'i', 'p', 'l', 'k', '9', '0'},
	'p': {'o', 'l', '0', '-'},
	'a': {'q', 'w', 's', 'z'},
	's': {'a', 'w', 'e', 'd', 'z', 'x'},
	'd': {'s', 'e', 'r', 'f', 'x', 'c'},
	'f': {'d', 'r', 't', 'g', 'c', 'v'},
	'g': {'f', 't', 'y', 'h', 'v', 'b'},
	'h': {'g', 'y', 'u', 'j', 'b', 'n'},
	'j': {'h', 'u', 'i', 'k', 'n', 'm'},
	'k': {'j', 'i', 'o', 'l', 'm', ','},
	'l': {'k', 'o', 'p', ',', '.'},
	'z': {'a', 's', 'x'},
	'x': {'z', 's', 'd', 'c'},
	'c': {'x', 'd', 'f', 'v'},
	'v': {'c', 'f', 'g', 'b'},
	'b': {'v', 'g', 'h', 'n'},
	'n': {'b', 'h', 'j', 'm'},
	'm': {'n', 'j', 'k', ','},
}

// Letter pairs typed faster than average
var commonPairs = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true, "on": true,
	"at": true, "en": true, "nd": true, "ti": true, "es": true, "or": true, "te": true,
	"of": true, "ed": true, "is": true, "it": true, "al": true, "ar": true, "st": true,
	"to": true, "nt": true, "ng": true, "se": true, "ha": true, "as": true, "ou": true,
}

// Typist enters text keystroke by keystroke with human cadence and the odd corrected typo
type Typist struct {
	cfg    config.ScheduleConfig
	rnd    *rand.Rand
	logger zerolog.Logger
}

// NewTypist creates a typing controller
func NewTypist(cfg config.ScheduleConfig, rnd *rand.Rand, logger zerolog.Logger) *Typist {
	return &Typist{
		cfg:    cfg,
		rnd:    rnd,
		logger: logger.With().Str("component", "typing").Logger(),
	}
}

// Type focuses the element and types text into it
func (t *Typist) Type(ctx context.Context, el *rod.Element, text string) error {
	t.logger.Debug().Int("length", len(text)).Msg("Typing text")

	if err := el.Focus(); err != nil {
		return err
	}
	if err := Sleep(ctx, time.Duration(100+t.rnd.Intn(200))*time.Millisecond); err != nil {
		return err
	}

	runes := []rune(text)
	for i, r := range runes {
		if t.rnd.Float64() < t.cfg.TypoProbability {
			if err := t.typo(ctx, el, r); err != nil {
				return err
			}
		} else if err := press(el, r); err != nil {
			return err
		}

		if err := Sleep(ctx, t.keystrokeDelay(runes, i)); err != nil {
			return err
		}
	}

	return nil
}

// press types one character, falling back to text input for keys rod has no mapping for
func press(el *rod.Element, r rune) error {
	if err := el.Type(input.Key(r)); err != nil {
		return el.Input(string(r))
	}
	return nil
}

// typo mis-presses a neighbouring key, notices, and corrects it
func (t *Typist) typo(ctx context.Context, el *rod.Element, intended rune) error {
	if err := press(el, t.nearbyKey(intended)); err != nil {
		return err
	}
	if err := Sleep(ctx, time.Duration(200+t.rnd.Intn(400))*time.Millisecond); err != nil {
		return err
	}
	if err := el.Type(input.Backspace); err != nil {
		return err
	}
	if err := Sleep(ctx, time.Duration(100+t.rnd.Intn(150))*time.Millisecond); err != nil {
		return err
	}
	return press(el, intended)
}

// nearbyKey returns a key next to r on a QWERTY layout, preserving case
func (t *Typist) nearbyKey(r rune) rune {
	near, ok := neighbors[unicode.ToLower(r)]
	if !ok {
		return r
	}
	k := near[t.rnd.Intn(len(near))]
	if unicode.IsUpper(r) {
		return unicode.ToUpper(k)
	}
	return k
}

// keystrokeDelay is slower after punctuation and at word boundaries, faster for common pairs
func (t *Typist) keystrokeDelay(text []rune, i int) time.Duration {
	lo, hi := t.cfg.MinTypingDelayMs, t.cfg.MaxTypingDelayMs
	base := lo
	if hi > lo {
		base += t.rnd.Intn(hi - lo)
	}

	mult := 1.0
	switch {
	case i > 0 && strings.ContainsRune(".,!?;:", text[i-1]):
		mult = 1.5 + t.rnd.Float64()*0.5
	case text[i] == ' ':
		mult = 1.2 + t.rnd.Float64()*0.3
	case i > 0 && commonPairs[strings.ToLower(string(text[i-1:i+1]))]:
		mult = 0.7 + t.rnd.Float64()*0.2
	}

	// Occasional pause mid-word
	if t.rnd.Float64() < 0.02 {
		mult = 2 + t.rnd.Float64()
	}

	return time.Duration(float64(base)*mult) * time.Millisecond
}
