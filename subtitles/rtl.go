package subtitles

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/bidi"
)

// mirrorPairs lists paired punctuation/bracket characters that must swap
// visual sides when embedded in a right-to-left run (§4.6.4). bidi.LookupRune
// reports whether a rune mirrors, but not its counterpart, so the pairs are
// listed explicitly and looked up both ways.
var mirrorPairs = map[rune]rune{
	'(': ')', ')': '(',
	'[': ']', ']': '[',
	'{': '}', '}': '{',
	'<': '>', '>': '<',
	'«': '»', '»': '«',
}

// WrapRTL wraps text in Unicode directional controls and mirrors paired
// punctuation, so a right-to-left cue renders correctly in players that
// don't run a full bidi algorithm over subtitle text (§4.6.4).
func WrapRTL(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLineRTL(line)
	}
	return strings.Join(lines, "\n")
}

func wrapLineRTL(line string) string {
	var b strings.Builder
	b.WriteRune('‫') // RLE: right-to-left embedding
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsDigit(r) {
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			writeLTRIsolated(&b, runes[i:j])
			i = j - 1
			continue
		}
		if mirrored, ok := mirrorPairs[r]; ok && mirrorable(r) {
			b.WriteRune(mirrored)
			continue
		}
		b.WriteRune(r)
	}
	b.WriteRune('‬') // PDF: pop directional formatting
	return b.String()
}

// writeLTRIsolated wraps a run of digits (a number) in the conventional
// strong-LTR isolate, so players that honor Unicode bidi controls keep
// multi-digit numbers left-to-right inside the surrounding RTL embedding
// instead of reversing their digit order (§4.6.4).
func writeLTRIsolated(b *strings.Builder, digits []rune) {
	b.WriteRune('⁦') // LRI: left-to-right isolate
	for _, d := range digits {
		b.WriteRune(d)
	}
	b.WriteRune('⁩') // PDI: pop directional isolate
}

func mirrorable(r rune) bool {
	p, _ := bidi.LookupRune(r) // (Properties, size); size is irrelevant for a single rune lookup
	return p.IsMirrored()
}
