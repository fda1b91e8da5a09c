// Package subtitles implements the Subtitle Emitter (§4.6 S6): encoding
// pipeline.Segment cues to the SRT wire format, with right-to-left
// directional handling for RTL target languages (§4.6.4).
package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/pipeline"
)

// Emit writes segments as SRT cues to w, numbered from 1 in segment order.
// When targetLang is an RTL language (§4.6.4), every cue is wrapped with
// Unicode directional controls and has paired punctuation mirrored.
func Emit(w io.Writer, segments []pipeline.Segment, targetLang string) error {
	bw := bufio.NewWriter(w)
	rtl := config.RTLLanguages[targetLang]

	for i, seg := range segments {
		text := seg.Text
		if rtl {
			text = WrapRTL(text)
		}
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, formatTimestamp(seg.Start), formatTimestamp(seg.End), text); err != nil {
			return errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("writing cue %d: %v", i+1, err), err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("flushing subtitle output: %v", err), err)
	}
	return nil
}

func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Parse reads SRT cues back into segments; used by the /embed-subtitles
// edit operation to accept a caller-supplied .srt file (§4.6 [ADDED] edit
// operations; §6).
func Parse(r io.Reader) ([]pipeline.Segment, error) {
	scanner := bufio.NewScanner(r)
	var segments []pipeline.Segment
	var index int
	var start, end float64
	var textLines []string
	state := stateIndex

	flush := func() {
		if len(textLines) > 0 {
			segments = append(segments, pipeline.Segment{
				Index: index,
				Start: start,
				End:   end,
				Text:  strings.Join(textLines, "\n"),
			})
		}
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch state {
		case stateIndex:
			if strings.TrimSpace(line) == "" {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				return nil, errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("parsing cue index %q: %v", line, err), err)
			}
			index = n
			state = stateTimestamp
		case stateTimestamp:
			s, e, err := parseTimestampLine(line)
			if err != nil {
				return nil, errors.NewTaskError(errors.SubtitleEmitError, err.Error(), err)
			}
			start, end = s, e
			state = stateText
		case stateText:
			if strings.TrimSpace(line) == "" {
				flush()
				state = stateIndex
				continue
			}
			textLines = append(textLines, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("reading subtitle file: %v", err), err)
	}
	return segments, nil
}

type parseState int

const (
	stateIndex parseState = iota
	stateTimestamp
	stateText
)

func parseTimestampLine(line string) (start, end float64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timestamp line %q", line)
	}
	start, err = parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimestamp(ts string) (float64, error) {
	ts = strings.Replace(ts, ",", ".", 1)
	var h, m int
	var s float64
	if _, err := fmt.Sscanf(ts, "%d:%d:%f", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	return float64(h*3600+m*60) + s, nil
}
