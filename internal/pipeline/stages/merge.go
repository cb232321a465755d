package stages

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// coalesceTolerance is the maximum gap, in seconds, between two adjacent
// same-speaker segments for them to be merged into one.
const coalesceTolerance = 0.05

// minMergedDuration prunes merged segments shorter than this from the
// final transcript.
const minMergedDuration = 1.0

var wordTokenPattern = regexp.MustCompile(`\S+\s*`)

// speakerOverlap is one diarization turn's overlap with a transcript
// segment, expressed in whole-recording time.
type speakerOverlap struct {
	start, end float64
	speaker    string
}

// Merge aligns diarization turns with transcript segments so every
// utterance is tagged with its most likely speaker, producing the
// whole-recording merged transcript and the speaker-attributed text.
type Merge struct {
	Log *slog.Logger
}

func (m *Merge) Name() string { return "merge" }

// Run aligns the global-time "stt" segments against the global-time
// "diarization" turns. Both inputs are already expressed on the
// whole-recording timeline (§4.1), so no per-chunk offset bookkeeping is
// needed here — each segment is matched against the full turn list.
func (m *Merge) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := m.logger()
	chunks, _ := rc.Data[pipeline.DataChunks].([]pipeline.AudioChunk)
	segments, _ := rc.Data[pipeline.DataSTT].([]pipeline.TranscriptSegment)
	turns, _ := rc.Data[pipeline.DataDiarization].([]pipeline.SpeakerTurn)

	log.Info("merging transcripts with diarization", "run_id", rc.RunID, "segments", len(segments), "turns", len(turns))

	if len(segments) == 0 {
		rc.Data[pipeline.DataMergedTranscript] = []pipeline.MergedSegment{}
		return pipeline.StageResult{
			Name: m.Name(), Success: true, Message: "No transcripts available to merge.",
			Data: map[string]any{"segments": []pipeline.MergedSegment{}, "speakers": map[string]pipeline.SpeakerStats{}},
		}
	}

	var merged []pipeline.MergedSegment
	haveDiarization := len(turns) > 0

	for _, seg := range segments {
		aligned := alignSegment(seg.StartSec, seg.EndSec, seg.Text, seg.Language, turns)
		merged = append(merged, aligned...)
	}

	merged = postProcessSegments(merged)

	rc.Data[pipeline.DataMergedTranscript] = merged
	m.storeSpeakerTranscript(rc, merged, log)
	updateChunks(chunks, merged)

	speakerIndex := speakerIndex(merged)
	rc.Data[pipeline.DataSpeakerIndex] = speakerIndex

	log.Info("produced merged segments", "run_id", rc.RunID, "count", len(merged), "speakers", len(speakerIndex))

	message := ""
	if !haveDiarization {
		message = "Diarization unavailable; speaker labels default to 'UNKNOWN'."
	}
	return pipeline.StageResult{
		Name: m.Name(), Success: true, Message: message,
		Data: map[string]any{"segments": merged, "speakers": speakerIndex},
	}
}

func alignSegment(start, end float64, text, language string, turns []pipeline.SpeakerTurn) []pipeline.MergedSegment {
	baseSpeaker := assignSpeaker(start, end, turns)
	baseSeg := pipeline.MergedSegment{StartSec: start, EndSec: end, Text: text, Speaker: baseSpeaker, Language: language}

	if text == "" || len(turns) == 0 {
		return []pipeline.MergedSegment{baseSeg}
	}

	overlaps := overlappingTurns(start, end, turns)
	if len(overlaps) == 0 {
		return []pipeline.MergedSegment{baseSeg}
	}
	if len(overlaps) == 1 {
		o := overlaps[0]
		return []pipeline.MergedSegment{{StartSec: o.start, EndSec: o.end, Text: text, Speaker: o.speaker, Language: language}}
	}

	pieces := splitTextByOverlap(text, overlaps)
	segments := make([]pipeline.MergedSegment, 0, len(overlaps))
	for i, o := range overlaps {
		clean := strings.TrimSpace(pieces[i])
		if clean == "" {
			continue
		}
		segments = append(segments, pipeline.MergedSegment{StartSec: o.start, EndSec: o.end, Text: clean, Speaker: o.speaker, Language: language})
	}
	if len(segments) == 0 {
		return []pipeline.MergedSegment{baseSeg}
	}
	return segments
}

func assignSpeaker(start, end float64, turns []pipeline.SpeakerTurn) string {
	bestSpeaker := "UNKNOWN"
	bestOverlap := 0.0
	closestSpeaker := "UNKNOWN"
	closestGap := math.MaxFloat64

	for _, turn := range turns {
		if turn.EndSec <= turn.StartSec {
			continue
		}
		overlap := minF(end, turn.EndSec) - maxF(start, turn.StartSec)
		if overlap > bestOverlap && overlap > 0.0 {
			bestOverlap = overlap
			bestSpeaker = speakerOrUnknown(turn.Speaker)
		}
		gap := temporalGap(start, end, turn.StartSec, turn.EndSec)
		if gap < closestGap {
			closestGap = gap
			closestSpeaker = speakerOrUnknown(turn.Speaker)
		}
	}

	if bestOverlap > 0.0 {
		return bestSpeaker
	}
	return closestSpeaker
}

func overlappingTurns(start, end float64, turns []pipeline.SpeakerTurn) []speakerOverlap {
	var overlaps []speakerOverlap
	for _, turn := range turns {
		if turn.EndSec <= turn.StartSec {
			continue
		}
		overlapStart := maxF(start, turn.StartSec)
		overlapEnd := minF(end, turn.EndSec)
		if overlapEnd <= overlapStart {
			continue
		}
		overlaps = append(overlaps, speakerOverlap{start: overlapStart, end: overlapEnd, speaker: speakerOrUnknown(turn.Speaker)})
	}
	sort.Slice(overlaps, func(i, j int) bool { return overlaps[i].start < overlaps[j].start })
	return overlaps
}

func splitTextByOverlap(text string, overlaps []speakerOverlap) []string {
	tokens := wordTokenPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		pieces := make([]string, len(overlaps))
		pieces[0] = text
		return pieces
	}

	totalDuration := 0.0
	for _, o := range overlaps {
		totalDuration += maxF(0.0, o.end-o.start)
	}
	if totalDuration <= 0.0 {
		pieces := make([]string, len(overlaps))
		pieces[0] = text
		return pieces
	}

	tokenCount := len(tokens)
	boundaries := []int{0}
	accumulated := 0.0
	for i, o := range overlaps {
		accumulated += maxF(0.0, o.end-o.start)
		if i == len(overlaps)-1 {
			boundaries = append(boundaries, tokenCount)
			continue
		}
		ratio := accumulated / totalDuration
		boundary := int(roundHalfAwayFromZero(ratio * float64(tokenCount)))
		boundary = maxInt(boundaries[len(boundaries)-1], minInt(tokenCount, boundary))
		boundaries = append(boundaries, boundary)
	}

	pieces := make([]string, 0, len(overlaps))
	for i := 0; i < len(boundaries)-1; i++ {
		left := maxInt(0, minInt(tokenCount, boundaries[i]))
		right := maxInt(left, minInt(tokenCount, boundaries[i+1]))
		pieces = append(pieces, strings.Join(tokens[left:right], ""))
	}
	for len(pieces) < len(overlaps) {
		pieces = append(pieces, "")
	}
	return pieces
}

func postProcessSegments(segments []pipeline.MergedSegment) []pipeline.MergedSegment {
	if len(segments) == 0 {
		return segments
	}

	ordered := make([]pipeline.MergedSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].StartSec != ordered[j].StartSec {
			return ordered[i].StartSec < ordered[j].StartSec
		}
		return ordered[i].EndSec < ordered[j].EndSec
	})

	var merged []pipeline.MergedSegment
	for _, seg := range ordered {
		if len(merged) == 0 {
			merged = append(merged, seg)
			continue
		}
		last := &merged[len(merged)-1]
		sameSpeaker := seg.Speaker == last.Speaker && seg.Speaker != ""
		gap := seg.StartSec - last.EndSec
		if sameSpeaker && gap <= coalesceTolerance {
			last.EndSec = maxF(last.EndSec, seg.EndSec)
			last.Text = combineText(last.Text, seg.Text)
			if last.Language == "" {
				last.Language = seg.Language
			}
			continue
		}
		merged = append(merged, seg)
	}

	pruned := make([]pipeline.MergedSegment, 0, len(merged))
	for _, seg := range merged {
		if seg.EndSec-seg.StartSec >= minMergedDuration {
			pruned = append(pruned, seg)
		}
	}
	return pruned
}

func combineText(left, right string) string {
	l := strings.TrimSpace(left)
	r := strings.TrimSpace(right)
	if l != "" && r != "" {
		return strings.TrimSpace(l + " " + r)
	}
	if l != "" {
		return l
	}
	return r
}

func (m *Merge) storeSpeakerTranscript(rc *pipeline.RunContext, segments []pipeline.MergedSegment, log *slog.Logger) {
	lines := segmentsToLines(segments)
	if len(lines) == 0 {
		delete(rc.Data, pipeline.DataSpeakerAttributed)
		return
	}
	text := strings.Join(lines, "\n")
	rc.Data[pipeline.DataSpeakerAttributed] = text

	if err := os.MkdirAll(rc.BaseDir, 0o755); err != nil {
		log.Warn("failed to create run directory for speaker-attributed.txt", "error", err)
		return
	}
	path := filepath.Join(rc.BaseDir, "speaker-attributed.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		log.Warn("failed to write speaker-attributed.txt", "error", err)
	}
}

func segmentsToLines(segments []pipeline.MergedSegment) []string {
	var lines []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		line := fmt.Sprintf("%s: %s", speaker, text)
		if len(lines) > 0 && lines[len(lines)-1] == line {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func updateChunks(chunks []pipeline.AudioChunk, segments []pipeline.MergedSegment) {
	for i := range chunks {
		chunk := &chunks[i]
		var texts []string
		speakerCounts := make(map[string]int)
		var speakerOrder []string
		for _, seg := range segments {
			if !rangesOverlap(chunk.StartSec, chunk.EndSec, seg.StartSec, seg.EndSec) {
				continue
			}
			if seg.Text != "" {
				texts = append(texts, seg.Text)
			}
			if seg.Speaker != "" && seg.Speaker != "UNKNOWN" {
				if _, seen := speakerCounts[seg.Speaker]; !seen {
					speakerOrder = append(speakerOrder, seg.Speaker)
				}
				speakerCounts[seg.Speaker]++
			}
		}
		if len(texts) > 0 {
			chunk.Transcript = strings.Join(texts, " ")
		}
		if len(speakerOrder) > 0 {
			chunk.Speaker = mostFrequent(speakerOrder, speakerCounts)
		}
	}
}

func mostFrequent(firstSeenOrder []string, counts map[string]int) string {
	best := firstSeenOrder[0]
	bestCount := counts[best]
	for _, speaker := range firstSeenOrder[1:] {
		if counts[speaker] > bestCount {
			best = speaker
			bestCount = counts[speaker]
		}
	}
	return best
}

func speakerIndex(segments []pipeline.MergedSegment) map[string]pipeline.SpeakerStats {
	index := make(map[string]pipeline.SpeakerStats)
	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		entry := index[speaker]
		entry.UtteranceCount++
		entry.TotalDuration += maxF(0.0, seg.EndSec-seg.StartSec)
		index[speaker] = entry
	}
	return index
}

func rangesOverlap(aStart, aEnd, bStart, bEnd float64) bool {
	return maxF(aStart, bStart) < minF(aEnd, bEnd)
}

func temporalGap(aStart, aEnd, bStart, bEnd float64) float64 {
	if maxF(aStart, bStart) < minF(aEnd, bEnd) {
		return 0.0
	}
	if bEnd <= aStart {
		return aStart - bEnd
	}
	if aEnd <= bStart {
		return bStart - aEnd
	}
	return 0.0
}

func speakerOrUnknown(speaker string) string {
	if speaker == "" {
		return "UNKNOWN"
	}
	return speaker
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// roundHalfAwayFromZero matches Python's round-half-to-even-free behavior
// closely enough for boundary computation: ratios here are always
// non-negative, so this is equivalent to round-half-up.
func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	frac := v - float64(int(v))
	if frac >= 0.5 {
		return float64(int(v) + 1)
	}
	return float64(int(v))
}

func (m *Merge) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}
