// Package scoring computes relationship strength from raw interaction
// counters.
package scoring

import (
	"math"
	"time"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/graph"
)

// Signal weights. They sum to 1.
const (
	WeightRecency     = 0.30
	WeightFrequency   = 0.30
	WeightReciprocity = 0.20
	WeightDiversity   = 0.10
	WeightDuration    = 0.10
)

const (
	recencyHorizonDays  = 365.0
	durationHorizonDays = 1825.0
	frequencySaturation = 100
	meetingBoost        = 0.2
	meetingOnlyScore    = 0.5
	knownChannels       = 4.0
)

// channelSources are the provenance tags counted towards diversity.
var channelSources = map[string]bool{
	contact.SourceMail:     true,
	contact.SourceContacts: true,
	contact.SourceCalendar: true,
	contact.SourceLinkedIn: true,
}

// Signals are the raw inputs of one KNOWS edge.
type Signals struct {
	LastContact      *time.Time
	FirstContact     *time.Time
	InteractionCount int
	EmailsSent       int
	EmailsReceived   int
	MeetingCount     int
	Sources          []string
}

// SignalsFromEdge reads the scoring inputs off a stored edge.
func SignalsFromEdge(e graph.KnowsEdge) Signals {
	sources := e.Sources
	if len(sources) == 0 && e.Source != "" {
		sources = []string{e.Source}
	}
	return Signals{
		LastContact:      e.LastContact,
		FirstContact:     e.FirstContact,
		InteractionCount: e.InteractionCount,
		EmailsSent:       e.EmailsSent,
		EmailsReceived:   e.EmailsReceived,
		MeetingCount:     e.MeetingCount,
		Sources:          sources,
	}
}

// Result is a composite score in [0, 100] with its [0, 1] sub-scores.
type Result struct {
	Score     float64              `json:"score"`
	Breakdown graph.ScoreBreakdown `json:"breakdown"`
}

// Compute scores s as of now. It is pure: equal inputs give equal outputs.
func Compute(s Signals, now time.Time) Result {
	b := graph.ScoreBreakdown{
		Recency:     Recency(s.LastContact, now),
		Frequency:   Frequency(s.InteractionCount),
		Reciprocity: Reciprocity(s.EmailsSent, s.EmailsReceived, s.MeetingCount),
		Diversity:   Diversity(s),
		Duration:    Duration(s.FirstContact, now),
	}
	score := 100 * (WeightRecency*b.Recency +
		WeightFrequency*b.Frequency +
		WeightReciprocity*b.Reciprocity +
		WeightDiversity*b.Diversity +
		WeightDuration*b.Duration)

	return Result{Score: clamp(round2(score), 0, 100), Breakdown: b}
}

// Recency decays linearly over a year, then takes the square root so recent
// contact dominates.
func Recency(last *time.Time, now time.Time) float64 {
	if last == nil || last.IsZero() {
		return 0
	}
	linear := clamp(1-daysBetween(*last, now)/recencyHorizonDays, 0, 1)
	return round2(math.Sqrt(linear))
}

// Frequency grows logarithmically and saturates around 100 interactions.
func Frequency(count int) float64 {
	if count <= 0 {
		return 0
	}
	return round2(math.Min(1, math.Log(float64(count)+1)/math.Log(frequencySaturation+1)))
}

// Reciprocity measures how balanced the email exchange is, with a boost for
// meetings. Meetings alone score a flat 0.5.
func Reciprocity(sent, received, meetings int) float64 {
	if sent < 0 {
		sent = 0
	}
	if received < 0 {
		received = 0
	}
	if sent+received > 0 {
		ratio := float64(min(sent, received)) / float64(max(sent, received))
		if meetings > 0 {
			ratio += meetingBoost
		}
		return round2(math.Min(1, ratio))
	}
	if meetings > 0 {
		return meetingOnlyScore
	}
	return 0
}

// Diversity averages the share of known sources seen with the share of
// channel types used.
func Diversity(s Signals) float64 {
	distinct := make(map[string]bool)
	for _, tag := range s.Sources {
		if c := contact.CanonicalSource(tag); channelSources[c] {
			distinct[c] = true
		}
	}
	sourceScore := float64(len(distinct)) / knownChannels

	channels := 0
	if s.EmailsSent+s.EmailsReceived > 0 {
		channels++
	}
	if s.MeetingCount > 0 {
		channels++
	}
	if distinct[contact.SourceLinkedIn] {
		channels++
	}
	if distinct[contact.SourceContacts] {
		channels++
	}

	return round2(math.Min(1, (sourceScore+float64(channels)/knownChannels)/2))
}

// Duration grows linearly over five years.
func Duration(first *time.Time, now time.Time) float64 {
	if first == nil || first.IsZero() {
		return 0
	}
	return round2(math.Min(1, daysBetween(*first, now)/durationHorizonDays))
}

// daysBetween returns whole-and-fractional days from t to now, never negative.
func daysBetween(t, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
