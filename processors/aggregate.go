package processors

import (
	"eventAwareness/core"
)

// AggregateZones groups frame analyses by zone and summarizes each zone's
// observations. Error-flagged records are excluded from the statistics but
// still count toward the frames/success ratio. Zones appear in first-seen
// order so downstream digests are deterministic.
func AggregateZones(analyses []core.PerFrameAnalysis) []core.ZoneVisionSummary {
	accs := make(map[string]*zoneAccumulator)
	var order []string

	for _, a := range analyses {
		acc, ok := accs[a.Zone]
		if !ok {
			acc = &zoneAccumulator{
				densities: newModeCounter(),
				behaviors: newModeCounter(),
			}
			accs[a.Zone] = acc
			order = append(order, a.Zone)
		}
		acc.total++
		if a.Error {
			continue
		}
		acc.success++
		acc.densities.Add(a.CrowdDensity)
		acc.behaviors.Add(a.CrowdBehavior)
		acc.risks = append(acc.risks, a.PotentialRisks...)
		acc.actions = append(acc.actions, a.RecommendedActions...)
		acc.confidences = append(acc.confidences, a.ConfidenceScore)
	}

	summaries := make([]core.ZoneVisionSummary, 0, len(order))
	for _, zone := range order {
		acc := accs[zone]
		summaries = append(summaries, core.ZoneVisionSummary{
			Zone:                zone,
			FramesAnalyzed:      acc.total,
			SuccessfulAnalyses:  acc.success,
			PredominantDensity:  acc.densities.Mode("moderate"),
			DensityDistribution: acc.densities.Distribution(),
			PredominantBehavior: acc.behaviors.Mode("calm"),
			ObservedBehaviors:   acc.behaviors.Values(),
			IdentifiedRisks:     core.UniqueStrings(acc.risks),
			RecommendedActions:  core.UniqueStrings(acc.actions),
			AverageConfidence:   meanOrDefault(acc.confidences, 0.5),
		})
	}
	return summaries
}

// FindZoneSummary returns the summary for a zone, or false when the zone was
// not part of the aggregation.
func FindZoneSummary(summaries []core.ZoneVisionSummary, zone string) (core.ZoneVisionSummary, bool) {
	for _, s := range summaries {
		if s.Zone == zone {
			return s, true
		}
	}
	return core.ZoneVisionSummary{}, false
}

type zoneAccumulator struct {
	total       int
	success     int
	densities   *modeCounter
	behaviors   *modeCounter
	risks       []string
	actions     []string
	confidences []float64
}

// modeCounter counts categorical values while remembering insertion order,
// so ties resolve to the first-seen value deterministically.
type modeCounter struct {
	counts map[string]int
	order  []string
}

func newModeCounter() *modeCounter {
	return &modeCounter{counts: make(map[string]int)}
}

func (m *modeCounter) Add(value string) {
	if _, seen := m.counts[value]; !seen {
		m.order = append(m.order, value)
	}
	m.counts[value]++
}

// Mode returns the most frequent value, breaking ties in favor of the value
// counted first. Returns def when nothing was counted.
func (m *modeCounter) Mode(def string) string {
	best, bestCount := def, 0
	for _, value := range m.order {
		if m.counts[value] > bestCount {
			best, bestCount = value, m.counts[value]
		}
	}
	return best
}

func (m *modeCounter) Distribution() map[string]int {
	dist := make(map[string]int, len(m.counts))
	for value, n := range m.counts {
		dist[value] = n
	}
	return dist
}

// Values returns the distinct counted values in first-seen order.
func (m *modeCounter) Values() []string {
	return append([]string(nil), m.order...)
}

func meanOrDefault(values []float64, def float64) float64 {
	if len(values) == 0 {
		return def
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
