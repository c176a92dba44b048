package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"medichat/internal/domain"
)

// criticalKeywords almost always indicate a medical emergency. Checked with
// plain substring matching as the fast first line of defense before any
// backend round trip.
var criticalKeywords = []string{
	"suicide", "kill myself", "want to die", "end my life",
	"heart attack", "chest pain", "stroke", "paralysis",
	"breathing difficulty", "cannot breathe", "choking",
	"severe bleeding", "unconscious", "fainted",
	"poison", "overdose", "snake bite", "snakebite",
	"severe burn", "head injury", "broken bone", "fracture",
	"seizure", "convulsion", "anaphylaxis", "allergic reaction",
}

// emergencyPatterns cover phrasings the keyword list misses.
var emergencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`severe\s+pain`),
	regexp.MustCompile(`blood\s+vomit`),
	regexp.MustCompile(`coughing\s+blood`),
	regexp.MustCompile(`sudden\s+vision\s+loss`),
	regexp.MustCompile(`slurred\s+speech`),
	regexp.MustCompile(`call\s+(?:an\s+|the\s+)?(?:ambulance|911|108|102)`),
	regexp.MustCompile(`emergency\s+help`),
	regexp.MustCompile(`collapsed`),
}

// EmergencyDetector flags queries that describe a medical emergency.
type EmergencyDetector struct{}

// NewEmergencyDetector creates a detector.
func NewEmergencyDetector() *EmergencyDetector {
	return &EmergencyDetector{}
}

// Check reports whether text indicates an emergency, and why.
func (d *EmergencyDetector) Check(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true, fmt.Sprintf("critical keyword %q", kw)
		}
	}
	for _, p := range emergencyPatterns {
		if p.MatchString(lower) {
			return true, fmt.Sprintf("pattern %q", p.String())
		}
	}
	return false, ""
}

// EmergencyLocator produces a "nearest facilities" notice for emergency
// queries: locate the observer, list candidate facilities, rank them by
// proximity. Geolocation denial is non-fatal; the notice then keeps the
// directory's own ordering and distances.
type EmergencyLocator struct {
	detector *EmergencyDetector
	geo      domain.GeoProvider
	dir      domain.FacilityDirectory
	max      int
	logger   *slog.Logger
}

// NewEmergencyLocator creates a locator. max bounds the facilities listed in
// a notice.
func NewEmergencyLocator(geo domain.GeoProvider, dir domain.FacilityDirectory, max int, logger *slog.Logger) *EmergencyLocator {
	if max <= 0 {
		max = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmergencyLocator{
		detector: NewEmergencyDetector(),
		geo:      geo,
		dir:      dir,
		max:      max,
		logger:   logger,
	}
}

// Detect reports whether query trips the emergency detector.
func (l *EmergencyLocator) Detect(query string) bool {
	hit, reason := l.detector.Check(query)
	if hit {
		l.logger.Info("emergency detected", "reason", reason)
	}
	return hit
}

// Notice builds the assistant-role facilities message.
func (l *EmergencyLocator) Notice(ctx context.Context) (domain.Message, error) {
	var (
		observer domain.Coordinate
		located  bool
	)
	if l.geo != nil {
		at, err := l.geo.Locate(ctx)
		if err != nil {
			l.logger.Warn("geolocation unavailable, listing facilities unranked", "error", err)
		} else {
			observer = at
			located = true
		}
	}

	facilities, err := l.dir.Nearby(ctx, observer)
	if err != nil {
		return domain.Message{}, domain.NewDomainError("emergency.Notice", err, "facility lookup")
	}
	if located {
		facilities = RankByProximity(observer, facilities)
	}
	if len(facilities) > l.max {
		facilities = facilities[:l.max]
	}

	return domain.AssistantMessage(formatFacilityNotice(facilities)), nil
}

func formatFacilityNotice(facilities []domain.Facility) string {
	var b strings.Builder
	b.WriteString("**This may be a medical emergency.** If so, call your local emergency number now.\n\nNearest facilities:\n")
	if len(facilities) == 0 {
		b.WriteString("\n_No facilities found for your area._")
		return b.String()
	}
	for i, f := range facilities {
		b.WriteString(fmt.Sprintf("\n%d. **%s**", i+1, f.Name))
		if f.DistanceKm > 0 && f.DistanceKm < missingDistanceKm {
			b.WriteString(fmt.Sprintf(" (%.1f km)", f.DistanceKm))
		}
		if f.Address != "" {
			b.WriteString(fmt.Sprintf("\n   %s", f.Address))
		}
		if f.Phone != "" {
			b.WriteString(fmt.Sprintf("\n   %s", f.Phone))
		}
	}
	return b.String()
}
