package shops

import (
	"strings"
	"time"

	"github.com/cafe-compass/compass-cli/internal/model"
)

// DefaultMinSuccesses is the score a shop needs to count as successful.
const DefaultMinSuccesses = 3

// FieldSeparator joins multi-valued shop columns in CSV output.
const FieldSeparator = " | "

var positiveKeywords = []string{"good", "excellent", "great", "awesome"}

// Criteria is the per-signal breakdown of a shop's success score.
type Criteria struct {
	Rating      bool `json:"rating"`
	Popular     bool `json:"popular"`
	MidPrice    bool `json:"mid_price"`
	Positive    bool `json:"positive_reviews"`
	Operational bool `json:"operational"`
	LongHours   bool `json:"long_hours"`
}

// Score returns the number of criteria met.
func (c Criteria) Score() int {
	n := 0
	for _, ok := range []bool{c.Rating, c.Popular, c.MidPrice, c.Positive, c.Operational, c.LongHours} {
		if ok {
			n++
		}
	}
	return n
}

// Evaluate checks s against each success criterion.
func Evaluate(s *model.Shop) Criteria {
	hours, ok := HoursOpen(firstField(s.Hours))
	return Criteria{
		Rating:      s.Rating >= 4,
		Popular:     s.UserRatingsTotal > 100,
		MidPrice:    s.PriceLevel == 2 || s.PriceLevel == 3,
		Positive:    hasPositiveReview(s.Reviews),
		Operational: s.BusinessStatus == "OPERATIONAL" || s.BusinessStatus == "OPEN",
		LongHours:   ok && hours > 12*time.Hour,
	}
}

// IsSuccessful reports whether s meets at least minScore criteria. A
// non-positive minScore uses DefaultMinSuccesses.
func IsSuccessful(s *model.Shop, minScore int) bool {
	if minScore <= 0 {
		minScore = DefaultMinSuccesses
	}
	return Evaluate(s).Score() >= minScore
}

// Mark sets IsSuccessful on every shop and returns how many succeeded.
func Mark(shops []model.Shop, minScore int) int {
	n := 0
	for i := range shops {
		shops[i].IsSuccessful = IsSuccessful(&shops[i], minScore)
		if shops[i].IsSuccessful {
			n++
		}
	}
	return n
}

func hasPositiveReview(reviews string) bool {
	text := strings.ToLower(reviews)
	for _, kw := range positiveKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func firstField(joined string) string {
	first, _, _ := strings.Cut(joined, FieldSeparator)
	return first
}

var dashes = strings.NewReplacer("\u2013", "-", "\u2014", "-", "\u2009", " ", "\u202f", " ", "\u00a0", " ")

// HoursOpen parses one weekday_text entry such as
// "Monday: 7:00 AM – 11:00 PM" and returns the span it is open. Closing
// times at or before the opening time roll into the next day. Entries
// listing several ranges use the first one.
func HoursOpen(entry string) (time.Duration, bool) {
	if _, rest, ok := strings.Cut(entry, ": "); ok {
		entry = rest
	}
	entry = strings.TrimSpace(dashes.Replace(entry))
	switch {
	case strings.EqualFold(entry, "Open 24 hours"):
		return 24 * time.Hour, true
	case entry == "", strings.EqualFold(entry, "Closed"):
		return 0, false
	}
	entry, _, _ = strings.Cut(entry, ",")

	from, to, ok := strings.Cut(entry, "-")
	if !ok {
		return 0, false
	}
	to = strings.TrimSpace(to)
	from = strings.TrimSpace(from)
	end, err := parseClock(to)
	if err != nil {
		return 0, false
	}
	// "7:00 – 11:00 PM" shares the closing meridiem.
	if !hasMeridiem(from) && hasMeridiem(to) {
		from += to[len(to)-3:]
	}
	start, err := parseClock(from)
	if err != nil {
		return 0, false
	}
	span := end.Sub(start)
	if span <= 0 {
		span += 24 * time.Hour
	}
	return span, true
}

func hasMeridiem(s string) bool {
	return strings.HasSuffix(s, " AM") || strings.HasSuffix(s, " PM")
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("3:04 PM", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
	}
	return t, err
}
