package shops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cafe-compass/compass-cli/internal/model"
)

func TestHoursOpen(t *testing.T) {
	tests := []struct {
		entry string
		want  time.Duration
		ok    bool
	}{
		{"Monday: 7:00 AM – 11:00 PM", 16 * time.Hour, true},
		{"Monday: 9:00 AM – 5:00 PM", 8 * time.Hour, true},
		{"Monday: 7:00 – 11:00 PM", 4 * time.Hour, true},
		{"Tuesday: 6:00 PM – 2:00 AM", 8 * time.Hour, true},
		{"Monday: 8:00 AM – 12:00 PM, 1:00 – 9:00 PM", 4 * time.Hour, true},
		{"Monday: Open 24 hours", 24 * time.Hour, true},
		{"Monday: 07:00 - 21:30", 14*time.Hour + 30*time.Minute, true},
		{"Monday: Closed", 0, false},
		{"", 0, false},
		{"Monday: whenever", 0, false},
	}
	for _, tt := range tests {
		got, ok := HoursOpen(tt.entry)
		assert.Equal(t, tt.ok, ok, tt.entry)
		assert.Equal(t, tt.want, got, tt.entry)
	}
}

func strongShop() model.Shop {
	return model.Shop{
		Name:             "Qahwah House",
		Rating:           4.6,
		UserRatingsTotal: 2300,
		PriceLevel:       2,
		BusinessStatus:   "OPERATIONAL",
		Hours:            "Monday: 7:00 AM – 1:00 AM | Tuesday: 7:00 AM – 1:00 AM",
		Reviews:          "Great coffee | Slow service",
	}
}

func TestEvaluate_AllCriteria(t *testing.T) {
	s := strongShop()
	c := Evaluate(&s)
	assert.Equal(t, Criteria{
		Rating: true, Popular: true, MidPrice: true,
		Positive: true, Operational: true, LongHours: true,
	}, c)
	assert.Equal(t, 6, c.Score())
	assert.True(t, IsSuccessful(&s, 0))
}

func TestEvaluate_Thresholds(t *testing.T) {
	s := model.Shop{Rating: 3.9, UserRatingsTotal: 100, PriceLevel: 4, BusinessStatus: "CLOSED_TEMPORARILY",
		Hours: "Monday: 9:00 AM – 9:00 PM", Reviews: "fine I guess"}
	c := Evaluate(&s)
	assert.Zero(t, c.Score())
	assert.False(t, IsSuccessful(&s, 3))

	s.Rating = 4
	s.UserRatingsTotal = 101
	assert.False(t, IsSuccessful(&s, 3))
	s.BusinessStatus = "OPEN"
	assert.True(t, IsSuccessful(&s, 3))
}

func TestMark(t *testing.T) {
	shops := []model.Shop{strongShop(), {Name: "Empty"}}
	assert.Equal(t, 1, Mark(shops, 3))
	assert.True(t, shops[0].IsSuccessful)
	assert.False(t, shops[1].IsSuccessful)
}
