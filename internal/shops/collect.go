package shops

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/pkg/google"
)

// DefaultKeyword and DefaultRadiusM are the survey search parameters.
const (
	DefaultKeyword = "Yemeni coffee"
	DefaultRadiusM = 30000
)

// Report counts what Collect did.
type Report struct {
	Points       int `json:"points"`
	Found        int `json:"found"`
	Duplicates   int `json:"duplicates"`
	DetailErrors int `json:"detail_errors"`
	Successful   int `json:"successful"`
}

// Collect searches around each point for keyword, fetches details for each
// hit and returns the deduplicated shops marked for success. A failed
// details lookup keeps the shop with its search result fields.
func Collect(ctx context.Context, client google.Client, points []SearchPoint, keyword string, radiusM uint, minSuccesses int) ([]model.Shop, Report, error) {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	if radiusM == 0 {
		radiusM = DefaultRadiusM
	}

	log := zap.L().With(zap.String("keyword", keyword))
	rep := Report{Points: len(points)}
	seen := make(map[string]bool)
	var shops []model.Shop

	for _, pt := range points {
		log.Info("searching for shops", zap.String("city", pt.City), zap.String("county", pt.County))
		places, err := client.NearbySearch(ctx, google.NearbyRequest{
			Location: google.LatLng{Lat: pt.Lat, Lng: pt.Lon},
			RadiusM:  radiusM,
			Keyword:  keyword,
		})
		if err != nil {
			return nil, rep, err
		}

		for _, pl := range places {
			rep.Found++
			shop := fromPlace(pl, pt.County)
			key := DedupeKey(shop.Name, shop.Lat, shop.Lon)
			if seen[key] {
				rep.Duplicates++
				continue
			}
			seen[key] = true

			details, err := client.PlaceDetails(ctx, pl.PlaceID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, rep, ctx.Err()
				}
				rep.DetailErrors++
				log.Warn("place details failed", zap.String("place_id", pl.PlaceID), zap.Error(err))
			} else {
				applyDetails(&shop, details)
			}
			shops = append(shops, shop)
		}
	}

	rep.Successful = Mark(shops, minSuccesses)
	log.Info("shop survey complete",
		zap.Int("shops", len(shops)),
		zap.Int("successful", rep.Successful),
		zap.Int("duplicates", rep.Duplicates),
	)
	return shops, rep, nil
}

func fromPlace(pl google.Place, county string) model.Shop {
	return model.Shop{
		PlaceID:          pl.PlaceID,
		Name:             pl.Name,
		Address:          pl.Address,
		Lat:              pl.Location.Lat,
		Lon:              pl.Location.Lng,
		County:           county,
		Rating:           pl.Rating,
		UserRatingsTotal: pl.UserRatingsTotal,
		PriceLevel:       pl.PriceLevel,
		BusinessStatus:   pl.BusinessStatus,
	}
}

// applyDetails overlays the non-empty detail fields onto s. Coordinates
// stay those of the search result.
func applyDetails(s *model.Shop, d *google.PlaceDetails) {
	if d.Address != "" {
		s.Address = d.Address
	}
	if d.Rating != 0 {
		s.Rating = d.Rating
	}
	if d.UserRatingsTotal != 0 {
		s.UserRatingsTotal = d.UserRatingsTotal
	}
	if d.PriceLevel != 0 {
		s.PriceLevel = d.PriceLevel
	}
	if d.BusinessStatus != "" {
		s.BusinessStatus = d.BusinessStatus
	}
	s.Hours = strings.Join(d.WeekdayText, FieldSeparator)
	s.Reviews = strings.Join(d.Reviews, FieldSeparator)
}

// DedupeKey identifies a shop by accent- and case-folded name and its
// coordinates to six decimals.
func DedupeKey(name string, lat, lon float64) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}
	plain = strings.Join(strings.Fields(cases.Fold().String(plain)), " ")
	return fmt.Sprintf("%s|%.6f|%.6f", plain, lat, lon)
}
