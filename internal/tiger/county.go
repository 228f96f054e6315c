package tiger

import "strings"

// DefaultCountyOverrides pins tract codes whose county cannot be derived
// from block attributes in the source dataset.
var DefaultCountyOverrides = map[string]string{
	"5": "163", "8005": "163", "8010": "163",
	"5120": "115",
	"6060": "147", "6065": "147", "6070": "147", "6075": "147",
	"6080": "147", "6085": "147", "6090": "147", "6095": "147",
	"6100": "147", "6105": "147", "6110": "147", "6115": "147",
	"6125": "147", "6135": "147", "6140": "147", "6145": "147",
	"6150": "147", "6155": "147", "6160": "147", "6165": "147",
	"7015": "093", "7020": "093", "7025": "093", "7030": "093",
	"7035": "093", "7040": "093", "7045": "093", "7050": "093",
	"7055": "093", "7060": "093", "7065": "093", "7070": "093",
	"7075": "093", "7080": "093", "7085": "093", "7090": "093",
	"7095": "093", "7100": "093",
	"8015": "161",
	"8020": "125",
}

// minMappedTracts is the size below which the GEOID-derived tract codes are
// also added to the mapping.
const minMappedTracts = 100

// BuildCountyMapping maps dataset tract codes to 3-digit county FIPS codes.
// Overrides come first, then block code → county (first block seen wins),
// then, if the map is still small, the tract code embedded in GEOID20
// without leading zeros. Existing keys are never overwritten and empty
// values are dropped.
func BuildCountyMapping(blocks []Block, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(overrides)+len(blocks))
	for k, v := range overrides {
		if k != "" && v != "" {
			out[k] = v
		}
	}

	add := func(k, v string) {
		if k == "" || v == "" {
			return
		}
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}

	for _, b := range blocks {
		add(b.BlockCE, b.CountyFP)
	}

	if len(out) < minMappedTracts {
		for _, b := range blocks {
			add(TractFromGEOID(b.GEOID), b.CountyFP)
		}
	}
	return out
}

// TractFromGEOID returns characters 5..11 of a block GEOID (the tract code)
// with leading zeros stripped. A short GEOID yields whatever part of that
// range it has. An all-zero code yields "", which BuildCountyMapping drops
// because it names no tract.
func TractFromGEOID(geoid string) string {
	if len(geoid) <= 5 {
		return ""
	}
	end := min(len(geoid), 11)
	return strings.TrimLeft(geoid[5:end], "0")
}
