package tiger

import (
	"fmt"
	"strings"
)

// DefaultBaseURL is the Census Bureau TIGER/Line root.
const DefaultBaseURL = "https://www2.census.gov/geo/tiger"

// BlockURL returns the 2020 tabulation block ZIP for a state, e.g.
// .../TIGER2024/TABBLOCK20/tl_2024_26_tabblock20.zip.
func BlockURL(base string, year int, stateFIPS string) string {
	return productURL(base, year, "TABBLOCK20", fmt.Sprintf("tl_%d_%s_tabblock20.zip", year, stateFIPS))
}

// TractURL returns the census tract ZIP for a state.
func TractURL(base string, year int, stateFIPS string) string {
	return productURL(base, year, "TRACT", fmt.Sprintf("tl_%d_%s_tract.zip", year, stateFIPS))
}

func productURL(base string, year int, dir, file string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/TIGER%d/%s/%s", strings.TrimRight(base, "/"), year, dir, file)
}
