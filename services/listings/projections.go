package listings

import (
	"fmt"
	"slices"
	"strings"

	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// the fixed columns always lead the column union
var fixedColumns = []string{"Brand", "Model", "Year"}

// Columns returns the union of field names observed across all
// entries: the fixed columns first, then spec columns in first-seen
// entry order (alphabetical within one entry, since spec fields carry
// no order of their own).
func (s *Session) Columns() []string {
	columns := append([]string{}, fixedColumns...)
	seen := map[string]struct{}{}

	for _, entry := range s.Entries {
		var fresh []string
		for key := range entry.Specs {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh = append(fresh, key)
		}
		slices.Sort(fresh)
		columns = append(columns, fresh...)
	}

	return columns
}

// Brands returns the distinct brand values present, sorted.
func (s *Session) Brands() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, entry := range s.Entries {
		if entry.Brand == "" {
			continue
		}
		if _, ok := seen[entry.Brand]; ok {
			continue
		}
		seen[entry.Brand] = struct{}{}
		out = append(out, entry.Brand)
	}
	slices.Sort(out)
	return out
}

// Filter returns the entries whose value for the column contains the
// query, case-insensitively. An empty query matches everything. The
// session itself is never mutated; the result is a fresh slice.
func (s *Session) Filter(column, query string) []carsheet.Entry {
	if query == "" {
		return slices.Clone(s.Entries)
	}
	query = strings.ToLower(query)

	var out []carsheet.Entry
	for _, entry := range s.Entries {
		if strings.Contains(strings.ToLower(entry.Field(column)), query) {
			out = append(out, entry)
		}
	}
	return out
}

const brandMatchThreshold = 0.8

// MatchBrand resolves a user-typed brand query against the brands
// present in the session: exact case-insensitive match first, then the
// closest JaroWinkler match above the threshold.
func (s *Session) MatchBrand(query string) (string, bool) {
	brands := s.Brands()
	for _, brand := range brands {
		if strings.EqualFold(brand, query) {
			return brand, true
		}
	}

	var mostSimilarity float64
	var mostSimilar string
	for _, brand := range brands {
		similarity := matchr.JaroWinkler(
			strings.ToLower(query),
			strings.ToLower(brand),
			false,
		)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			mostSimilar = brand
		}
	}

	if mostSimilarity > brandMatchThreshold {
		return mostSimilar, true
	}
	return "", false
}

type AggregateFunc string

const (
	AggregateCount   AggregateFunc = "count"
	AggregateAverage AggregateFunc = "average"
	AggregateSum     AggregateFunc = "sum"
	AggregateMedian  AggregateFunc = "median"
)

func ParseAggregateFunc(name string) (AggregateFunc, error) {
	fn := AggregateFunc(strings.ToLower(name))
	switch fn {
	case AggregateCount, AggregateAverage, AggregateSum, AggregateMedian:
		return fn, nil
	}
	return "", fmt.Errorf("unknown aggregate function %q", name)
}

type Bucket struct {
	Brand string  `json:"brand"`
	Value float64 `json:"value"`
}

// Aggregate groups entries by brand and reduces a numeric coercion of
// one column into a value per brand. Entries with a blank brand or no
// usable number in the column are skipped, count included ("count" is
// the count of usable values, matching how a spreadsheet would count
// non-empty cells). Buckets come back sorted by value descending, ties
// broken by brand name.
func (s *Session) Aggregate(column string, fn AggregateFunc) ([]Bucket, error) {
	if _, err := ParseAggregateFunc(string(fn)); err != nil {
		return nil, err
	}

	values := map[string][]float64{}
	for _, entry := range s.Entries {
		if entry.Brand == "" {
			continue
		}
		value, ok := textutil.Numeric(entry.Field(column))
		if !ok {
			continue
		}
		values[entry.Brand] = append(values[entry.Brand], value)
	}

	buckets := make([]Bucket, 0, len(values))
	for brand, series := range values {
		var value float64
		switch fn {
		case AggregateCount:
			value = float64(len(series))
		case AggregateAverage:
			value = sum(series) / float64(len(series))
		case AggregateSum:
			value = sum(series)
		case AggregateMedian:
			value = median(series)
		}
		buckets = append(buckets, Bucket{Brand: brand, Value: value})
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		if a.Value > b.Value {
			return -1
		}
		if a.Value < b.Value {
			return 1
		}
		return strings.Compare(a.Brand, b.Brand)
	})
	return buckets, nil
}

func sum(series []float64) float64 {
	var total float64
	for _, v := range series {
		total += v
	}
	return total
}

func median(series []float64) float64 {
	sorted := slices.Clone(series)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
