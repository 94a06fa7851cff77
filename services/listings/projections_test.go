package listings

import (
	"testing"

	"carsheet-backend/lib/scrapers/carsheet"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fixtureSession() *Session {
	return &Session{
		Entries: []carsheet.Entry{
			{Brand: "Toyota", Model: "Corolla", Year: 2020, Specs: map[string]string{
				"MSRP":       "$21,550",
				"Horsepower": "169 hp",
			}},
			{Brand: "Audi", Model: "TT", Year: 2024, Specs: map[string]string{
				"MSRP":       "$53,200",
				"Drivetrain": "AWD",
			}},
			{Brand: "Audi", Model: "R8", Year: 2023, Specs: map[string]string{
				"MSRP": "$158,600",
			}},
			{Brand: "Toyota", Model: "Supra", Specs: map[string]string{
				"Horsepower": "382 hp",
			}},
		},
		PagesFetched: 2,
	}
}

func TestColumns(t *testing.T) {
	session := fixtureSession()
	require.Equal(
		t,
		[]string{"Brand", "Model", "Year", "Horsepower", "MSRP", "Drivetrain"},
		session.Columns(),
	)
}

func TestColumnsEmptySession(t *testing.T) {
	session := &Session{}
	require.Equal(t, []string{"Brand", "Model", "Year"}, session.Columns())
}

func TestBrands(t *testing.T) {
	session := fixtureSession()
	require.Equal(t, []string{"Audi", "Toyota"}, session.Brands())
}

func TestFilter(t *testing.T) {
	session := fixtureSession()

	matched := session.Filter("Brand", "toy")
	require.Len(t, matched, 2)
	require.Equal(t, "Corolla", matched[0].Model)
	require.Equal(t, "Supra", matched[1].Model)

	require.Len(t, session.Filter("Model", "CORO"), 1)
	require.Len(t, session.Filter("MSRP", "$"), 3)
	require.Len(t, session.Filter("Drivetrain", "awd"), 1)
	require.Empty(t, session.Filter("Model", "zzz"))

	// empty query matches everything, and the projection never hands
	// out the session's own backing slice
	all := session.Filter("Model", "")
	require.Len(t, all, 4)
	all[0] = carsheet.Entry{}
	require.Equal(t, "Corolla", session.Entries[0].Model)
}

func TestMatchBrand(t *testing.T) {
	session := fixtureSession()

	brand, ok := session.MatchBrand("audi")
	require.True(t, ok)
	require.Equal(t, "Audi", brand)

	brand, ok = session.MatchBrand("Toyotta")
	require.True(t, ok)
	require.Equal(t, "Toyota", brand)

	_, ok = session.MatchBrand("Lamborghini")
	require.False(t, ok)
}

func TestAggregate(t *testing.T) {
	session := fixtureSession()

	testCases := []struct {
		column   string
		fn       AggregateFunc
		expected []Bucket
	}{
		{
			column: "MSRP",
			fn:     AggregateAverage,
			expected: []Bucket{
				{Brand: "Audi", Value: 105900},
				{Brand: "Toyota", Value: 21550},
			},
		},
		{
			column: "MSRP",
			fn:     AggregateSum,
			expected: []Bucket{
				{Brand: "Audi", Value: 211800},
				{Brand: "Toyota", Value: 21550},
			},
		},
		{
			column: "MSRP",
			fn:     AggregateMedian,
			expected: []Bucket{
				{Brand: "Audi", Value: 105900},
				{Brand: "Toyota", Value: 21550},
			},
		},
		{
			// only Toyota rows carry horsepower
			column: "Horsepower",
			fn:     AggregateCount,
			expected: []Bucket{
				{Brand: "Toyota", Value: 2},
			},
		},
		{
			column: "Year",
			fn:     AggregateCount,
			expected: []Bucket{
				{Brand: "Audi", Value: 2},
				{Brand: "Toyota", Value: 1},
			},
		},
	}

	for _, test := range testCases {
		buckets, err := session.Aggregate(test.column, test.fn)
		require.NoError(t, err)
		if diff := cmp.Diff(test.expected, buckets); diff != "" {
			t.Errorf("%s/%s mismatch (-want +got):\n%s", test.fn, test.column, diff)
		}
	}
}

func TestAggregateUnknownFunc(t *testing.T) {
	session := fixtureSession()
	_, err := session.Aggregate("MSRP", "variance")
	require.Error(t, err)
}

func TestParseAggregateFunc(t *testing.T) {
	fn, err := ParseAggregateFunc("Median")
	require.NoError(t, err)
	require.Equal(t, AggregateMedian, fn)

	_, err = ParseAggregateFunc("mode")
	require.Error(t, err)
}
