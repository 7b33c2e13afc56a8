package archive

import "time"

// staticDate is one entry of the bundled well-known-publication dataset,
// grounded verbatim on original_source/src/api/chronicling_america_earliest_dates.py's
// IMPORTANT_NEWSPAPERS table.
type staticDate struct {
	Title        string
	EarliestDate time.Time
	LatestDate   time.Time
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// staticDates is the bundled dataset consulted before falling back to
// the archive's own JSON endpoint or an HTML scrape.
var staticDates = map[string]staticDate{
	"sn83045604": {
		Title:        "The Seattle post-intelligencer",
		EarliestDate: mustDate("1888-05-11"),
		LatestDate:   mustDate("1900-12-31"),
	},
	"sn83030213": {
		Title:        "New-York daily tribune",
		EarliestDate: mustDate("1842-04-22"),
		LatestDate:   mustDate("1866-04-12"),
	},
	"sn83030214": {
		Title:        "New-York tribune",
		EarliestDate: mustDate("1866-04-10"),
		LatestDate:   mustDate("1922-12-31"),
	},
	"sn84026749": {
		Title:        "The Washington times",
		EarliestDate: mustDate("1902-12-01"),
		LatestDate:   mustDate("1920-12-31"),
	},
}
