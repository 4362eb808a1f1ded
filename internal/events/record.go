// Package events loads cleaned Paris event records produced by the
// upstream open-data export. The cleaner writes a semicolon-separated CSV
// whose headers are either the French labels of the public portal or the
// snake_case API field names; both are accepted.
package events

import "strings"

// Record is one cleaned source event. Every field is optional except ID,
// which identifies the event for coverage accounting.
type Record struct {
	// ID is the source event identifier.
	ID string
	// Title is the event title.
	Title string
	// Description is the short description.
	Description string
	// LongDescription is the long description, or the conditions detail
	// when the long description is empty.
	LongDescription string
	// LocationName is the venue name.
	LocationName string
	// LocationAddress is the venue street address.
	LocationAddress string
	// FirstDateBegin is the start timestamp of the first occurrence.
	FirstDateBegin string
	// LastDateEnd is the end timestamp of the last occurrence.
	LastDateEnd string
}

// Row is a single CSV row keyed by header name.
type Row map[string]string

// Candidate column names per field, in priority order.
var (
	idColumns              = []string{"Identifiant", "uid", "id"}
	titleColumns           = []string{"Titre", "title_fr", "title"}
	descriptionColumns     = []string{"Description", "description_fr", "description"}
	longDescriptionColumns = []string{"Description longue", "Détail des conditions", "longdescription_fr", "conditions_fr"}
	locationNameColumns    = []string{"Nom du lieu", "location_name"}
	locationAddressColumns = []string{"Adresse", "location_address"}
	firstDateColumns       = []string{"Première date - Début", "firstdate_begin"}
	lastDateColumns        = []string{"Dernière date - Fin", "lastdate_end"}
)

// FirstValid returns the trimmed value of the first key whose value is
// non-empty after trimming, or "" when none is.
func FirstValid(row Row, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" && !strings.EqualFold(v, "nan") {
			return v
		}
	}
	return ""
}

// FromRow maps a CSV row onto a Record, applying [FirstValid] to every
// field.
func FromRow(row Row) Record {
	return Record{
		ID:              FirstValid(row, idColumns...),
		Title:           FirstValid(row, titleColumns...),
		Description:     FirstValid(row, descriptionColumns...),
		LongDescription: FirstValid(row, longDescriptionColumns...),
		LocationName:    FirstValid(row, locationNameColumns...),
		LocationAddress: FirstValid(row, locationAddressColumns...),
		FirstDateBegin:  FirstValid(row, firstDateColumns...),
		LastDateEnd:     FirstValid(row, lastDateColumns...),
	}
}
