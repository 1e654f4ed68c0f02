// Package record builds the flat submission record and projects it onto the
// live column layout of the workbook table.
package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GBSLIT/FairForm/internal/contacts"
	"github.com/GBSLIT/FairForm/internal/model"
)

// TimestampLayout is the wire format of FieldTimestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record holds one value per field: a string, an int or a []string.
type Record map[Field]any

// Get returns the raw value and whether the field was set.
func (r Record) Get(f Field) (any, bool) {
	v, ok := r[f]
	return v, ok
}

// String renders a field as cell text. Lists are joined with ", " and unset
// fields render as "".
func (r Record) String(f Field) string {
	return cellText(r[f])
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// Computed carries the values the pipeline derives rather than copies from
// the form.
type Computed struct {
	ID             string
	Now            time.Time
	Counts         model.Counts
	CataloguePages int
	FolderName     string
	FolderLink     string
}

// textFields copies single-valued inputs verbatim.
var textFields = []struct {
	key   string
	field Field
}{
	{"fairName", FieldFairName},
	{"companyName", FieldCompanyName},
	{"contactPerson", FieldContactPerson},
	{"contactEmail", FieldContactEmail},
	{"designation", FieldDesignation},
	{"fullAddress", FieldFullAddress},
	{"companyLocation", FieldCompanyLocation},
	{"city", FieldCity},
	{"country", FieldCountry},
	{"provinceState", FieldProvinceState},
	{"nearestAirport", FieldNearestAirport},
	{"nearestTrain", FieldNearestTrain},
	{"gbContact", FieldGlobalBaseContact},
	{"message", FieldMessage},
	{"yearEstablished", FieldYearEstablished},
}

// listFields may arrive as repeated inputs (checkbox groups).
var listFields = []struct {
	key   string
	field Field
}{
	{"keyProductCategory", FieldKeyProductCategory},
	{"companyType", FieldCompanyType},
	{"materials", FieldMaterials},
}

// Build assembles the complete record. Every field is present afterwards;
// inputs missing from the form become "".
func Build(form model.Form, c Computed) Record {
	rec := make(Record, fieldCount)
	for _, tf := range textFields {
		rec[tf.field] = strings.TrimSpace(form.Get(tf.key))
	}
	for _, lf := range listFields {
		vals := form.Values(lf.key)
		if len(vals) == 0 {
			rec[lf.field] = ""
			continue
		}
		trimmed := make([]string, 0, len(vals))
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				trimmed = append(trimmed, v)
			}
		}
		rec[lf.field] = trimmed
	}

	phone := strings.TrimSpace(form.Get("phoneFull"))
	if phone == "" {
		phone = strings.TrimSpace(form.Get("mobileNumber"))
	}
	rec[FieldMobileNumber] = phone

	rec[FieldGlobalBaseContactEmail] = contacts.Lookup(form.Get("gbContact"))

	rec[FieldID] = c.ID
	rec[FieldTimestamp] = c.Now.UTC().Format(TimestampLayout)
	rec[FieldVisitingCardCount] = c.Counts.VisitingCard
	rec[FieldBoothPhotoCount] = c.Counts.BoothPhotos
	rec[FieldCatalogueCount] = c.Counts.Catalogue
	rec[FieldCataloguePageCount] = c.CataloguePages
	rec[FieldFolderName] = c.FolderName
	rec[FieldFolderLink] = c.FolderLink
	return rec
}

// MapRow projects rec onto schema. The result has exactly len(schema) cells;
// a header with no known field, or whose field is unset, yields "". Lists are
// joined with ", ", integers stay numeric.
func MapRow(schema []string, rec Record) []any {
	row := make([]any, len(schema))
	for i, header := range schema {
		row[i] = ""
		f, ok := FieldForHeader(header)
		if !ok {
			continue
		}
		switch v := rec[f].(type) {
		case nil:
		case int:
			row[i] = v
		default:
			row[i] = cellText(v)
		}
	}
	return row
}
