package record

import "strings"

// Field tags one semantic value of a submission record.
type Field int

const (
	FieldID Field = iota
	FieldTimestamp
	FieldFairName
	FieldCompanyName
	FieldContactPerson
	FieldContactEmail
	FieldMobileNumber
	FieldDesignation
	FieldKeyProductCategory
	FieldCompanyType
	FieldMaterials
	FieldFullAddress
	FieldCompanyLocation
	FieldCity
	FieldCountry
	FieldProvinceState
	FieldNearestAirport
	FieldNearestTrain
	FieldGlobalBaseContact
	FieldGlobalBaseContactEmail
	FieldMessage
	FieldYearEstablished
	FieldVisitingCardCount
	FieldBoothPhotoCount
	FieldCatalogueCount
	FieldCataloguePageCount
	FieldFolderName
	FieldFolderLink

	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldID:                     "ID",
	FieldTimestamp:              "Timestamp",
	FieldFairName:               "FairName",
	FieldCompanyName:            "CompanyName",
	FieldContactPerson:          "ContactPerson",
	FieldContactEmail:           "ContactEmail",
	FieldMobileNumber:           "MobileNumber",
	FieldDesignation:            "Designation",
	FieldKeyProductCategory:     "KeyProductCategory",
	FieldCompanyType:            "CompanyType",
	FieldMaterials:              "Materials",
	FieldFullAddress:            "FullAddress",
	FieldCompanyLocation:        "CompanyLocation",
	FieldCity:                   "City",
	FieldCountry:                "Country",
	FieldProvinceState:          "ProvinceState",
	FieldNearestAirport:         "NearestAirport",
	FieldNearestTrain:           "NearestTrain",
	FieldGlobalBaseContact:      "GlobalBaseContact",
	FieldGlobalBaseContactEmail: "GlobalBaseContactEmail",
	FieldMessage:                "Message",
	FieldYearEstablished:        "YearEstablished",
	FieldVisitingCardCount:      "VisitingCardCount",
	FieldBoothPhotoCount:        "BoothPhotoCount",
	FieldCatalogueCount:         "CatalogueCount",
	FieldCataloguePageCount:     "CataloguePageCount",
	FieldFolderName:             "FolderName",
	FieldFolderLink:             "FolderLink",
}

// String returns the semantic name, e.g. "ContactEmail".
func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "Field(?)"
	}
	return fieldNames[f]
}

// Fields lists every tag in declaration order.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// HeaderFields maps spreadsheet header text to the field it displays. Keys are
// stored normalized (see NormalizeHeader). A header missing from this table is
// written as an empty cell, which lets staff add their own columns to the
// table without breaking submissions.
var HeaderFields = map[string]Field{
	"id":                        FieldID,
	"submission id":             FieldID,
	"timestamp":                 FieldTimestamp,
	"submitted at":              FieldTimestamp,
	"fair name":                 FieldFairName,
	"company name":              FieldCompanyName,
	"contact person":            FieldContactPerson,
	"contact email":             FieldContactEmail,
	"email":                     FieldContactEmail,
	"mobile number":             FieldMobileNumber,
	"phone":                     FieldMobileNumber,
	"designation":               FieldDesignation,
	"key product category":      FieldKeyProductCategory,
	"company type":              FieldCompanyType,
	"materials":                 FieldMaterials,
	"full address":              FieldFullAddress,
	"company location":          FieldCompanyLocation,
	"city":                      FieldCity,
	"country":                   FieldCountry,
	"province/state":            FieldProvinceState,
	"province / state":          FieldProvinceState,
	"nearest airport":           FieldNearestAirport,
	"nearest train station":     FieldNearestTrain,
	"nearest train":             FieldNearestTrain,
	"gb contact":                FieldGlobalBaseContact,
	"global base contact":       FieldGlobalBaseContact,
	"gb contact email":          FieldGlobalBaseContactEmail,
	"global base contact email": FieldGlobalBaseContactEmail,
	"message":                   FieldMessage,
	"year established":          FieldYearEstablished,
	"visiting cards":            FieldVisitingCardCount,
	"visiting card count":       FieldVisitingCardCount,
	"booth photos":              FieldBoothPhotoCount,
	"booth photo count":         FieldBoothPhotoCount,
	"catalogues":                FieldCatalogueCount,
	"catalogue count":           FieldCatalogueCount,
	"catalogue pages":           FieldCataloguePageCount,
	"folder name":               FieldFolderName,
	"folder link":               FieldFolderLink,
	"files link":                FieldFolderLink,
}

// NormalizeHeader trims, lower-cases and collapses inner whitespace.
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// FieldForHeader resolves a live column header.
func FieldForHeader(header string) (Field, bool) {
	f, ok := HeaderFields[NormalizeHeader(header)]
	return f, ok
}
