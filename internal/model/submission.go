// Package model contains the request-scoped types shared across packages.
package model

// GroupName identifies one of the form's file inputs.
type GroupName string

const (
	GroupVisitingCard GroupName = "visitingCard"
	GroupBoothPhotos  GroupName = "boothPhotos"
	GroupCatalogue    GroupName = "catalogue"
)

// Groups lists the upload groups in the order they are processed.
var Groups = []GroupName{GroupVisitingCard, GroupBoothPhotos, GroupCatalogue}

// MaxFiles caps the number of attachments accepted per group.
var MaxFiles = map[GroupName]int{
	GroupVisitingCard: 10,
	GroupBoothPhotos:  30,
	GroupCatalogue:    20,
}

// Attachment is one uploaded file held in memory for the duration of a
// request.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FileGroup is a named, ordered set of attachments.
type FileGroup struct {
	Name  GroupName
	Files []Attachment
}

// Counts reports successfully uploaded files per group.
type Counts struct {
	VisitingCard int `json:"visitingCard"`
	BoothPhotos  int `json:"boothPhotos"`
	Catalogue    int `json:"catalogue"`
}

// Set stores n under the given group.
func (c *Counts) Set(g GroupName, n int) {
	switch g {
	case GroupVisitingCard:
		c.VisitingCard = n
	case GroupBoothPhotos:
		c.BoothPhotos = n
	case GroupCatalogue:
		c.Catalogue = n
	}
}

// Form carries the submitted text fields. Multi-valued inputs keep every
// value; everything absent is nil and reads back as "".
type Form map[string][]string

// Get returns the first value of key, or "".
func (f Form) Get(key string) string {
	if vs := f[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns every non-empty value of key.
func (f Form) Values(key string) []string {
	var out []string
	for _, v := range f[key] {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Submission is one parsed form post.
type Submission struct {
	Form   Form
	Groups []FileGroup
}

// Group returns the files submitted under name.
func (s *Submission) Group(name GroupName) FileGroup {
	for _, g := range s.Groups {
		if g.Name == name {
			return g
		}
	}
	return FileGroup{Name: name}
}
