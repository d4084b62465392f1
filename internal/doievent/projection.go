package doievent

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// Contributor is the DOI-relevant part of a contributor.
type Contributor struct {
	Name       string `json:"name,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// Projection is the subset of a resource that determines whether the DOI
// registrar needs an update.
type Projection struct {
	ResourceIdentifier string        `json:"resourceIdentifier"`
	Contributors       []Contributor `json:"contributors,omitempty"`
	PublicationYear    string        `json:"publicationYear,omitempty"`
	PublicationMonth   string        `json:"publicationMonth,omitempty"`
	PublicationDay     string        `json:"publicationDay,omitempty"`
	PublisherID        string        `json:"publisherId,omitempty"`
	PublisherName      string        `json:"publisherName,omitempty"`
	Title              string        `json:"title,omitempty"`
	InstanceType       string        `json:"instanceType,omitempty"`
	Doi                string        `json:"doi,omitempty"`
}

// Project extracts the projection of r. Text is NFC-normalised and trimmed
// so that equivalent encodings compare equal.
func Project(r *entity.Resource) Projection {
	if r == nil {
		return Projection{}
	}

	d := r.EntityDescription
	p := Projection{
		ResourceIdentifier: r.Identifier,
		Title:              clean(d.MainTitle),
		InstanceType:       d.InstanceType,
		Doi:                strings.TrimSpace(r.Doi),
	}
	for _, c := range d.Contributors {
		p.Contributors = append(p.Contributors, Contributor{
			Name:       clean(c.Name),
			Identifier: c.Identifier,
		})
	}
	if d.PublicationDate != nil {
		p.PublicationYear = d.PublicationDate.Year
		p.PublicationMonth = d.PublicationDate.Month
		p.PublicationDay = d.PublicationDate.Day
	}
	if d.Publisher != nil {
		p.PublisherID = d.Publisher.Identifier
		p.PublisherName = clean(d.Publisher.Name)
	}
	return p
}

// Equal reports whether p and o are field-for-field identical.
func (p Projection) Equal(o Projection) bool {
	return p.ResourceIdentifier == o.ResourceIdentifier &&
		slices.Equal(p.Contributors, o.Contributors) &&
		p.PublicationYear == o.PublicationYear &&
		p.PublicationMonth == o.PublicationMonth &&
		p.PublicationDay == o.PublicationDay &&
		p.PublisherID == o.PublisherID &&
		p.PublisherName == o.PublisherName &&
		p.Title == o.Title &&
		p.InstanceType == o.InstanceType &&
		p.Doi == o.Doi
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
