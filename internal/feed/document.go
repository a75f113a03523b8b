// Package feed owns the generated feed document: an ordered XML collection
// of job entries, one per external record, with atomic backup-and-rollback
// mutations.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/jonathan/feedsync/internal/types"
)

// dateLayout is the publication date format expected by feed consumers.
const dateLayout = time.RFC1123Z

// xmlHeader precedes every serialized document.
const xmlHeader = xml.Header

// cdata wraps a field payload so consumers treat it verbatim. Description
// fields carry embedded markup that must not be escaped.
type cdata struct {
	Text string `xml:",cdata"`
}

// xmlEntry is the serialized form of one artifact entry.
type xmlEntry struct {
	XMLName           xml.Name `xml:"job"`
	ReferenceCode     cdata    `xml:"referencenumber"`
	ExternalID        cdata    `xml:"externalid"`
	Title             cdata    `xml:"title"`
	Description       cdata    `xml:"description"`
	City              cdata    `xml:"city"`
	State             cdata    `xml:"state"`
	Country           cdata    `xml:"country"`
	EmploymentKind    cdata    `xml:"jobtype"`
	WorkArrangement   cdata    `xml:"workarrangement"`
	AssignedOwnerName cdata    `xml:"recruiter"`
	Function          cdata    `xml:"function"`
	Industry          cdata    `xml:"industry"`
	Seniority         cdata    `xml:"seniority"`
	Date              cdata    `xml:"date"`
}

// xmlDocument is the serialized feed container.
type xmlDocument struct {
	XMLName xml.Name   `xml:"jobs"`
	Entries []xmlEntry `xml:"job"`
}

// toXMLEntry converts an artifact entry to its serialized form.
func toXMLEntry(e types.ArtifactEntry) xmlEntry {
	return xmlEntry{
		ReferenceCode:     cdata{e.ReferenceCode},
		ExternalID:        cdata{e.ExternalID},
		Title:             cdata{e.Title},
		Description:       cdata{e.Description},
		City:              cdata{e.City},
		State:             cdata{e.State},
		Country:           cdata{e.Country},
		EmploymentKind:    cdata{e.EmploymentKind},
		WorkArrangement:   cdata{e.WorkArrangement},
		AssignedOwnerName: cdata{e.AssignedOwnerName},
		Function:          cdata{e.Function},
		Industry:          cdata{e.Industry},
		Seniority:         cdata{e.Seniority},
		Date:              cdata{e.PostedAt.Format(dateLayout)},
	}
}

// fromXMLEntry converts a serialized entry back to an artifact entry. A
// malformed date is tolerated and mapped to the zero time; structural
// validation only requires the identifying fields.
func fromXMLEntry(x xmlEntry) types.ArtifactEntry {
	postedAt, _ := time.Parse(dateLayout, x.Date.Text)
	return types.ArtifactEntry{
		ReferenceCode:     x.ReferenceCode.Text,
		ExternalID:        x.ExternalID.Text,
		Title:             x.Title.Text,
		Description:       x.Description.Text,
		City:              x.City.Text,
		State:             x.State.Text,
		Country:           x.Country.Text,
		EmploymentKind:    x.EmploymentKind.Text,
		WorkArrangement:   x.WorkArrangement.Text,
		AssignedOwnerName: x.AssignedOwnerName.Text,
		Function:          x.Function.Text,
		Industry:          x.Industry.Text,
		Seniority:         x.Seniority.Text,
		PostedAt:          postedAt,
	}
}

// marshalDocument serializes entries in order into the feed XML format.
func marshalDocument(entries []types.ArtifactEntry) ([]byte, error) {
	doc := xmlDocument{Entries: make([]xmlEntry, 0, len(entries))}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, toXMLEntry(e))
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feed document: %w", err)
	}

	return append([]byte(xmlHeader), append(body, '\n')...), nil
}

// parseDocument deserializes a feed document, preserving entry order.
func parseDocument(data []byte) ([]types.ArtifactEntry, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed document: %w", err)
	}

	entries := make([]types.ArtifactEntry, 0, len(doc.Entries))
	for _, x := range doc.Entries {
		entries = append(entries, fromXMLEntry(x))
	}
	return entries, nil
}
