package ats

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/feedsync/internal/types"
)

// acceptingStatuses is the set of remote statuses under which an open,
// non-deleted record counts as active.
var acceptingStatuses = map[string]bool{
	"Accepting Candidates": true,
	"Open":                 true,
	"Published":            true,
}

// apiPerson is a nested owner shape on the remote record.
type apiPerson struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// apiRecord is the remote record shape returned by the search surface. The
// remote API is a loosely typed document store; every field is optional.
type apiRecord struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	PublicDescription string `json:"publicDescription"`
	Address           struct {
		City        string `json:"city"`
		State       string `json:"state"`
		CountryName string `json:"countryName"`
	} `json:"address"`
	EmploymentType string `json:"employmentType"`
	OnSite         string `json:"onSite"`
	Owner          *apiPerson `json:"owner"`
	ResponseUser   *apiPerson `json:"responseUser"`
	AssignedUsers  *struct {
		Data []apiPerson `json:"data"`
	} `json:"assignedUsers"`
	DateLastModified int64  `json:"dateLastModified"`
	IsOpen           bool   `json:"isOpen"`
	IsDeleted        bool   `json:"isDeleted"`
	Status           string `json:"status"`
}

// mapRecord converts a raw remote record into the tagged Record struct.
// Unknown or missing fields map to safe zero values rather than propagating
// through formatting.
func mapRecord(raw apiRecord) types.Record {
	return types.Record{
		ExternalID:  strconv.FormatInt(raw.ID, 10),
		Title:       strings.TrimSpace(raw.Title),
		Description: raw.PublicDescription,
		Location: types.Location{
			City:    strings.TrimSpace(raw.Address.City),
			State:   strings.TrimSpace(raw.Address.State),
			Country: strings.TrimSpace(raw.Address.CountryName),
		},
		EmploymentKind:    normalizeEmploymentKind(raw.EmploymentType),
		WorkArrangement:   normalizeWorkArrangement(raw.OnSite),
		AssignedOwnerName: ownerName(raw),
		LastModifiedAt:    time.UnixMilli(raw.DateLastModified).UTC(),
		IsActive:          raw.IsOpen && !raw.IsDeleted && acceptingStatuses[raw.Status],
	}
}

// ownerName derives the assigned owner from the possible nested owner
// fields; the first non-empty wins.
func ownerName(raw apiRecord) string {
	if raw.AssignedUsers != nil && len(raw.AssignedUsers.Data) > 0 {
		if name := personName(raw.AssignedUsers.Data[0]); name != "" {
			return name
		}
	}
	if raw.Owner != nil {
		if name := personName(*raw.Owner); name != "" {
			return name
		}
	}
	if raw.ResponseUser != nil {
		if name := personName(*raw.ResponseUser); name != "" {
			return name
		}
	}
	return ""
}

func personName(p apiPerson) string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

func normalizeEmploymentKind(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "contract":
		return "contract"
	case "contract to hire", "contract-to-hire":
		return "contract-to-hire"
	case "direct hire", "direct-hire", "permanent":
		return "direct-hire"
	default:
		return strings.ToLower(strings.TrimSpace(v))
	}
}

func normalizeWorkArrangement(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "remote":
		return "remote"
	case "hybrid":
		return "hybrid"
	case "on-site", "onsite", "on site":
		return "onsite"
	case "no preference", "":
		return "no-preference"
	default:
		return strings.ToLower(strings.TrimSpace(v))
	}
}
