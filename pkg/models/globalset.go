package models

import "time"

// GlobalSet is an imported reference set of hashes owned by an organization.
type GlobalSet struct {
	ID         int64     `json:"id"`
	OrgID      int64     `json:"org_id"`
	Name       string    `json:"set_name"`
	Version    string    `json:"version"`
	ImportDate time.Time `json:"import_date"`
}

// GlobalFileInstance is one hash entry of a reference set.
type GlobalFileInstance struct {
	ID      int64       `json:"id"`
	SetID   int64       `json:"global_reference_set_id"`
	Value   string      `json:"value"`
	Known   KnownStatus `json:"known_status"`
	Comment string      `json:"comment,omitempty"`
}
