// Package events handles case events published by the host application:
// examiner tags, new data sources and case changes.
package events

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"centralrepo/pkg/models"
)

// Name identifies a case event.
type Name string

const (
	ContentTagAdded            Name = "CONTENT_TAG_ADDED"
	BlackboardArtifactTagAdded Name = "BLACKBOARD_ARTIFACT_TAG_ADDED"
	DataSourceAdded            Name = "DATA_SOURCE_ADDED"
	CurrentCase                Name = "CURRENT_CASE"
)

// Event is the envelope delivered by the case-event bus.
type Event struct {
	Name     Name            `json:"name"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	NewValue json.RawMessage `json:"new_value,omitempty"`
}

// ContentRef identifies tagged file content.
type ContentRef struct {
	ObjectID   int64  `json:"id"`
	Name       string `json:"name"`
	ParentPath string `json:"parent_path"`
	MD5        string `json:"md5"`
}

// AttributeRef is one correlatable attribute of a tagged artifact.
type AttributeRef struct {
	TypeID int    `json:"type_id"`
	Value  string `json:"value"`
}

// TagAdded is the new value of a tag-added event.
type TagAdded struct {
	TagName    string             `json:"tag_name"`
	Comment    string             `json:"comment,omitempty"`
	Case       *models.Case       `json:"case"`
	DataSource *models.DataSource `json:"data_source"`
	Content    *ContentRef        `json:"content,omitempty"`
	Attributes []AttributeRef     `json:"attributes,omitempty"`
}

// DataSourceAddedValue is the new value of a DATA_SOURCE_ADDED event.
type DataSourceAddedValue struct {
	Case       *models.Case       `json:"case"`
	DataSource *models.DataSource `json:"data_source"`
}

// Decode parses an event envelope.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode case event: %w", err)
	}
	if strings.TrimSpace(string(ev.Name)) == "" {
		return Event{}, fmt.Errorf("decode case event: missing name")
	}
	return ev, nil
}

// Encode builds the envelope for name with newValue.
func Encode(name Name, newValue interface{}) ([]byte, error) {
	raw, err := json.Marshal(newValue)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Name: name, NewValue: raw})
}

// normalizeCase fills the case UUID from the display name when absent.
func normalizeCase(c *models.Case) *models.Case {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(c.UUID) == "" {
		if strings.TrimSpace(c.DisplayName) == "" {
			return nil
		}
		c.UUID = models.CaseUUIDFromName(c.DisplayName)
	}
	if c.DisplayName == "" {
		c.DisplayName = c.UUID
	}
	return c
}
