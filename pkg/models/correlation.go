package models

import (
	"errors"
	"fmt"
	"strings"
)

// Correlation type IDs of the default catalog.
const (
	FilesTypeID  = 0
	DomainTypeID = 1
	EmailTypeID  = 2
	PhoneTypeID  = 3
	USBIDTypeID  = 4
)

// FilesTypeName is the name of the file-hash correlation type.
const FilesTypeName = "FILES"

// CorrelationType is one correlatable dimension.
type CorrelationType struct {
	ID        int    `json:"id"`
	Name      string `json:"display_name"`
	Supported bool   `json:"supported"`
	Enabled   bool   `json:"enabled"`
}

// DefaultCorrelationTypes returns the catalog every store is seeded with.
func DefaultCorrelationTypes() []CorrelationType {
	return []CorrelationType{
		{ID: FilesTypeID, Name: FilesTypeName, Supported: true, Enabled: true},
		{ID: DomainTypeID, Name: "DOMAIN", Supported: true, Enabled: false},
		{ID: EmailTypeID, Name: "EMAIL", Supported: true, Enabled: false},
		{ID: PhoneTypeID, Name: "PHONE", Supported: true, Enabled: false},
		{ID: USBIDTypeID, Name: "USBID", Supported: true, Enabled: false},
	}
}

// KnownStatus mirrors the file classification of the host file system library.
type KnownStatus int

const (
	Unknown KnownStatus = iota
	Known
	Bad
)

var knownStatusNames = [...]string{"UNKNOWN", "KNOWN", "BAD"}

func (k KnownStatus) String() string {
	if k < 0 || int(k) >= len(knownStatusNames) {
		return fmt.Sprintf("KnownStatus(%d)", int(k))
	}
	return knownStatusNames[k]
}

// ParseKnownStatus parses a known status name.
func ParseKnownStatus(s string) (KnownStatus, error) {
	for i, name := range knownStatusNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return KnownStatus(i), nil
		}
	}
	return Unknown, fmt.Errorf("invalid known status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k KnownStatus) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KnownStatus) UnmarshalText(b []byte) error {
	v, err := ParseKnownStatus(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// GlobalStatus separates case-local tagging from cross-case notability.
type GlobalStatus int

const (
	Local GlobalStatus = iota
	Global
)

func (g GlobalStatus) String() string {
	if g == Global {
		return "GLOBAL"
	}
	return "LOCAL"
}

// ParseGlobalStatus parses a global status name.
func ParseGlobalStatus(s string) (GlobalStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL", "":
		return Local, nil
	case "GLOBAL":
		return Global, nil
	}
	return Local, fmt.Errorf("invalid global status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (g GlobalStatus) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GlobalStatus) UnmarshalText(b []byte) error {
	v, err := ParseGlobalStatus(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Instance is one occurrence of a correlation value.
type Instance struct {
	Case       *Case        `json:"case"`
	DataSource *DataSource  `json:"data_source"`
	FilePath   string       `json:"file_path"`
	Comment    string       `json:"comment,omitempty"`
	Known      KnownStatus  `json:"known_status"`
	Global     GlobalStatus `json:"global_status"`
}

// Artifact is a correlation value with the occurrences being recorded for it.
type Artifact struct {
	Type      CorrelationType `json:"type"`
	Value     string          `json:"value"`
	Instances []Instance      `json:"instances"`
}

// NewArtifact builds an artifact with a normalized value.
func NewArtifact(typ CorrelationType, value string, instances ...Instance) *Artifact {
	return &Artifact{
		Type:      typ,
		Value:     NormalizeValue(typ.ID, value),
		Instances: instances,
	}
}

// NormalizeValue canonicalizes a correlation value for its type.
func NormalizeValue(typeID int, value string) string {
	v := strings.TrimSpace(value)
	switch typeID {
	case FilesTypeID, DomainTypeID, EmailTypeID:
		return strings.ToLower(v)
	}
	return v
}

// Validate reports whether the artifact can be written.
func (a *Artifact) Validate() error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if strings.TrimSpace(a.Value) == "" {
		return errors.New("artifact value is empty")
	}
	if len(a.Instances) == 0 {
		return errors.New("artifact has no instances")
	}
	for i, inst := range a.Instances {
		if inst.Case == nil || strings.TrimSpace(inst.Case.UUID) == "" {
			return fmt.Errorf("instance %d has no case", i)
		}
		if inst.DataSource == nil || strings.TrimSpace(inst.DataSource.DeviceID) == "" {
			return fmt.Errorf("instance %d has no data source", i)
		}
	}
	return nil
}
