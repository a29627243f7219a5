package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// caseNamespace scopes name-derived case UUIDs.
var caseNamespace = uuid.MustParse("6f1c2b0e-3d4a-5e8f-9a7b-1c2d3e4f5a6b")

// Organization is the lab that owns cases and reference sets.
type Organization struct {
	ID       int64  `json:"id"`
	Name     string `json:"org_name"`
	POCName  string `json:"poc_name,omitempty"`
	POCEmail string `json:"poc_email,omitempty"`
	POCPhone string `json:"poc_phone,omitempty"`
}

// Case is the correlation record of an examination case.
type Case struct {
	ID            int64         `json:"id"`
	UUID          string        `json:"case_uid"`
	Org           *Organization `json:"org,omitempty"`
	DisplayName   string        `json:"case_name"`
	CreationDate  time.Time     `json:"creation_date"`
	CaseNumber    string        `json:"case_number,omitempty"`
	ExaminerName  string        `json:"examiner_name,omitempty"`
	ExaminerEmail string        `json:"examiner_email,omitempty"`
	ExaminerPhone string        `json:"examiner_phone,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

// NewCase builds a case record stamped with the current time.
func NewCase(caseUUID, displayName string) *Case {
	return &Case{
		UUID:         strings.TrimSpace(caseUUID),
		DisplayName:  strings.TrimSpace(displayName),
		CreationDate: time.Now().UTC(),
	}
}

// CaseUUIDFromName derives a stable case UUID from a case name.
func CaseUUIDFromName(name string) string {
	return uuid.NewSHA1(caseNamespace, []byte(strings.TrimSpace(name))).String()
}

// DataSource is a device or image examined within a case.
type DataSource struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	CaseUUID string `json:"case_uid,omitempty"`
	Name     string `json:"name"`
}
