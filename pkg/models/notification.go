package models

import "time"

// NotificationKind identifies why a notification was posted.
type NotificationKind string

const (
	KindCorrelatedNotable NotificationKind = "correlated_notable"
	KindGlobalNotable     NotificationKind = "global_notable"
	KindInterestingFile   NotificationKind = "interesting_file"
	KindWarning           NotificationKind = "warning"
)

// Notification describes a found artifact or an operator warning.
type Notification struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	JobID         int64            `json:"job_id,omitempty"`
	CaseUUID      string           `json:"case_uid,omitempty"`
	CaseName      string           `json:"case_name,omitempty"`
	DeviceID      string           `json:"device_id,omitempty"`
	FileID        int64            `json:"file_id,omitempty"`
	FileName      string           `json:"file_name,omitempty"`
	FilePath      string           `json:"file_path,omitempty"`
	MD5           string           `json:"md5,omitempty"`
	PreviousCases []string         `json:"previous_cases,omitempty"`
	Rule          string           `json:"rule,omitempty"`
	Severity      string           `json:"severity,omitempty"`
	Title         string           `json:"title"`
	Message       string           `json:"message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
