package sqlstore

import (
	"database/sql"
	"time"

	"centralrepo/pkg/models"
)

type orgRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"org_name"`
	POCName  string `db:"poc_name"`
	POCEmail string `db:"poc_email"`
	POCPhone string `db:"poc_phone"`
}

func (r orgRow) model() models.Organization {
	return models.Organization{ID: r.ID, Name: r.Name, POCName: r.POCName, POCEmail: r.POCEmail, POCPhone: r.POCPhone}
}

type caseRow struct {
	ID            int64          `db:"id"`
	UUID          string         `db:"case_uid"`
	OrgID         sql.NullInt64  `db:"org_id"`
	DisplayName   string         `db:"case_name"`
	CreationDate  string         `db:"creation_date"`
	CaseNumber    string         `db:"case_number"`
	ExaminerName  string         `db:"examiner_name"`
	ExaminerEmail string         `db:"examiner_email"`
	ExaminerPhone string         `db:"examiner_phone"`
	Notes         string         `db:"notes"`
	OrgName       sql.NullString `db:"org_name"`
	POCName       sql.NullString `db:"poc_name"`
	POCEmail      sql.NullString `db:"poc_email"`
	POCPhone      sql.NullString `db:"poc_phone"`
}

func (r caseRow) model() models.Case {
	c := models.Case{
		ID:            r.ID,
		UUID:          r.UUID,
		DisplayName:   r.DisplayName,
		CaseNumber:    r.CaseNumber,
		ExaminerName:  r.ExaminerName,
		ExaminerEmail: r.ExaminerEmail,
		ExaminerPhone: r.ExaminerPhone,
		Notes:         r.Notes,
	}
	if t, err := time.Parse(time.RFC3339Nano, r.CreationDate); err == nil {
		c.CreationDate = t
	}
	if r.OrgID.Valid {
		c.Org = &models.Organization{
			ID:       r.OrgID.Int64,
			Name:     r.OrgName.String,
			POCName:  r.POCName.String,
			POCEmail: r.POCEmail.String,
			POCPhone: r.POCPhone.String,
		}
	}
	return c
}

type dataSourceRow struct {
	ID       int64  `db:"id"`
	DeviceID string `db:"device_id"`
	CaseUUID string `db:"case_uid"`
	Name     string `db:"name"`
}

func (r dataSourceRow) model() models.DataSource {
	return models.DataSource{ID: r.ID, DeviceID: r.DeviceID, CaseUUID: r.CaseUUID, Name: r.Name}
}

type typeRow struct {
	ID        int    `db:"id"`
	Name      string `db:"display_name"`
	Supported int    `db:"supported"`
	Enabled   int    `db:"enabled"`
}

func (r typeRow) model() models.CorrelationType {
	return models.CorrelationType{ID: r.ID, Name: r.Name, Supported: r.Supported != 0, Enabled: r.Enabled != 0}
}

type instanceRow struct {
	CaseUUID       string `db:"case_uid"`
	CaseName       string `db:"case_name"`
	DeviceID       string `db:"device_id"`
	DataSourceName string `db:"data_source_name"`
	FilePath       string `db:"file_path"`
	Known          string `db:"known_status"`
	Global         string `db:"global_status"`
	Comment        string `db:"comment"`
}

func (r instanceRow) model() models.Instance {
	known, _ := models.ParseKnownStatus(r.Known)
	global, _ := models.ParseGlobalStatus(r.Global)
	return models.Instance{
		Case:       &models.Case{UUID: r.CaseUUID, DisplayName: r.CaseName},
		DataSource: &models.DataSource{DeviceID: r.DeviceID, CaseUUID: r.CaseUUID, Name: r.DataSourceName},
		FilePath:   r.FilePath,
		Comment:    r.Comment,
		Known:      known,
		Global:     global,
	}
}
