package sqlstore

import "strings"

// dialect captures the SQL differences between SQLite and PostgreSQL.
type dialect struct {
	name       string
	primaryKey string
}

var (
	sqliteDialect   = dialect{name: "sqlite", primaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: "postgres", primaryKey: "SERIAL PRIMARY KEY"}
)

func (d dialect) schema() []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
  id {{pk}},
  org_name TEXT NOT NULL UNIQUE,
  poc_name TEXT NOT NULL DEFAULT '',
  poc_email TEXT NOT NULL DEFAULT '',
  poc_phone TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS cases (
  id {{pk}},
  case_uid TEXT NOT NULL UNIQUE,
  org_id INTEGER REFERENCES organizations(id),
  case_name TEXT NOT NULL,
  creation_date TEXT NOT NULL,
  case_number TEXT NOT NULL DEFAULT '',
  examiner_name TEXT NOT NULL DEFAULT '',
  examiner_email TEXT NOT NULL DEFAULT '',
  examiner_phone TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS data_sources (
  id {{pk}},
  device_id TEXT NOT NULL UNIQUE,
  case_uid TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS correlation_types (
  id INTEGER PRIMARY KEY,
  display_name TEXT NOT NULL UNIQUE,
  supported INTEGER NOT NULL,
  enabled INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS instances (
  id {{pk}},
  type_id INTEGER NOT NULL REFERENCES correlation_types(id),
  case_id INTEGER NOT NULL REFERENCES cases(id),
  data_source_id INTEGER NOT NULL REFERENCES data_sources(id),
  value TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  known_status TEXT NOT NULL,
  global_status TEXT NOT NULL,
  comment TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_type_value ON instances(type_id, value)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_case_ds ON instances(case_id, data_source_id)`,
		`CREATE TABLE IF NOT EXISTS global_reference_sets (
  id {{pk}},
  org_id INTEGER NOT NULL REFERENCES organizations(id),
  set_name TEXT NOT NULL,
  version TEXT NOT NULL,
  import_date TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS global_files (
  id {{pk}},
  global_reference_set_id INTEGER NOT NULL REFERENCES global_reference_sets(id),
  value TEXT NOT NULL,
  known_status TEXT NOT NULL,
  comment TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_global_files_value ON global_files(value)`,
	}
	for i, s := range stmts {
		stmts[i] = strings.ReplaceAll(s, "{{pk}}", d.primaryKey)
	}
	return stmts
}

const (
	insertOrganizationSQL = `INSERT INTO organizations(org_name, poc_name, poc_email, poc_phone)
VALUES (?, ?, ?, ?) ON CONFLICT (org_name) DO NOTHING RETURNING id`

	insertCaseSQL = `INSERT INTO cases(case_uid, org_id, case_name, creation_date, case_number,
examiner_name, examiner_email, examiner_phone, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (case_uid) DO NOTHING RETURNING id`

	updateCaseSQL = `UPDATE cases SET org_id=?, case_name=?, case_number=?, examiner_name=?,
examiner_email=?, examiner_phone=?, notes=? WHERE case_uid=?`

	selectCaseSQL = `SELECT cases.id, case_uid, org_id, case_name, creation_date, case_number,
examiner_name, examiner_email, examiner_phone, notes,
organizations.org_name, organizations.poc_name, organizations.poc_email, organizations.poc_phone
FROM cases LEFT JOIN organizations ON cases.org_id = organizations.id`

	insertDataSourceSQL = `INSERT INTO data_sources(device_id, case_uid, name)
VALUES (?, ?, ?) ON CONFLICT (device_id) DO NOTHING RETURNING id`

	selectDataSourceSQL = `SELECT id, device_id, case_uid, name FROM data_sources`

	insertTypeSQL = `INSERT INTO correlation_types(id, display_name, supported, enabled)
VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`

	selectTypeSQL = `SELECT id, display_name, supported, enabled FROM correlation_types`

	insertInstanceSQL = `INSERT INTO instances(type_id, case_id, data_source_id, value, file_path,
known_status, global_status, comment) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectInstancesSQL = `SELECT cases.case_uid, cases.case_name, data_sources.device_id,
data_sources.name AS data_source_name, instances.file_path, instances.known_status,
instances.global_status, instances.comment
FROM instances
INNER JOIN cases ON instances.case_id = cases.id
INNER JOIN data_sources ON instances.data_source_id = data_sources.id
WHERE instances.type_id = ? AND instances.value = ?
ORDER BY instances.id`

	selectKnownBadCasesSQL = `SELECT DISTINCT cases.case_name FROM instances
INNER JOIN cases ON instances.case_id = cases.id
WHERE instances.type_id = ? AND instances.value = ? AND instances.known_status = ?
ORDER BY cases.case_name`

	countKnownBadSQL = `SELECT count(*) FROM instances WHERE type_id = ? AND value = ? AND known_status = ?`

	countGlobalInstancesSQL = `SELECT count(*) FROM instances WHERE type_id = ? AND value = ? AND global_status = ?`

	countGlobalFilesSQL = `SELECT count(*) FROM global_files WHERE value = ? AND known_status = ?`

	countByCaseDataSourceSQL = `SELECT count(*) FROM instances
WHERE case_id = (SELECT id FROM cases WHERE case_uid = ?)
AND data_source_id = (SELECT id FROM data_sources WHERE device_id = ?)`

	insertGlobalSetSQL = `INSERT INTO global_reference_sets(org_id, set_name, version, import_date)
VALUES (?, ?, ?, ?) RETURNING id`

	insertGlobalFileSQL = `INSERT INTO global_files(global_reference_set_id, value, known_status, comment)
VALUES (?, ?, ?, ?)`
)
