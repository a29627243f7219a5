package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeValue(FilesTypeID, "  ABC123 "))
	assert.Equal(t, "evil.example", NormalizeValue(DomainTypeID, "Evil.Example"))
	assert.Equal(t, "+1 555 0100", NormalizeValue(PhoneTypeID, " +1 555 0100 "))
}

func TestKnownStatusText(t *testing.T) {
	k, err := ParseKnownStatus("bad")
	require.NoError(t, err)
	assert.Equal(t, Bad, k)

	_, err = ParseKnownStatus("suspicious")
	assert.Error(t, err)

	var got KnownStatus
	require.NoError(t, got.UnmarshalText([]byte("KNOWN")))
	assert.Equal(t, Known, got)
	assert.Equal(t, "KnownStatus(9)", KnownStatus(9).String())
}

func TestGlobalStatusText(t *testing.T) {
	g, err := ParseGlobalStatus("")
	require.NoError(t, err)
	assert.Equal(t, Local, g)

	g, err = ParseGlobalStatus("global")
	require.NoError(t, err)
	assert.Equal(t, Global, g)

	_, err = ParseGlobalStatus("planetary")
	assert.Error(t, err)
}

func TestCaseUUIDFromNameIsStable(t *testing.T) {
	a := CaseUUIDFromName("CaseX")
	assert.Equal(t, a, CaseUUIDFromName(" CaseX "))
	assert.NotEqual(t, a, CaseUUIDFromName("CaseY"))
	assert.Len(t, a, 36)
}

func TestFileAccessors(t *testing.T) {
	f := &File{FileName: "Report.DOCX", Parent: "/users/alice"}
	assert.Equal(t, "/users/alice/", f.ParentPath())
	assert.Equal(t, "/users/alice/Report.DOCX", f.Path())
	assert.Equal(t, "docx", f.Extension())
	assert.Equal(t, FileRegular, f.Type())

	root := &File{FileName: "boot.ini"}
	assert.Equal(t, "/boot.ini", root.Path())
}

func TestArtifactValidate(t *testing.T) {
	c := NewCase(CaseUUIDFromName("CaseX"), "CaseX")
	ds := &DataSource{DeviceID: "dev-123", CaseUUID: c.UUID}
	files := DefaultCorrelationTypes()[0]

	assert.NoError(t, NewArtifact(files, "abc123", Instance{Case: c, DataSource: ds}).Validate())
	assert.Error(t, NewArtifact(files, " ", Instance{Case: c, DataSource: ds}).Validate())
	assert.Error(t, NewArtifact(files, "abc123").Validate())
	assert.Error(t, NewArtifact(files, "abc123", Instance{Case: c}).Validate())
}
