package models

import (
	"path"
	"strings"
)

// FileType classifies where a file came from in the image.
type FileType string

const (
	FileRegular     FileType = "REGULAR"
	FileDirectory   FileType = "DIRECTORY"
	FileUnallocated FileType = "UNALLOCATED"
	FileUnused      FileType = "UNUSED"
	FileSlack       FileType = "SLACK"
	FileCarved      FileType = "CARVED"
	FileVirtualDir  FileType = "VIRTUAL_DIR"
	FileLocalDir    FileType = "LOCAL_DIR"
)

// File is a file record as exposed by the host file model.
type File struct {
	ObjectID   int64       `json:"id"`
	FileName   string      `json:"name"`
	Parent     string      `json:"parent_path"`
	Hash       string      `json:"md5,omitempty"`
	ByteSize   int64       `json:"size"`
	MIME       string      `json:"mime_type,omitempty"`
	KnownState KnownStatus `json:"known"`
	Kind       FileType    `json:"type"`
}

// ID returns the object ID.
func (f *File) ID() int64 { return f.ObjectID }

// Name returns the file name.
func (f *File) Name() string { return f.FileName }

// ParentPath returns the parent path with a trailing slash.
func (f *File) ParentPath() string {
	p := f.Parent
	if p == "" {
		return "/"
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Path returns the full path of the file.
func (f *File) Path() string { return f.ParentPath() + f.FileName }

// MD5 returns the MD5 hash, empty when it was not computed.
func (f *File) MD5() string { return f.Hash }

// Size returns the size in bytes.
func (f *File) Size() int64 { return f.ByteSize }

// MIMEType returns the detected MIME type.
func (f *File) MIMEType() string { return f.MIME }

// Known returns the hash-lookup classification.
func (f *File) Known() KnownStatus { return f.KnownState }

// Type returns the file type.
func (f *File) Type() FileType {
	if f.Kind == "" {
		return FileRegular
	}
	return f.Kind
}

// Extension returns the lower-cased extension without the dot.
func (f *File) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(f.FileName)), ".")
}
