package rules

// File is the read-only view of a file that rules are evaluated against.
type File interface {
	Name() string
	ParentPath() string
	MD5() string
	Size() int64
	MIMEType() string
}

// Match describes one rule that fired for a file.
type Match struct {
	ID       string
	Title    string
	Severity string
	Tags     []string
}

// Engine flags interesting files.
type Engine interface {
	Apply(file File) []Match
}

// NoopEngine matches nothing.
type NoopEngine struct{}

// Apply returns no matches.
func (n *NoopEngine) Apply(file File) []Match {
	return nil
}
