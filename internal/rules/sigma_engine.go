package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"
)

// RuleSetStats summarizes a rule set load.
type RuleSetStats struct {
	Files        int
	Loaded       int
	NotFileRules int
	Unsupported  int
	Unparsable   int
}

type fileRule struct {
	eval  *sigmaevaluator.RuleEvaluator
	match Match
}

// SigmaEngine evaluates Sigma rules against file attributes.
type SigmaEngine struct {
	rules []fileRule
	ctx   context.Context
}

// LoadFileRules reads the Sigma rules at rulePath, a single .yml/.yaml file or
// a directory tree of them. Only single-event rules over file log sources are
// kept; the rest are counted in the returned stats.
func LoadFileRules(rulePath string) (*SigmaEngine, RuleSetStats, error) {
	var stats RuleSetStats
	paths, err := ruleFiles(rulePath)
	if err != nil {
		return nil, stats, err
	}
	stats.Files = len(paths)

	engine := &SigmaEngine{ctx: context.Background()}
	for _, p := range paths {
		rule, err := readRule(p)
		switch {
		case err != nil:
			stats.Unparsable++
		case !describesFiles(rule.Logsource):
			stats.NotFileRules++
		case !singleEvent(rule.Detection):
			stats.Unsupported++
		default:
			engine.rules = append(engine.rules, fileRule{eval: sigmaevaluator.ForRule(rule), match: matchFromRule(rule)})
			stats.Loaded++
		}
	}
	return engine, stats, nil
}

func ruleFiles(rulePath string) ([]string, error) {
	root, err := filepath.Abs(rulePath)
	if err != nil {
		return nil, fmt.Errorf("rules path %s: %w", rulePath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("rules path: %w", err)
	}
	if !info.IsDir() {
		if !isYAMLFile(root) {
			return nil, fmt.Errorf("rules path %s is not a .yml or .yaml file", root)
		}
		return []string{root}, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isYAMLFile(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rules directory %s: %w", root, err)
	}
	return out, nil
}

// Len returns the number of loaded rules.
func (e *SigmaEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Apply evaluates all loaded rules and returns the ones that matched.
func (e *SigmaEngine) Apply(file File) []Match {
	if e == nil || file == nil || len(e.rules) == 0 {
		return nil
	}

	event := fileFields(file)
	var out []Match
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, event)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, rule.match)
		}
	}
	return out
}

func readRule(p string) (sigma.Rule, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return sigma.Rule{}, err
	}
	return sigma.ParseRule(raw)
}

func isYAMLFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

// describesFiles accepts rules with no category or a file category.
func describesFiles(src sigma.Logsource) bool {
	switch strings.ToLower(strings.TrimSpace(src.Category)) {
	case "", "file", "file_event":
		return true
	}
	return false
}

// singleEvent reports whether d can be decided from one file's fields.
func singleEvent(d sigma.Detection) bool {
	if d.Timeframe > 0 {
		return false
	}
	for _, cond := range d.Conditions {
		if cond.Aggregation != nil || !plainExpr(cond.Search) {
			return false
		}
	}
	for _, search := range d.Searches {
		if len(search.Keywords) > 0 || len(search.EventMatchers) == 0 {
			return false
		}
	}
	return true
}

func plainExpr(expr sigma.SearchExpr) bool {
	var children []sigma.SearchExpr
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.Not:
		return plainExpr(e.Expr)
	case sigma.And:
		children = e
	case sigma.Or:
		children = e
	default:
		return false
	}
	for _, child := range children {
		if !plainExpr(child) {
			return false
		}
	}
	return true
}

// fileFields exposes file attributes under the field names rules use.
func fileFields(file File) map[string]interface{} {
	name := file.Name()
	parent := file.ParentPath()
	return map[string]interface{}{
		"FileName":       name,
		"ParentPath":     parent,
		"TargetFilename": parent + name,
		"Extension":      strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."),
		"MD5":            strings.ToLower(file.MD5()),
		"Size":           file.Size(),
		"MIMEType":       file.MIMEType(),
	}
}

func matchFromRule(rule sigma.Rule) Match {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}

	level := strings.ToLower(strings.TrimSpace(rule.Level))
	if level == "" {
		level = "medium"
	}

	return Match{
		ID:       id,
		Title:    strings.TrimSpace(rule.Title),
		Severity: level,
		Tags:     rule.Tags,
	}
}
