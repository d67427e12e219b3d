// Package fixer applies rule-based corrections to one visual-info document.
//
// A Fixer loads the document once and runs five passes over it in a fixed
// order (unnecessary, labels, order, tables, tags). Every pass sees the
// changes of the passes before it. Relabeling replays the validator's own
// suggestions, so the fixer never disagrees with what validation reports.
package fixer

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"labelqc/internal/logger"
	"labelqc/internal/quality"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

// Pass names, in execution order.
const (
	PassUnnecessary = "unnecessary"
	PassLabels      = "labels"
	PassOrder       = "order"
	PassTables      = "tables"
	PassTags        = "tags"
)

// PassNames lists the passes in the order RunAll applies them.
var PassNames = []string{PassUnnecessary, PassLabels, PassOrder, PassTables, PassTags}

// Options controls which corrections a Fixer applies.
type Options struct {
	RuleSet         rules.RuleSet
	RelabelRules    []string // rules whose label suggestions are applied
	PruneEmptyText  bool     // drop textual elements without text
	ReorderElements bool     // sort elements by page and position
}

// DefaultOptions returns the default pipeline: R009 relabeling, empty text
// pruning on, reordering off.
func DefaultOptions() Options {
	return Options{
		RuleSet:        rules.DefaultRuleSet(),
		RelabelRules:   []string{"R009"},
		PruneEmptyText: true,
	}
}

// Option customizes Options.
type Option func(*Options)

// WithRuleSet replaces the rule set used for relabeling, the stoplist and
// the forbidden tags.
func WithRuleSet(set rules.RuleSet) Option {
	return func(o *Options) { o.RuleSet = set }
}

// WithRelabelRules sets the rules whose suggestions the labels pass applies.
func WithRelabelRules(ids ...string) Option {
	return func(o *Options) { o.RelabelRules = append([]string(nil), ids...) }
}

// WithPruneEmptyText toggles removal of empty textual elements.
func WithPruneEmptyText(enabled bool) Option {
	return func(o *Options) { o.PruneEmptyText = enabled }
}

// WithReorder toggles the order pass.
func WithReorder(enabled bool) Option {
	return func(o *Options) { o.ReorderElements = enabled }
}

// Fixer holds one document and applies the correction passes to it.
type Fixer struct {
	path string
	doc  *visualinfo.Document
	opts Options

	validator     *rules.Validator
	stoplist      []*regexp.Regexp
	forbiddenTags map[string]struct{}

	log zerolog.Logger
}

// Open locates and loads the visual-info file of an extracted document
// directory. Errors are *FixError matching ErrVisualInfoNotFound or
// ErrLoadFailed.
func Open(dir string, opts ...Option) (*Fixer, error) {
	path, err := visualinfo.Find(dir)
	if err != nil {
		if errors.Is(err, visualinfo.ErrNotFound) {
			return nil, NewFixError("Open", dir, ErrVisualInfoNotFound, nil)
		}
		return nil, NewFixError("Open", dir, ErrLoadFailed, err)
	}
	doc, err := visualinfo.Load(path)
	if err != nil {
		return nil, NewFixError("Open", path, ErrLoadFailed, err)
	}
	return New(doc, path, opts...)
}

// New wraps an already loaded document. path is where Save writes.
func New(doc *visualinfo.Document, path string, opts ...Option) (*Fixer, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	validator, err := rules.NewValidator(o.RuleSet)
	if err != nil {
		return nil, NewFixError("New", path, ErrLoadFailed, err)
	}
	f := &Fixer{
		path:          path,
		doc:           doc,
		opts:          o,
		validator:     validator,
		forbiddenTags: make(map[string]struct{}, len(o.RuleSet.ForbiddenLabels)),
		log:           logger.WithFile("fixer", path),
	}
	for _, p := range o.RuleSet.Stoplist {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, NewFixError("New", path, ErrLoadFailed, fmt.Errorf("%w: stoplist: %v", rules.ErrInvalidRuleSet, err))
		}
		f.stoplist = append(f.stoplist, re)
	}
	for _, tag := range o.RuleSet.ForbiddenLabels {
		f.forbiddenTags[tag] = struct{}{}
	}
	return f, nil
}

// Path returns the file Save writes to.
func (f *Fixer) Path() string { return f.path }

// Document returns the document being fixed.
func (f *Fixer) Document() *visualinfo.Document { return f.doc }

// Validator returns the validator the fixer replays suggestions from.
func (f *Fixer) Validator() *rules.Validator { return f.validator }

// RunAll applies every pass in PassNames order and returns the results of
// each pass. Every pass name is present in the map.
func (f *Fixer) RunAll() map[string][]quality.FixResult {
	passes := map[string]func() []quality.FixResult{
		PassUnnecessary: f.removeUnnecessary,
		PassLabels:      f.normalizeLabels,
		PassOrder:       f.reorder,
		PassTables:      f.normalizeTables,
		PassTags:        f.stripForbiddenTags,
	}

	results := make(map[string][]quality.FixResult, len(PassNames))
	for _, name := range PassNames {
		out := passes[name]()
		if out == nil {
			out = []quality.FixResult{}
		}
		results[name] = out
		f.log.Debug().
			Str("pass", name).
			Int("results", len(out)).
			Msg("Fix pass complete")
	}
	return results
}

// Save writes the document back to its source path atomically.
func (f *Fixer) Save() error {
	data, err := f.doc.Encode()
	if err != nil {
		return NewFixError("Save", f.path, ErrSaveFailed, err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return NewFixError("Save", f.path, ErrSaveFailed, err)
	}
	f.log.Debug().Int("bytes", len(data)).Msg("Saved document")
	return nil
}
