// Package batch runs validation or fixing over many documents with a fixed
// pool of workers. Each job owns its document from load to save.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"labelqc/internal/archive"
	"labelqc/internal/fixer"
	"labelqc/internal/logger"
	"labelqc/internal/report"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

// Mode selects what a job does with its document.
type Mode string

const (
	ModeValidate Mode = "validate"
	ModeFix      Mode = "fix"
)

// Status classifies a job result.
type Status string

const (
	StatusSuccess Status = "success" // no issues left
	StatusWarning Status = "warning" // processed, issues remain
	StatusError   Status = "error"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// Options configures a Processor.
type Options struct {
	Mode    Mode
	Workers int
	RuleSet rules.RuleSet

	// FixOptions are applied after the rule set in fix mode.
	FixOptions []fixer.Option
	// ExtractDir receives unpacked archives.
	ExtractDir string
	// OutputDir receives recompressed archives after fixing. Empty disables
	// recompression.
	OutputDir string
	// DryRun fixes in memory without writing anything back.
	DryRun bool

	// Progress, if set, is called after each job. Calls are serialized.
	Progress func(done, total int, r Result)
}

// Result is the outcome of one input.
type Result struct {
	Index   int
	Input   string
	Status  Status
	Summary report.FileSummary
	Err     error
}

// Processor runs jobs.
type Processor struct {
	opts      Options
	validator *rules.Validator
	log       zerolog.Logger
}

// New builds a Processor. The validator is shared by all workers in
// validate mode; it is not mutated after construction.
func New(opts Options) (*Processor, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Mode == "" {
		opts.Mode = ModeValidate
	}
	if opts.Mode != ModeValidate && opts.Mode != ModeFix {
		return nil, fmt.Errorf("unknown batch mode %q", opts.Mode)
	}
	if opts.ExtractDir == "" {
		opts.ExtractDir = filepath.Join(os.TempDir(), "labelqc")
	}
	validator, err := rules.NewValidator(opts.RuleSet)
	if err != nil {
		return nil, err
	}
	return &Processor{
		opts:      opts,
		validator: validator,
		log:       logger.WithComponent("batch"),
	}, nil
}

// ErrDuplicateInput is reported for an archive listed more than once in a
// run; only its first occurrence is processed.
var ErrDuplicateInput = errors.New("archive listed more than once")

type job struct {
	input string
	name  string // extraction directory name for archives
	index int
}

// Run processes inputs with the worker pool and returns one result per
// input, in input order. Once ctx is done no new jobs start; inputs that were
// never started carry ctx's error. Archives sharing a file name are
// extracted and recompressed under distinct names.
func (p *Processor) Run(ctx context.Context, inputs []string) []Result {
	jobs := make(chan job)
	results := make([]Result, len(inputs))
	started := make([]bool, len(inputs))

	var archives []string
	for _, input := range inputs {
		if archive.IsArchive(input) {
			archives = append(archives, input)
		}
	}
	names := archive.Names(archives)
	claimed := make(map[string]bool, len(archives))

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				p.log.Debug().
					Int("worker", workerID).
					Str("input", j.input).
					Int("index", j.index+1).
					Msg("Worker processing document")

				result := p.process(j.input, j.name)
				result.Index = j.index
				results[j.index] = result

				mu.Lock()
				done++
				if p.opts.Progress != nil {
					p.opts.Progress(done, len(inputs), result)
				}
				mu.Unlock()
			}
		}(w)
	}

dispatch:
	for i, input := range inputs {
		if ctx.Err() != nil {
			break
		}
		name, isArchive := names[input]
		if isArchive && claimed[name] {
			err := fmt.Errorf("%s: %w", input, ErrDuplicateInput)
			results[i] = Result{Index: i, Input: input, Status: StatusError, Err: err,
				Summary: report.FileSummary{Path: input, Error: err.Error()}}
			started[i] = true
			continue
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- job{input: input, name: name, index: i}:
			started[i] = true
			if isArchive {
				claimed[name] = true
			}
		}
	}
	close(jobs)
	wg.Wait()

	for i, ok := range started {
		if !ok {
			results[i] = Result{Index: i, Input: inputs[i], Status: StatusError, Err: ctx.Err()}
			results[i].Summary = report.FileSummary{Path: inputs[i], Error: ctx.Err().Error()}
		}
	}
	return results
}

// process handles one input: an archive, an extracted document directory or
// a visual-info file.
func (p *Processor) process(input, name string) Result {
	result := Result{Input: input, Status: StatusError}
	fail := func(err error) Result {
		result.Err = err
		result.Summary.Error = err.Error()
		if result.Summary.Path == "" {
			result.Summary.Path = input
		}
		return result
	}

	dir := input
	if archive.IsArchive(input) {
		extracted, err := archive.ExtractAs(input, p.opts.ExtractDir, name)
		if err != nil {
			return fail(err)
		}
		dir = extracted
		result.Summary.Source = input
	}

	switch p.opts.Mode {
	case ModeFix:
		if err := p.fix(dir, &result.Summary); err != nil {
			return fail(err)
		}
	default:
		if err := p.validate(dir, &result.Summary); err != nil {
			return fail(err)
		}
	}

	result.Status = StatusSuccess
	if len(result.Summary.Remaining()) > 0 {
		result.Status = StatusWarning
	}
	return result
}

func (p *Processor) validate(dir string, summary *report.FileSummary) error {
	path, err := locate(dir)
	if err != nil {
		return err
	}
	summary.Path = path
	summary.Issues = p.validator.ValidateFile(path)
	return nil
}

func (p *Processor) fix(dir string, summary *report.FileSummary) error {
	opts := append([]fixer.Option{fixer.WithRuleSet(p.opts.RuleSet)}, p.opts.FixOptions...)

	var (
		f   *fixer.Fixer
		err error
	)
	if isFile(dir) {
		var doc *visualinfo.Document
		doc, err = visualinfo.Load(dir)
		if err != nil {
			return fixer.NewFixError("Open", dir, fixer.ErrLoadFailed, err)
		}
		f, err = fixer.New(doc, dir, opts...)
	} else {
		f, err = fixer.Open(dir, opts...)
	}
	if err != nil {
		return err
	}

	summary.Path = f.Path()
	summary.Issues = f.Validator().Validate(f.Document(), f.Path())
	summary.Fixes = f.RunAll()
	summary.IssuesAfter = f.Validator().Validate(f.Document(), f.Path())

	if p.opts.DryRun {
		return nil
	}
	if err := f.Save(); err != nil {
		return err
	}
	if p.opts.OutputDir != "" && summary.Source != "" {
		out, err := archive.Recompress(dir, p.opts.OutputDir)
		if err != nil {
			return err
		}
		summary.Output = out
	}
	return nil
}

// locate resolves an input to its visual-info file.
func locate(input string) (string, error) {
	if isFile(input) {
		return input, nil
	}
	path, err := visualinfo.Find(input)
	if err != nil {
		return "", err
	}
	return path, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Discover expands root into batch inputs: the archives below it if there
// are any, otherwise root itself when it is a document directory or a file,
// otherwise its document subdirectories.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	archives, err := archive.FindArchives(root)
	if err != nil {
		return nil, err
	}
	if len(archives) > 0 {
		return archives, nil
	}

	_, err = visualinfo.Find(root)
	if err == nil {
		return []string{root}, nil
	}
	if !errors.Is(err, visualinfo.ErrNotFound) {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := visualinfo.Find(dir); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Count tallies results by status.
func Count(results []Result) map[Status]int {
	out := map[Status]int{StatusSuccess: 0, StatusWarning: 0, StatusError: 0}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
