// Package compare measures the validator against human review: it pairs
// automatically checked documents with their manually corrected versions
// and scores how well the validator's label suggestions predicted the
// relabels the reviewers made.
package compare

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"labelqc/internal/logger"
	"labelqc/internal/quality"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

const textPreview = 30

// LabelChange is one element whose label the reviewer changed.
type LabelChange struct {
	ElementID string           `json:"element_id"`
	Text      string           `json:"text"`
	From      visualinfo.Label `json:"from"`
	To        visualinfo.Label `json:"to"`
}

// FileResult is the comparison of one document pair.
type FileResult struct {
	Key        string `json:"key"`
	AutoFile   string `json:"auto_file"`
	ManualFile string `json:"manual_file"`

	AutoIssues   []quality.Issue `json:"auto_issues"`
	LabelChanges []LabelChange   `json:"label_changes"`
	Added        []string        `json:"added_elements"`
	Removed      []string        `json:"removed_elements"`

	// Predicted lists the elements the validator proposed a relabel for.
	Predicted []string `json:"predicted_relabels"`
	// MatchedLabels counts correctly predicted elements whose suggested
	// label is also the label the reviewer chose.
	MatchedLabels int `json:"matched_labels"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Accuracy  float64 `json:"accuracy_score"`

	Error string `json:"error,omitempty"`
}

// ManualChanges is the number of differences the reviewer introduced.
func (r FileResult) ManualChanges() int {
	return len(r.LabelChanges) + len(r.Added) + len(r.Removed)
}

// ManualFixed reports whether the reviewer changed the document at all.
func (r FileResult) ManualFixed() bool { return r.ManualChanges() > 0 }

// Differences renders the manual changes as readable lines.
func (r FileResult) Differences() []string {
	out := make([]string, 0, r.ManualChanges())
	for _, c := range r.LabelChanges {
		out = append(out, fmt.Sprintf("label changed: %s '%s' %s -> %s", c.ElementID, c.Text, c.From, c.To))
	}
	for _, id := range r.Added {
		out = append(out, "element added: "+id)
	}
	for _, id := range r.Removed {
		out = append(out, "element removed: "+id)
	}
	return out
}

// Directories compares every visual-info file under autoDir with the file of
// the same key under manualDir. Keys without a counterpart are returned as
// unmatched. Files are matched by visualinfo.Key.
func Directories(ctx context.Context, autoDir, manualDir string, v *rules.Validator) ([]FileResult, []string, error) {
	const op = "Directories"
	log := logger.WithComponent("compare")

	autoFiles, err := collect(autoDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to scan %s: %w", op, autoDir, err)
	}
	manualFiles, err := collect(manualDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to scan %s: %w", op, manualDir, err)
	}

	log.Info().
		Int("auto_files", len(autoFiles)).
		Int("manual_files", len(manualFiles)).
		Msg("Comparing review directories")

	keys := make([]string, 0, len(autoFiles))
	for key := range autoFiles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		results   []FileResult
		unmatched []string
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return results, unmatched, err
		}
		manual, ok := manualFiles[key]
		if !ok {
			log.Warn().Str("key", key).Msg("No reviewed counterpart")
			unmatched = append(unmatched, key)
			continue
		}
		result := Files(autoFiles[key], manual, v)
		result.Key = key
		results = append(results, result)
		log.Debug().
			Str("key", key).
			Float64("accuracy", result.Accuracy).
			Int("manual_changes", result.ManualChanges()).
			Msg("Compared document")
	}
	return results, unmatched, nil
}

// collect maps keys to the JSON files below dir. When two files share a key
// the lexically first path wins.
func collect(dir string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		key := visualinfo.Key(path)
		if prev, ok := files[key]; !ok || path < prev {
			files[key] = path
		}
		return nil
	})
	return files, err
}

// Files validates autoPath and compares it with its reviewed version.
func Files(autoPath, manualPath string, v *rules.Validator) FileResult {
	result := FileResult{
		Key:        visualinfo.Key(autoPath),
		AutoFile:   autoPath,
		ManualFile: manualPath,
	}

	auto, err := visualinfo.Load(autoPath)
	if err != nil {
		result.AutoIssues = v.ValidateFile(autoPath)
		result.Error = err.Error()
		return result
	}
	result.AutoIssues = v.Validate(auto, autoPath)

	manual, err := visualinfo.Load(manualPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	diff(&result, auto, manual)
	score(&result, v.Suggestions(auto, v.RuleIDs()...))
	return result
}

func diff(result *FileResult, auto, manual *visualinfo.Document) {
	autoByID := indexByRef(auto)
	manualByID := indexByRef(manual)

	for _, e := range auto.Elements {
		ref := e.Ref()
		if autoByID[ref] != e {
			continue
		}
		m, ok := manualByID[ref]
		if !ok {
			result.Removed = append(result.Removed, ref)
			continue
		}
		if e.Label() != m.Label() {
			result.LabelChanges = append(result.LabelChanges, LabelChange{
				ElementID: ref,
				Text:      preview(e.RawText()),
				From:      e.Label(),
				To:        m.Label(),
			})
		}
	}
	for _, m := range manual.Elements {
		ref := m.Ref()
		if _, ok := autoByID[ref]; !ok && manualByID[ref] == m {
			result.Added = append(result.Added, ref)
		}
	}
}

// indexByRef maps element references to elements; the first element wins
// when a reference repeats.
func indexByRef(doc *visualinfo.Document) map[string]*visualinfo.Element {
	out := make(map[string]*visualinfo.Element, len(doc.Elements))
	for _, e := range doc.Elements {
		if _, ok := out[e.Ref()]; !ok {
			out[e.Ref()] = e
		}
	}
	return out
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= textPreview {
		return text
	}
	return string(r[:textPreview]) + "..."
}

// score computes precision and recall of the suggested relabels against the
// reviewer's relabels, by element. Accuracy is the F1 score in percent; a
// document where neither side relabels anything scores 100.
func score(result *FileResult, suggestions []rules.Suggestion) {
	suggested := make(map[string]visualinfo.Label)
	for _, s := range suggestions {
		if _, ok := suggested[s.ElementID]; ok {
			continue
		}
		suggested[s.ElementID] = s.NewLabel
		result.Predicted = append(result.Predicted, s.ElementID)
	}

	hits := 0
	for _, c := range result.LabelChanges {
		label, ok := suggested[c.ElementID]
		if !ok {
			continue
		}
		hits++
		if label == c.To {
			result.MatchedLabels++
		}
	}

	predicted, actual := len(result.Predicted), len(result.LabelChanges)
	switch {
	case predicted == 0 && actual == 0:
		result.Precision, result.Recall, result.Accuracy = 1, 1, 100
		return
	case predicted == 0:
		result.Precision, result.Recall = 1, 0
	case actual == 0:
		result.Precision, result.Recall = 0, 1
	default:
		result.Precision = float64(hits) / float64(predicted)
		result.Recall = float64(hits) / float64(actual)
	}
	if sum := result.Precision + result.Recall; sum > 0 {
		result.Accuracy = 2 * result.Precision * result.Recall / sum * 100
	}
}
