package compare

import "sort"

// Accuracy bands of the distribution.
const (
	HighAccuracy   = 80.0
	MediumAccuracy = 60.0
	topFiles       = 5
)

// Report aggregates a comparison run.
type Report struct {
	Summary       Summary      `json:"summary"`
	Distribution  Distribution `json:"accuracy_distribution"`
	TopIssueFiles []TopFile    `json:"top_issue_files"`
	Results       []FileResult `json:"detailed_results"`
	Unmatched     []string     `json:"unmatched,omitempty"`
}

// Summary holds the run totals. Averages cover the pairs that could be
// compared; pairs with an error only count towards FailedFiles.
type Summary struct {
	TotalFiles           int     `json:"total_files"`
	FailedFiles          int     `json:"failed_files"`
	FilesWithManualFixes int     `json:"files_with_manual_fixes"`
	ManualFixRate        float64 `json:"manual_fix_rate"`
	AverageAccuracy      float64 `json:"average_accuracy"`
	AveragePrecision     float64 `json:"average_precision"`
	AverageRecall        float64 `json:"average_recall"`
	TotalAutoIssues      int     `json:"total_auto_issues"`
	TotalManualChanges   int     `json:"total_manual_changes"`
}

// Distribution counts files per accuracy band.
type Distribution struct {
	High   int `json:"high_accuracy"`   // >= 80
	Medium int `json:"medium_accuracy"` // 60 to 80
	Low    int `json:"low_accuracy"`    // < 60
}

// TopFile is an entry of the most-flagged files list.
type TopFile struct {
	File          string  `json:"file"`
	AutoIssues    int     `json:"auto_issues_count"`
	ManualChanges int     `json:"manual_changes_count"`
	Accuracy      float64 `json:"accuracy"`
}

// BuildReport summarises results.
func BuildReport(results []FileResult, unmatched []string) Report {
	report := Report{
		Results:       results,
		Unmatched:     unmatched,
		TopIssueFiles: []TopFile{},
	}
	if report.Results == nil {
		report.Results = []FileResult{}
	}

	s := &report.Summary
	s.TotalFiles = len(results)
	compared := 0
	for _, r := range results {
		s.TotalAutoIssues += len(r.AutoIssues)
		if r.Error != "" {
			s.FailedFiles++
			continue
		}
		compared++
		s.TotalManualChanges += r.ManualChanges()
		if r.ManualFixed() {
			s.FilesWithManualFixes++
		}
		s.AverageAccuracy += r.Accuracy
		s.AveragePrecision += r.Precision
		s.AverageRecall += r.Recall

		switch {
		case r.Accuracy >= HighAccuracy:
			report.Distribution.High++
		case r.Accuracy >= MediumAccuracy:
			report.Distribution.Medium++
		default:
			report.Distribution.Low++
		}
	}
	if compared > 0 {
		n := float64(compared)
		s.ManualFixRate = float64(s.FilesWithManualFixes) / n * 100
		s.AverageAccuracy /= n
		s.AveragePrecision /= n
		s.AverageRecall /= n
	}

	ranked := append([]FileResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].AutoIssues) > len(ranked[j].AutoIssues)
	})
	for i := 0; i < len(ranked) && i < topFiles; i++ {
		r := ranked[i]
		report.TopIssueFiles = append(report.TopIssueFiles, TopFile{
			File:          r.AutoFile,
			AutoIssues:    len(r.AutoIssues),
			ManualChanges: r.ManualChanges(),
			Accuracy:      r.Accuracy,
		})
	}
	return report
}
