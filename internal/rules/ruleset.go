package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet is returned when a rule set cannot be read or compiled.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// RuleSet is the injectable configuration of the validator and the fixer:
// vocabularies, patterns and thresholds. A YAML file overrides the built-in
// defaults key by key.
type RuleSet struct {
	// ForbiddenLabels are labels that must not appear (R008) and tags the
	// fixer strips.
	ForbiddenLabels []string `yaml:"forbidden_labels"`

	// SpecificTexts must always be labeled ParaText (R009).
	SpecificTexts []string `yaml:"specific_texts"`

	// TitlePatterns detect numbered headings (R003); TitleLabels are the
	// labels already acceptable for them.
	TitlePatterns []string `yaml:"title_patterns"`
	TitleLabels   []string `yaml:"title_labels"`

	// DatePatterns detect date literals (R004).
	DatePatterns []string `yaml:"date_patterns"`

	// StatuteHeadingPatterns, ArticlePattern and SubItemPatterns drive the
	// statute structure rule (R010).
	StatuteHeadingPatterns []string `yaml:"statute_heading_patterns"`
	ArticlePattern         string   `yaml:"article_pattern"`
	SubItemPatterns        []string `yaml:"sub_item_patterns"`

	// ConsistencyMinLength is the shortest normalized text grouped by R002.
	ConsistencyMinLength int `yaml:"consistency_min_length"`

	// DuplicateMinLength is the shortest text checked by R007.
	DuplicateMinLength int `yaml:"duplicate_min_length"`

	// Stoplist holds case-insensitive patterns of boilerplate elements the
	// fixer removes.
	Stoplist []string `yaml:"stoplist"`

	// DisabledRules lists rule ids that are skipped.
	DisabledRules []string `yaml:"disabled_rules"`
}

// DefaultRuleSet returns the built-in rule configuration.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ForbiddenLabels: []string{"연결", "국가명", "정책명", "법률명", "요약"},
		SpecificTexts:   []string{"원문", "번역문", "본문"},
		TitlePatterns: []string{
			`^[IVX]+\.\s+`,
			`^\d+\.\s+[가-힣]+`,
			`^[가나다라마바사]\.\s+`,
			`^제\d+[장절조]\s+`,
		},
		TitleLabels: []string{"ParaTitle", "DocTitle"},
		DatePatterns: []string{
			`^\d{4}년\s*\d{1,2}월\s*\d{1,2}일`,
			`^\d{4}\.\s*\d{1,2}\.\s*\d{1,2}$`,
			`^\d{4}-\d{1,2}-\d{1,2}$`,
			`^\d{4}\.\s*\d{1,2}\.\s*\d{1,2}\s*작성`,
		},
		StatuteHeadingPatterns: []string{
			`[가-힣]+법$`,
			`^제\s*\d+\s*(편|장|절|조)`,
		},
		ArticlePattern: `^제\s*\d+\s*조`,
		SubItemPatterns: []string{
			`^\s*\(\d+\)`,
			`^\s*\d+\.`,
			`^\s*[가-힣]\.`,
		},
		ConsistencyMinLength: 3,
		DuplicateMinLength:   5,
		Stoplist: []string{
			`The\s*현안`,
			`첨부자료`,
			`참고자료`,
			`별첨`,
			`^로그`,
			`헤더.*정보`,
		},
	}
}

// LoadRuleSet reads a YAML rule file on top of the defaults. Keys absent
// from the file keep their default value.
func LoadRuleSet(path string) (RuleSet, error) {
	set := DefaultRuleSet()
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %s: %v", ErrInvalidRuleSet, path, err)
	}
	return set, nil
}

// Enabled reports whether the rule id is active in this set.
func (s RuleSet) Enabled(ruleID string) bool {
	for _, id := range s.DisabledRules {
		if id == ruleID {
			return false
		}
	}
	return true
}
