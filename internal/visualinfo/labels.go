package visualinfo

// Label is the fine-grained semantic tag of an element (category.label).
type Label string

const (
	LabelParaText    Label = "ParaText"
	LabelParaTitle   Label = "ParaTitle"
	LabelListText    Label = "ListText"
	LabelRegionTitle Label = "RegionTitle"
	LabelDocTitle    Label = "DocTitle"
	LabelDate        Label = "Date"
	LabelPageNumber  Label = "PageNumber"
	LabelTable       Label = "Table"
)

// Labels that exist in upstream data but must not be used.
const (
	LabelLink    Label = "연결"
	LabelCountry Label = "국가명"
	LabelPolicy  Label = "정책명"
	LabelLawName Label = "법률명"
	LabelSummary Label = "요약"
)

var allowedLabels = map[Label]struct{}{
	LabelParaText:    {},
	LabelParaTitle:   {},
	LabelListText:    {},
	LabelRegionTitle: {},
	LabelDocTitle:    {},
	LabelDate:        {},
	LabelPageNumber:  {},
	LabelTable:       {},
}

var disallowedLabels = map[Label]struct{}{
	LabelLink:    {},
	LabelCountry: {},
	LabelPolicy:  {},
	LabelLawName: {},
	LabelSummary: {},
}

// IsAllowed reports whether l may be written by the fixer.
func (l Label) IsAllowed() bool {
	_, ok := allowedLabels[l]
	return ok
}

// IsDisallowed reports whether l is a recognised but forbidden label.
func (l Label) IsDisallowed() bool {
	_, ok := disallowedLabels[l]
	return ok
}

// IsKnown reports whether l belongs to the vocabulary at all.
func (l Label) IsKnown() bool {
	return l.IsAllowed() || l.IsDisallowed()
}

// AllowedLabels returns the allowed vocabulary in a fixed order.
func AllowedLabels() []Label {
	return []Label{
		LabelParaText, LabelParaTitle, LabelListText, LabelRegionTitle,
		LabelDocTitle, LabelDate, LabelPageNumber, LabelTable,
	}
}

// ElementType is the coarse structural tag of an element (category.type).
type ElementType string

const (
	TypeParagraph ElementType = "PARAGRAPH"
	TypeHeading   ElementType = "HEADING"
	TypeList      ElementType = "LIST"
	TypeTable     ElementType = "TABLE"
)

// labelTypes is the label/type synchronisation table the fixer must honour.
var labelTypes = map[Label]ElementType{
	LabelParaText:  TypeParagraph,
	LabelParaTitle: TypeHeading,
	LabelListText:  TypeList,
}

// TypeFor returns the type that must accompany label after a relabel.
func TypeFor(label Label) (ElementType, bool) {
	t, ok := labelTypes[label]
	return t, ok
}

// IsTextual reports whether elements of this type are expected to carry text.
func (t ElementType) IsTextual() bool {
	switch t {
	case TypeParagraph, TypeHeading, TypeList:
		return true
	}
	return false
}
