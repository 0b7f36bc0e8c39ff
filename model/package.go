package model

// DateLayout is the layout of Day.Date.
const DateLayout = "2006-01-02"

// Package is the computed data package for one entity.
type Package struct {
	// Contribs holds contribution statistics. A package without it is
	// incomplete.
	Contribs *Contribs `json:"contribs,omitempty"`
}

// Contribs contains the aggregate statistics and the per-day breakdown they
// were computed from.
type Contribs struct {
	TotalStats Stats `json:"total_stats"`
	Days       []Day `json:"days,omitempty"`
}

// Stats is a set of contribution counters.
type Stats struct {
	CommitsCount int `json:"commits_count"`
	IssuesCount  int `json:"issues_count"`
	PRsCount     int `json:"prs_count"`
	ReviewsCount int `json:"reviews_count"`
	// Languages is keyed by language name. The keys are the set of
	// languages contributed to.
	Languages map[string]Language `json:"languages,omitempty"`
}

// Language holds line counts for one language.
type Language struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Day holds the statistics for a single calendar day.
type Day struct {
	Date  string `json:"date"`
	Stats Stats  `json:"stats"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.CommitsCount += o.CommitsCount
	s.IssuesCount += o.IssuesCount
	s.PRsCount += o.PRsCount
	s.ReviewsCount += o.ReviewsCount
	if len(o.Languages) == 0 {
		return
	}
	if s.Languages == nil {
		s.Languages = make(map[string]Language, len(o.Languages))
	}
	for name, lang := range o.Languages {
		cur := s.Languages[name]
		cur.Additions += lang.Additions
		cur.Deletions += lang.Deletions
		s.Languages[name] = cur
	}
}
