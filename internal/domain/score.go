package domain

// ScoreRow is one line of an aggregated output table.
type ScoreRow struct {
	Item  string  `json:"item"`
	Worth float64 `json:"worth"`

	// Interval and StdErr are set only when bootstrapping was requested.
	Interval *ConfidenceInterval `json:"interval,omitempty"`
	StdErr   float64             `json:"std_err,omitempty"`

	// ApproxCI is the fixed-width placeholder reported without a bootstrap.
	ApproxCI float64 `json:"approx_ci_95,omitempty"`

	// NLists is the number of lists in the group the row was fitted on.
	NLists int `json:"n_lists"`
}

// ScoreTable is the aggregated result for one group.
type ScoreTable struct {
	Group      string     `json:"group"`
	Method     string     `json:"method"`
	Rows       []ScoreRow `json:"rows"`
	NLists     int        `json:"n_lists"`
	Iterations int        `json:"iterations"`
	Converged  bool       `json:"converged"`

	// Agreement is the Spearman correlation between the fitted worths and
	// the top-k frequency baseline.
	Agreement float64 `json:"agreement"`

	// Diagnostics collects non-fatal notes raised while building the table.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Bootstrapped reports whether the rows carry percentile intervals.
func (t ScoreTable) Bootstrapped() bool {
	return len(t.Rows) > 0 && t.Rows[0].Interval != nil
}
