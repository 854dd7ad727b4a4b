package rules

import (
	"time"

	"qc/internal/dataset"
	"qc/internal/metrics"
)

// Spec selects one rule and its configuration inside a batch run.
type Spec struct {
	RuleID string `json:"rule_id"`
	Config Config `json:"config"`
}

// BatchResult aggregates the outcome of a multi-rule run.
type BatchResult struct {
	Results     []*Result `json:"results"`
	AllPassed   bool      `json:"all_passed"`
	TotalRules  int       `json:"total_rules"`
	PassedCount int       `json:"passed_count"`
	FailedCount int       `json:"failed_count"`
}

// Logger is the minimal logging interface used by the batch runner.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// RunBatch executes each spec against the dataset in order.
//
// Isolation: a rule failing with a ConfigError/ColumnError (or any other
// error) is captured as that rule's own failed result; the remaining rules
// still run.
func RunBatch(ds *dataset.Dataset, specs []Spec, logger Logger) *BatchResult {
	br := &BatchResult{AllPassed: true}

	for _, spec := range specs {
		br.TotalRules++

		if spec.RuleID == "" {
			br.Results = append(br.Results, &Result{
				RuleName: "unknown",
				Passed:   false,
				Message:  "rule_id is required for each rule",
			})
			br.AllPassed = false
			br.FailedCount++
			continue
		}

		rule, err := New(spec.RuleID)
		if err == nil {
			var res *Result
			start := time.Now()
			res, err = rule.Execute(ds, spec.Config)
			if err == nil {
				status := "fail"
				if res.Passed {
					status = "pass"
				}
				metrics.IncCounter("qc_checks_total", 1, metrics.Labels{"rule": spec.RuleID, "status": status})
				metrics.ObserveHistogram("qc_check_duration_seconds", time.Since(start).Seconds(), metrics.Labels{"rule": spec.RuleID, "status": status})

				br.Results = append(br.Results, res)
				if res.Passed {
					br.PassedCount++
				} else {
					br.AllPassed = false
					br.FailedCount++
				}
				continue
			}
		}

		metrics.IncCounter("qc_checks_total", 1, metrics.Labels{"rule": spec.RuleID, "status": "error"})
		if logger != nil {
			logger.Printf("stage=qc_rule rule=%s status=error err=%v", spec.RuleID, err)
		}
		br.Results = append(br.Results, &Result{
			RuleName: spec.RuleID,
			Passed:   false,
			Message:  err.Error(),
		})
		br.AllPassed = false
		br.FailedCount++
	}

	return br
}
