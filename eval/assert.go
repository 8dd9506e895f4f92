package eval

import "fmt"

// AssertionError reports a result that missed a threshold. Its message
// embeds the full summary table.
type AssertionError struct {
	Reason string
	Table  string
}

func (e *AssertionError) Error() string {
	return "evaluation failed: " + e.Reason + "\n" + e.Table
}

// AssertPassRate fails when the pass rate is below threshold.
func AssertPassRate(res *EvalResult, threshold float64) error {
	if res.Summary.PassRate < threshold {
		return &AssertionError{
			Reason: fmt.Sprintf("pass rate %.1f%% is below threshold %.1f%%", res.Summary.PassRate*100, threshold*100),
			Table:  res.SummaryTable(),
		}
	}
	return nil
}

// AssertAvgScore fails when the average score is below threshold.
func AssertAvgScore(res *EvalResult, threshold float64) error {
	if res.Summary.AvgScore < threshold {
		return &AssertionError{
			Reason: fmt.Sprintf("avg score %.3f is below threshold %.3f", res.Summary.AvgScore, threshold),
			Table:  res.SummaryTable(),
		}
	}
	return nil
}

func AssertAllPassed(res *EvalResult) error {
	if res.Summary.Passed != res.Summary.Total {
		return &AssertionError{
			Reason: fmt.Sprintf("%d/%d cases passed", res.Summary.Passed, res.Summary.Total),
			Table:  res.SummaryTable(),
		}
	}
	return nil
}
