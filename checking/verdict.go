package checking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"cobraverifier/cycle"

	"golang.org/x/exp/slices"
)

// The outcome of verifying a history
type Result int

const (
	NotSerializable Result = iota + 1
	// Serializable. Real-time order was either not checked or is violated.
	Serializable
	// Serializable and consistent with real-time order
	StrictlySerializable
)

var resultNames = map[Result]string{
	NotSerializable:      "NotSerializable",
	Serializable:         "Serializable",
	StrictlySerializable: "StrictlySerializable",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

var _ CheckerResponse = (*Verdict)(nil)

// The verdict of a verification run
type Verdict struct {
	Result Result
	// True if the graph contained RT edges
	RealTimeChecked bool
	// The reported violations. Conflict violations come before real-time only violations.
	Violations []cycle.Violation
	// The number of violations that were found but not reported
	Truncated int
}

// Aggregate the violations found in a history into a verdict.
//
// realTimeChecked is true if the violations were detected in a graph with RT edges.
// maxReported caps the number of reported violations. If it is not positive all violations are reported.
func Summarize(violations []cycle.Violation, realTimeChecked bool, maxReported int) *Verdict {
	distinct := []cycle.Violation{}
	for _, v := range violations {
		if slices.IndexFunc(distinct, func(o cycle.Violation) bool { return slices.Equal(o.Txns, v.Txns) }) < 0 {
			distinct = append(distinct, v)
		}
	}

	result := Serializable
	if len(distinct) == 0 && realTimeChecked {
		result = StrictlySerializable
	}
	for _, v := range distinct {
		if !v.RealTimeOnly {
			result = NotSerializable
			break
		}
	}

	verdict := &Verdict{
		Result:          result,
		RealTimeChecked: realTimeChecked,
		Violations:      distinct,
	}
	if maxReported > 0 && len(distinct) > maxReported {
		verdict.Violations = distinct[:maxReported]
		verdict.Truncated = len(distinct) - maxReported
	}
	return verdict
}

// Returns true if no violation was found
func (v *Verdict) Ok() bool {
	return len(v.Violations) == 0 && v.Truncated == 0
}

// Generate a response
// Returns two parameters, result, and description.
// Result is true if no violation was found, false otherwise.
// Description is a formatted string describing the verdict.
// If violations were found the description contains every reported cycle and the dependencies that justify it.
func (v *Verdict) Response() (bool, string) {
	if v.Ok() {
		if v.Result == StrictlySerializable {
			return true, "History is strictly serializable"
		}
		return true, "History is serializable"
	}

	var buffer bytes.Buffer
	wrt := tabwriter.NewWriter(&buffer, 4, 4, 1, ' ', 0)
	total := len(v.Violations) + v.Truncated
	if v.Result == NotSerializable {
		fmt.Fprintf(wrt, "History is not serializable. Violations: %v\n", total)
	} else {
		fmt.Fprintf(wrt, "History is serializable but not strictly serializable. Violations: %v\n", total)
	}
	for i, violation := range v.Violations {
		fmt.Fprintf(wrt, "Violation %v: %v. Cycle: %v\n", i+1, violation.Anomaly, violation.Txns)
		for _, step := range violation.Steps {
			for _, dep := range step.Deps {
				fmt.Fprintf(wrt, "-> %v\t%v\t%v\t\n", step, dep.Cause, dep.Effect)
			}
		}
	}
	if v.Truncated > 0 {
		fmt.Fprintf(wrt, "%v more violations not reported\n", v.Truncated)
	}
	wrt.Flush()
	return false, buffer.String()
}

type jsonDependency struct {
	Kind   string `json:"kind"`
	Key    string `json:"key,omitempty"`
	Cause  string `json:"cause"`
	Effect string `json:"effect"`
}

type jsonStep struct {
	From         uint64           `json:"from"`
	To           uint64           `json:"to"`
	Kind         string           `json:"kind"`
	Kinds        string           `json:"kinds"`
	Dependencies []jsonDependency `json:"dependencies"`
}

type jsonViolation struct {
	Anomaly      string     `json:"anomaly"`
	RealTimeOnly bool       `json:"realTimeOnly"`
	Txns         []uint64   `json:"txns"`
	Steps        []jsonStep `json:"steps"`
}

type jsonVerdict struct {
	Result          string          `json:"result"`
	RealTimeChecked bool            `json:"realTimeChecked"`
	Violations      []jsonViolation `json:"violations"`
	Truncated       int             `json:"truncated"`
}

// Export the verdict as JSON
func (v *Verdict) Export(w io.Writer) error {
	out := jsonVerdict{
		Result:          v.Result.String(),
		RealTimeChecked: v.RealTimeChecked,
		Violations:      make([]jsonViolation, 0, len(v.Violations)),
		Truncated:       v.Truncated,
	}
	for _, violation := range v.Violations {
		jv := jsonViolation{
			Anomaly:      violation.Anomaly.String(),
			RealTimeOnly: violation.RealTimeOnly,
			Txns:         make([]uint64, 0, len(violation.Txns)),
			Steps:        make([]jsonStep, 0, len(violation.Steps)),
		}
		for _, id := range violation.Txns {
			jv.Txns = append(jv.Txns, uint64(id))
		}
		for _, step := range violation.Steps {
			js := jsonStep{
				From:         uint64(step.From),
				To:           uint64(step.To),
				Kind:         step.Kind.String(),
				Kinds:        step.Kinds.String(),
				Dependencies: make([]jsonDependency, 0, len(step.Deps)),
			}
			for _, dep := range step.Deps {
				js.Dependencies = append(js.Dependencies, jsonDependency{
					Kind:   dep.Kind.String(),
					Key:    dep.Key,
					Cause:  dep.Cause.String(),
					Effect: dep.Effect.String(),
				})
			}
			jv.Steps = append(jv.Steps, js)
		}
		out.Violations = append(out.Violations, jv)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
