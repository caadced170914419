package executor

// StepStatus is the lifecycle state of one pipeline step.
type StepStatus string

const (
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
)

// Step IDs in pipeline order. A traced execution appends them in exactly
// this order and stops at the first failure.
const (
	StepKeyLoad        = "key-load"
	StepGatewayConnect = "gateway-connect"
	StepAccountLoad    = "account-load"
	StepBuild          = "build"
	StepSign           = "sign"
	StepSubmit         = "submit"
)

// Step is one observable phase of a traced execution.
type Step struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// trace collects steps during one execution. The zero value records
// nothing, which is what silent mode uses.
type trace struct {
	enabled bool
	steps   []Step
}

func (t *trace) begin(id, label, detail string) {
	if !t.enabled {
		return
	}
	t.steps = append(t.steps, Step{ID: id, Label: label, Status: StepRunning, Detail: detail})
}

func (t *trace) done(detail string) {
	if !t.enabled || len(t.steps) == 0 {
		return
	}
	last := &t.steps[len(t.steps)-1]
	last.Status = StepDone
	last.Detail = detail
}

func (t *trace) fail(detail string) {
	if !t.enabled || len(t.steps) == 0 {
		return
	}
	last := &t.steps[len(t.steps)-1]
	last.Status = StepError
	last.Detail = detail
}
