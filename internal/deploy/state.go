package deploy

import "fmt"

// State is the lifecycle position of a deployment run.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Progress is a snapshot of a run. Step is the index of the step being
// executed (Running) or the one that failed (Failed), and -1 otherwise.
type Progress struct {
	App    string
	State  State
	Step   int
	Detail string
}

// StepError reports the step that stopped a deployment.
type StepError struct {
	App   string
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func startingMessage(app string) string {
	return fmt.Sprintf("🚀 Starting deployment of *%s*", app)
}

func executingMessage(step string) string {
	return fmt.Sprintf("⚙️ Executing: %s", step)
}

func successMessage(app string) string {
	return fmt.Sprintf("✅ Successfully deployed *%s*", app)
}

func failureMessage(app string, err error) string {
	return fmt.Sprintf("🚨 Deployment of *%s* failed: %v", app, err)
}
