package constants

// CommandCode is the numeric command understood by the controller's command endpoint.
type CommandCode int

// Command codes accepted by the command endpoint (cmd=<code>&p1=<value>&p2=<value>).
const (
	// CommandStop cancels the current program, including temporary setpoint programs.
	CommandStop CommandCode = 2
	// CommandSetpoint runs a temporary program that goes to p1 as fast as possible.
	CommandSetpoint CommandCode = 3
	// CommandRunProgram starts the program given by p1 at the step given by p2.
	CommandRunProgram CommandCode = 4
	// CommandPause inserts a pause at the current point of the running program.
	CommandPause CommandCode = 5
	// CommandResume ends the current pause step.
	CommandResume CommandCode = 6
)

// RunProgramStartStep is the p2 value sent with CommandRunProgram.
const RunProgramStartStep = 1

// String returns the short command name used in logs and metric labels.
func (c CommandCode) String() string {
	switch c {
	case CommandStop:
		return "stop"
	case CommandSetpoint:
		return "setpoint"
	case CommandRunProgram:
		return "run"
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	default:
		return "unknown"
	}
}

// CommandOutcome describes what happened to an operator command.
type CommandOutcome string

// Command outcomes
const (
	// OutcomeDispatched indicates the command request was sent to the controller
	OutcomeDispatched CommandOutcome = "dispatched"
	// OutcomeDeclined indicates the operator declined the confirmation prompt
	OutcomeDeclined CommandOutcome = "declined"
	// OutcomeSkipped indicates there was nothing to do for the current device state
	OutcomeSkipped CommandOutcome = "skipped"
	// OutcomeFailed indicates the request could not be delivered
	OutcomeFailed CommandOutcome = "failed"
)
