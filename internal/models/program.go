package models

// Program is an entry of the programs endpoint.
type Program struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProgramList is the programs endpoint response.
type ProgramList struct {
	Programs []Program `json:"programs"`
}

// ProgramStep is one step of a stored firing program.
type ProgramStep struct {
	Instruction string `json:"instruction"` // AFAP, Hold, Pause or Ramp
	Temperature int    `json:"temperature"` // Target temperature
	Param       int    `json:"param"`       // Ramp or hold time in seconds
}

// ProgramDetail is the program endpoint response.
type ProgramDetail struct {
	Name  string        `json:"name"`
	Steps []ProgramStep `json:"steps"`
}

// DialogState is the visibility of a console dialog.
type DialogState string

const (
	DialogHidden  DialogState = "hidden"
	DialogVisible DialogState = "visible"
)

// Dialogs holds the visibility of each console dialog.
type Dialogs struct {
	Programs DialogState `json:"programs"`
	Setpoint DialogState `json:"setpoint"`
}
