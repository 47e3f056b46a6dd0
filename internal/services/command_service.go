package services

import (
	"context"
	"fmt"
	"math"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/observability"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/rs/zerolog"
)

// commandDelete labels program deletions, which have no command code.
const commandDelete = "delete"

// Confirmer answers yes/no for a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// StatusSource provides the most recently applied controller status.
type StatusSource interface {
	Status() (models.DeviceStatus, bool)
}

// ProgramRefresher reloads the program list after it changed on the controller.
type ProgramRefresher interface {
	RequestPrograms()
}

// CommandService issues operator commands to the controller. Commands are fire
// and forget: their effect is observed on a later status poll.
type CommandService struct {
	// Dependencies
	client   device.Client
	status   StatusSource
	programs ProgramRefresher
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewCommandService initializes a new CommandService. programs may be nil.
func NewCommandService(client device.Client, status StatusSource, programs ProgramRefresher, metrics *observability.Metrics, logger zerolog.Logger) *CommandService {
	return &CommandService{
		client:   client,
		status:   status,
		programs: programs,
		metrics:  metrics,
		logger:   logger,
	}
}

// Stop ends the active firing after confirmation. With no active program nothing
// is sent and no confirmation is asked for.
func (cs *CommandService) Stop(ctx context.Context, confirm Confirmer) constants.CommandOutcome {
	status, ok := cs.status.Status()
	if !ok || !status.HasActiveProgram() {
		return cs.record(constants.CommandStop.String(), constants.OutcomeSkipped, "No active program, stop ignored")
	}
	if !cs.confirm(ctx, confirm, "Stop the current firing?") {
		return cs.record(constants.CommandStop.String(), constants.OutcomeDeclined, "Stop declined")
	}
	return cs.send(ctx, models.Command{Code: constants.CommandStop})
}

// PauseOrResume toggles the pause state according to the last known segment type.
func (cs *CommandService) PauseOrResume(ctx context.Context) constants.CommandOutcome {
	status, ok := cs.status.Status()
	if !ok {
		return cs.record(constants.CommandPause.String(), constants.OutcomeSkipped, "No status yet, pause ignored")
	}

	code := constants.CommandPause
	if status.Paused() {
		code = constants.CommandResume
	}
	return cs.send(ctx, models.Command{Code: code})
}

// SetSetpoint sets the target temperature. The controller takes whole degrees.
func (cs *CommandService) SetSetpoint(ctx context.Context, value float64) constants.CommandOutcome {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return cs.record(constants.CommandSetpoint.String(), constants.OutcomeFailed, "Setpoint is not a finite number")
	}
	return cs.send(ctx, models.Command{Code: constants.CommandSetpoint, P1: int64(math.Floor(value + 0.5))})
}

// RunProgram starts program id. Replacing a different running program, or
// starting one while the controller state is unknown, needs confirmation.
func (cs *CommandService) RunProgram(ctx context.Context, id int64, confirm Confirmer) constants.CommandOutcome {
	status, ok := cs.status.Status()
	if !ok || (status.HasActiveProgram() && status.ActiveFiringID() != id) {
		prompt := fmt.Sprintf("Replace the running firing with program %d?", id)
		if !ok {
			prompt = fmt.Sprintf("Controller state unknown. Run program %d?", id)
		}
		if !cs.confirm(ctx, confirm, prompt) {
			return cs.record(constants.CommandRunProgram.String(), constants.OutcomeDeclined, "Run program declined")
		}
	}
	return cs.send(ctx, models.Command{Code: constants.CommandRunProgram, P1: id, P2: constants.RunProgramStartStep})
}

// DeleteProgram removes a stored program after confirmation and reloads the list.
func (cs *CommandService) DeleteProgram(ctx context.Context, id int64, confirm Confirmer) constants.CommandOutcome {
	if !cs.confirm(ctx, confirm, fmt.Sprintf("Delete program %d?", id)) {
		return cs.record(commandDelete, constants.OutcomeDeclined, "Delete program declined")
	}

	if err := cs.client.DeleteProgram(ctx, id); err != nil {
		cs.logger.Error().Err(err).Int64("program_id", id).Msg("Failed to delete program")
		cs.metrics.Commands.WithLabelValues(commandDelete, string(constants.OutcomeFailed)).Inc()
		return constants.OutcomeFailed
	}

	cs.logger.Info().Int64("program_id", id).Msg("Program deleted")
	cs.metrics.Commands.WithLabelValues(commandDelete, string(constants.OutcomeDispatched)).Inc()
	if cs.programs != nil {
		cs.programs.RequestPrograms()
	}
	return constants.OutcomeDispatched
}

// confirm asks the confirmer. A missing confirmer or a failed prompt counts as no.
func (cs *CommandService) confirm(ctx context.Context, confirm Confirmer, prompt string) bool {
	if confirm == nil {
		return false
	}
	yes, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		cs.logger.Warn().Err(err).Str("prompt", prompt).Msg("Confirmation failed, treating as declined")
		return false
	}
	return yes
}

func (cs *CommandService) send(ctx context.Context, cmd models.Command) constants.CommandOutcome {
	if err := cs.client.SendCommand(ctx, cmd); err != nil {
		cs.logger.Error().Err(err).
			Str("command", cmd.Code.String()).
			Int64("p1", cmd.P1).
			Int64("p2", cmd.P2).
			Msg("Command dispatch failed")
		cs.metrics.Commands.WithLabelValues(cmd.Code.String(), string(constants.OutcomeFailed)).Inc()
		return constants.OutcomeFailed
	}

	cs.logger.Info().
		Str("command", cmd.Code.String()).
		Int64("p1", cmd.P1).
		Int64("p2", cmd.P2).
		Msg("Command dispatched")
	cs.metrics.Commands.WithLabelValues(cmd.Code.String(), string(constants.OutcomeDispatched)).Inc()
	return constants.OutcomeDispatched
}

func (cs *CommandService) record(command string, outcome constants.CommandOutcome, msg string) constants.CommandOutcome {
	cs.logger.Info().Str("command", command).Str("outcome", string(outcome)).Msg(msg)
	cs.metrics.Commands.WithLabelValues(command, string(outcome)).Inc()
	return outcome
}
