package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/config"
)

// exitProcess is swapped in tests.
var exitProcess = os.Exit

// ExitWithCode logs msg with the foundry exit code metadata and exits.
// A nil logger writes the report to stderr instead.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		reportFatal(os.Stderr, msg, err)
		exitProcess(int(exitCode))
		return
	}

	if logger == nil {
		reportFatal(os.Stderr, msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		exitProcess(info.Code)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	envFields, cause := envelopeFields(err)
	fields = append(fields, envFields...)
	fields = append(fields, zap.Error(cause))
	logger.Error(msg, fields...)

	exitProcess(info.Code)
}

// ExitWithCodeStderr is ExitWithCode for failures before the logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

// envelopeFields extracts envelope metadata from err and returns the
// underlying cause to log in its place.
func envelopeFields(err error) ([]zap.Field, error) {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
		zap.String("trace_id", envelope.TraceID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		return fields, original
	}
	return fields, err
}

func reportFatal(w io.Writer, msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope):
		fmt.Fprintf(w, "FATAL: %s [%s]: %v (correlation: %s)\n", msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original, ok := envelope.Original.(error); ok && original != nil {
			fmt.Fprintf(w, "Underlying error: %v\n", original)
		}
	default:
		fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
}

// ExitCodeFor maps a non-nil command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var validation *config.ValidationError
	switch {
	case stderrors.Is(err, errAgentUnreachable):
		return foundry.ExitExternalServiceUnavailable
	case stderrors.As(err, &validation), stderrors.Is(err, config.ErrInvalid):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, os.ErrNotExist):
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitFailure
	}
}
