package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/config"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"agent unreachable", fmt.Errorf("%w at http://127.0.0.1:8080: refused", errAgentUnreachable), foundry.ExitExternalServiceUnavailable},
		{"validation", &config.ValidationError{Problems: []string{"server.port out of range"}}, foundry.ExitConfigInvalid},
		{"wrapped validation", fmt.Errorf("load: %w", &config.ValidationError{Problems: []string{"x"}}), foundry.ExitConfigInvalid},
		{"missing file", fmt.Errorf("read payload: %w", os.ErrNotExist), foundry.ExitFileNotFound},
		{"other", errors.New("boom"), foundry.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestExitWithCodeUsesCatalogCode(t *testing.T) {
	var code int
	original := exitProcess
	exitProcess = func(c int) { code = c }
	t.Cleanup(func() { exitProcess = original })

	ExitWithCodeStderr(foundry.ExitConfigInvalid, "bad config", errors.New("port out of range"))

	info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid)
	require.True(t, ok)
	assert.Equal(t, info.Code, code)
}

func TestReportFatal(t *testing.T) {
	var plain bytes.Buffer
	reportFatal(&plain, "submit failed", errors.New("refused"))
	assert.Equal(t, "FATAL: submit failed: refused\n", plain.String())

	var bare bytes.Buffer
	reportFatal(&bare, "no identity", nil)
	assert.Equal(t, "FATAL: no identity\n", bare.String())

	envelope := gferrors.NewErrorEnvelope("CONFIG_INVALID", "network void is empty").WithCorrelationID("corr-1")
	var enveloped bytes.Buffer
	reportFatal(&enveloped, "load", fmt.Errorf("startup: %w", envelope))
	assert.Contains(t, enveloped.String(), "[CONFIG_INVALID]")
	assert.Contains(t, enveloped.String(), "corr-1")
}

func TestEnvelopeFields(t *testing.T) {
	plain := errors.New("boom")
	fields, cause := envelopeFields(plain)
	assert.Empty(t, fields)
	assert.Equal(t, plain, cause)

	envelope := gferrors.NewErrorEnvelope("INTERNAL", "boom")
	fields, _ = envelopeFields(envelope)
	assert.NotEmpty(t, fields)
}
