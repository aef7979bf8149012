package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionErrorKeepsCause(t *testing.T) {
	cause := errors.New("image not found")
	err := fmt.Errorf("build: %w", &ProvisionError{Node: "c1", Step: "instantiate", Err: cause})

	var pe *ProvisionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "c1", pe.Node)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "image not found")
}

func TestErrorMessagesNameTheSubject(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, "push printerIp to office1: boom", (&ConfigPushError{Node: "office1", Artifact: "printerIp", Err: cause}).Error())
	assert.Equal(t, "convert a.pcap: boom", (&ConversionError{File: "a.pcap", Err: cause}).Error())
	assert.Equal(t, "delete brint: boom", (&TeardownError{Node: "brint", Err: cause}).Error())
}
