// Package errs holds the failure kinds raised while a testbed is built,
// harvested and torn down.
package errs

import "fmt"

// ProvisionError reports a failed instantiate, connect or configure step.
// The node it names may still be registered and must be torn down.
type ProvisionError struct {
	Node string
	Step string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s: %s: %v", e.Node, e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// ConfigPushError reports a file transfer into a node that failed.
type ConfigPushError struct {
	Node     string
	Artifact string
	Err      error
}

func (e *ConfigPushError) Error() string {
	return fmt.Sprintf("push %s to %s: %v", e.Artifact, e.Node, e.Err)
}

func (e *ConfigPushError) Unwrap() error { return e.Err }

// ConversionError reports a single capture file the converter could not
// turn into flow records. It never aborts the batch.
type ConversionError struct {
	File string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.File, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// TeardownError reports a node whose delete call failed.
type TeardownError struct {
	Node string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Node, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
