package connection

import "fmt"

// UnsupportedFormatError is returned when an edge file is in a binary format
// this implementation does not decode (HDF5-based nrn/sonata containers).
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("connection: unsupported edge file format: %s", e.Path)
}

// UnknownSynapseModeError reports an unrecognised Run SynapseMode value.
type UnknownSynapseModeError struct {
	Mode string
}

func (e *UnknownSynapseModeError) Error() string {
	return fmt.Sprintf("connection: unknown synapse mode %q", e.Mode)
}

// ConfigurationError reports inconsistent connectivity configuration, e.g. a
// projection targeting a different node population than the base circuit.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "connection: " + e.Msg
}
