package credssp

import "fmt"

// FailureKind classifies why a Sequence moved to Errored.
type FailureKind int

const (
	FailureTransport FailureKind = iota
	FailureAuthRejected
	FailureMitmSuspected
	FailureNetworkClientMissing
	FailureVersionTooLow
)

var failureKindNames = map[FailureKind]string{
	FailureTransport:            "credssp_transport_failure",
	FailureAuthRejected:         "credssp_auth_rejected",
	FailureMitmSuspected:        "mitm_suspected",
	FailureNetworkClientMissing: "network_client_missing",
	FailureVersionTooLow:        "version_too_low",
}

func (k FailureKind) String() string {
	if s, ok := failureKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Failure is the error carried by an Errored state.
type Failure struct {
	Kind FailureKind
	Code uint32
}

func (f *Failure) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s: server error code 0x%08X", f.Kind, f.Code)
	}
	return f.Kind.String()
}
