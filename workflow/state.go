package workflow

// DecryptState tracks the decrypt pipeline through its phases. The
// CredentialChallengeSent to CredentialSigned transition is the only one
// driven by an external actor (the wallet); every other transition is made
// by the orchestrator itself. Failed is reachable from every non-terminal
// state.
type DecryptState int

const (
	StateIdle DecryptState = iota
	StateAttestationPending
	StateAttestationReady
	StateCredentialChallengeSent
	StateCredentialSigned
	StateKeysFetching
	StateDecrypted
	StateFailed
)

// String returns the state name.
func (s DecryptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttestationPending:
		return "attestation_pending"
	case StateAttestationReady:
		return "attestation_ready"
	case StateCredentialChallengeSent:
		return "credential_challenge_sent"
	case StateCredentialSigned:
		return "credential_signed"
	case StateKeysFetching:
		return "keys_fetching"
	case StateDecrypted:
		return "decrypted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the pipeline has finished in this state.
func (s DecryptState) Terminal() bool {
	return s == StateDecrypted || s == StateFailed
}
