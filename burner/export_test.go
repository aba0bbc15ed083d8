package burner

// Hooks for the external test package.
var (
	Claim       = (*OperationState).begin
	WriteStage  = (*Burner).writeStage
	VerifyStage = (*Burner).verifyStage

	// ForceCancel sets the cancel flag directly, simulating a Cancel call
	// that lands right as a run starts.
	ForceCancel = func(s *OperationState) { s.cancel.Store(true) }
)
