package signal

// handlePing answers a client ping and counts as a liveness acknowledgment.
func handlePing(ctl *SignalWSController, cl *client, _ []byte) error {
	ctl.Orch.Touch(cl.sid, true)
	return nil
}

// handlePong acknowledges a server probe.
func handlePong(ctl *SignalWSController, cl *client, _ []byte) error {
	ctl.Orch.Touch(cl.sid, false)
	return nil
}
