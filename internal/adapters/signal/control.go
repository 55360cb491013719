package signal

func (ctl *Controller) handlePing(p *wsPeer) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(p, resp)
}
