package signal

func (ctl *WSController) handlePing(conn *wsConn, req Control) {
	sendJSON(conn, Reply{Type: TypePong, Ref: req.Ref})
}
