package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// handleNegotiation relays offers, answers, candidates and media state.
// The sender is always the socket's participant, whatever the payload says.
func (ctl *WSController) handleNegotiation(pid domain.ParticipantID, conn *wsConn, data []byte) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad negotiation payload")
		sendError(conn, Control{}, "bad_payload")
		return
	}
	req := Control{Type: string(msg.Type)}
	msg.UserID = pid

	var missing bool
	switch msg.Type {
	case core.MsgOffer:
		missing = msg.Offer == nil
	case core.MsgAnswer:
		missing = msg.Answer == nil
	case core.MsgIceCandidate:
		missing = msg.Candidate == nil
	case core.MsgMediaState:
		missing = msg.Media == nil
	}
	if missing {
		sendError(conn, req, "bad_payload")
		return
	}

	var err error
	if msg.Type == core.MsgMediaState {
		err = ctl.reg.UpdateMediaState(msg.RoomID, pid, *msg.Media)
	} else {
		err = ctl.reg.Publish(msg)
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("pid", string(pid)).Str("type", string(msg.Type)).Msg("relay")
		sendError(conn, req, errorCode(err))
	}
}
