package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
)

func (ctl *WSController) handleJoin(pid domain.ParticipantID, conn *wsConn, req Control) {
	if err := ctl.validate.Struct(joinPayload{Room: string(req.Room), Name: req.Name}); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad join payload")
		sendError(conn, req, "bad_payload")
		return
	}

	member := domain.Participant{ID: pid}
	if req.Name != "" {
		if err := member.SetName(req.Name); err != nil {
			sendError(conn, req, errorCode(err))
			return
		}
	}
	if err := ctl.reg.JoinRoomAs(req.Room, member); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(req.Room)).Msg("join")
		sendError(conn, req, errorCode(err))
		return
	}

	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("room", string(req.Room)).Msg("join")
	sendJSON(conn, Reply{
		Type:    TypeJoined,
		Ref:     req.Ref,
		Room:    req.Room,
		Members: ctl.reg.Members(req.Room),
	})
}

// handleLeave leaves one room; the socket stays open.
func (ctl *WSController) handleLeave(pid domain.ParticipantID, conn *wsConn, req Control) {
	if err := ctl.reg.LeaveRoom(req.Room, pid); err != nil {
		sendError(conn, req, errorCode(err))
		return
	}
	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("room", string(req.Room)).Msg("leave")
	sendJSON(conn, Reply{Type: TypeLeft, Ref: req.Ref, Room: req.Room})
}

func (ctl *WSController) handleWhoAmI(pid domain.ParticipantID, conn *wsConn, req Control) {
	sendJSON(conn, Reply{
		Type:  TypeWhoAmI,
		Ref:   req.Ref,
		ID:    pid,
		Rooms: ctl.reg.RoomsOf(pid),
	})
}
