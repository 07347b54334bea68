package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
)

func (ctl *WSController) handleInvite(ctx context.Context, pid domain.ParticipantID, conn *wsConn, req Control) {
	if err := ctl.validate.Struct(invitePayload{Room: string(req.Room), To: string(req.To)}); err != nil {
		sendError(conn, req, "bad_payload")
		return
	}
	inv, err := ctl.invites.Create(ctx, req.Room, pid, req.To)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("invite")
		sendError(conn, req, errorCode(err))
		return
	}
	sendJSON(conn, Reply{Type: TypeInvited, Ref: req.Ref, Room: inv.RoomID, Invitation: &inv})
}

func (ctl *WSController) handleAccept(ctx context.Context, pid domain.ParticipantID, conn *wsConn, req Control) {
	if !ctl.ownInvitation(ctx, pid, conn, req) {
		return
	}
	inv, err := ctl.invites.Accept(ctx, req.ID)
	if err != nil {
		sendError(conn, req, errorCode(err))
		return
	}
	if inv == nil {
		sendError(conn, req, "not_pending")
		return
	}
	sendJSON(conn, Reply{
		Type:       TypeAccepted,
		Ref:        req.Ref,
		Room:       inv.RoomID,
		Invitation: inv,
		Members:    ctl.reg.Members(inv.RoomID),
	})
}

func (ctl *WSController) handleDecline(ctx context.Context, pid domain.ParticipantID, conn *wsConn, req Control) {
	if !ctl.ownInvitation(ctx, pid, conn, req) {
		return
	}
	inv, err := ctl.invites.Decline(ctx, req.ID)
	if err != nil {
		sendError(conn, req, errorCode(err))
		return
	}
	if inv == nil {
		sendError(conn, req, "not_pending")
		return
	}
	sendJSON(conn, Reply{Type: TypeDeclined, Ref: req.Ref, Room: inv.RoomID, Invitation: inv})
}

func (ctl *WSController) handlePending(ctx context.Context, pid domain.ParticipantID, conn *wsConn, req Control) {
	list, err := ctl.invites.Pending(ctx, pid)
	if err != nil {
		sendError(conn, req, errorCode(err))
		return
	}
	sendJSON(conn, Reply{Type: TypePending, Ref: req.Ref, Invitations: list})
}

// ownInvitation rejects answers from anyone but the recipient.
func (ctl *WSController) ownInvitation(ctx context.Context, pid domain.ParticipantID, conn *wsConn, req Control) bool {
	if err := ctl.validate.Struct(answerPayload{ID: string(req.ID)}); err != nil {
		sendError(conn, req, "bad_payload")
		return false
	}
	inv, err := ctl.invites.Get(ctx, req.ID)
	if err != nil {
		sendError(conn, req, errorCode(err))
		return false
	}
	if inv.To != pid {
		sendError(conn, req, "not_recipient")
		return false
	}
	return true
}
