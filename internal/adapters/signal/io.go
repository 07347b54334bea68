package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const writeWait = 5 * time.Second

func writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, pid domain.ParticipantID, c *wsConn, done func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump closing")
		c.Close()
		done()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, pid, c, data)
		}
	}
}

// forward writes bus events to the socket, applying the policy when the
// socket falls behind.
func (ctl *WSController) forward(ctx context.Context, pid domain.ParticipantID, c core.SignalConnection, events <-chan core.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("forward marshal")
				continue
			}
			err = c.TrySend(data)
			switch {
			case err == nil:
			case errors.Is(err, core.ErrBackpressure):
				if ctl.policy.OnBackpressure(pid, msg) == KickMember {
					log.Warn().Str("module", "signal").Str("pid", string(pid)).Str("type", string(msg.Type)).Msg("slow member kicked")
					c.Close()
					return
				}
				log.Debug().Str("module", "signal").Str("pid", string(pid)).Str("type", string(msg.Type)).Msg("frame dropped")
			default:
				return
			}
		}
	}
}

func (ctl *WSController) handleSignal(ctx context.Context, pid domain.ParticipantID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		sendError(c, Control{}, "bad_json")
		return
	}

	if isNegotiation(env.Type) {
		ctl.handleNegotiation(pid, c, data)
		return
	}

	var ctrl Control
	if err := json.Unmarshal(data, &ctrl); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad control payload")
		sendError(c, Control{Type: env.Type}, "bad_payload")
		return
	}

	switch ctrl.Type {
	case TypeJoin:
		ctl.handleJoin(pid, c, ctrl)
	case TypeLeave:
		ctl.handleLeave(pid, c, ctrl)
	case TypeInvite:
		ctl.handleInvite(ctx, pid, c, ctrl)
	case TypeAccept:
		ctl.handleAccept(ctx, pid, c, ctrl)
	case TypeDecline:
		ctl.handleDecline(ctx, pid, c, ctrl)
	case TypePending:
		ctl.handlePending(ctx, pid, c, ctrl)
	case TypePing:
		ctl.handlePing(c, ctrl)
	case TypeWhoAmI:
		ctl.handleWhoAmI(pid, c, ctrl)
	default:
		log.Warn().Str("module", "signal").Str("type", ctrl.Type).Msg("unknown signal")
		sendError(c, ctrl, "unknown_type")
	}
}

func sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func sendError(c core.SignalConnection, req Control, reason string) {
	sendJSON(c, Reply{Type: TypeError, Ref: req.Ref, Op: req.Type, Error: reason})
}

// errorCode maps domain errors onto stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotMember):
		return "not_member"
	case errors.Is(err, domain.ErrInvitationNotFound):
		return "invitation_not_found"
	case errors.Is(err, domain.ErrSelfInvitation):
		return "self_invitation"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return "invalid_name"
	case errors.Is(err, domain.ErrRoomIDEmpty), errors.Is(err, domain.ErrParticipantIDEmpty),
		errors.Is(err, domain.ErrParticipantIDTooLong):
		return "invalid_id"
	default:
		return "internal"
	}
}
