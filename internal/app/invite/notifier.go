package invite

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

var _ core.Notifier = (*LogNotifier)(nil)

// LogNotifier logs the join link an email would carry. Real delivery lives
// outside this service.
type LogNotifier struct {
	baseURL string
	log     zerolog.Logger
}

func NewLogNotifier(baseURL string) *LogNotifier {
	return &LogNotifier{
		baseURL: baseURL,
		log:     log.With().Str("module", "app.invite.notify").Logger(),
	}
}

func (n *LogNotifier) NotifyInvitation(_ context.Context, inv domain.Invitation) error {
	link, err := JoinLink(n.baseURL, inv)
	if err != nil {
		return err
	}
	n.log.Info().Str("to", string(inv.To)).Str("link", link).Msg("invitation link")
	return nil
}

// JoinLink builds the link that accepts inv, e.g. https://host/invite/<id>?room=<room>.
func JoinLink(baseURL string, inv domain.Invitation) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("invite", string(inv.ID))
	q := u.Query()
	q.Set("room", string(inv.RoomID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
