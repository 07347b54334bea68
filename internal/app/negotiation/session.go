package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const DefaultAnswerTimeout = 30 * time.Second

// Outbox carries a session's signaling to the remote participant.
type Outbox interface {
	SendOffer(webrtc.SessionDescription) error
	SendAnswer(webrtc.SessionDescription) error
	SendCandidate(webrtc.ICECandidateInit) error
}

type Config struct {
	// AnswerTimeout closes an offering session that got no answer. Zero disables it.
	AnswerTimeout time.Duration
}

// Session is the negotiation state of one peer pair.
//
// Steps (offer, answer, candidate) are serialized by a step lock. Remote
// candidates that arrive before the remote description are queued and applied
// in arrival order right after it. Local candidates gathered before our own
// description went out are held back so the remote side always sees the
// description first.
type Session struct {
	key    PairKey
	local  domain.ParticipantID
	remote domain.ParticipantID
	pc     core.PeerConnection
	out    Outbox
	cfg    Config
	log    zerolog.Logger

	step sync.Mutex

	mu         sync.Mutex
	state      State
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	pending    []webrtc.ICECandidateInit
	gathered   []webrtc.ICECandidateInit
	published  bool
	timer      *time.Timer
	onFailure  func(error)
	onState    func(State)
}

func NewSession(key PairKey, local domain.ParticipantID, pc core.PeerConnection, out Outbox, cfg Config) *Session {
	s := &Session{
		key:    key,
		local:  local,
		remote: key.Other(local),
		pc:     pc,
		out:    out,
		cfg:    cfg,
		state:  Idle,
		log: log.With().
			Str("module", "app.negotiation").
			Str("pair", key.String()).
			Str("local", string(local)).
			Logger(),
	}
	pc.OnICECandidate(s.onLocalCandidate)
	pc.OnConnectionStateChange(s.onConnectionState)
	return s
}

func (s *Session) Key() PairKey                 { return s.key }
func (s *Session) Remote() domain.ParticipantID { return s.remote }
func (s *Session) Conn() core.PeerConnection    { return s.pc }

// OnFailure registers the callback for ErrNegotiationFailure closes.
func (s *Session) OnFailure(fn func(error)) {
	s.mu.Lock()
	s.onFailure = fn
	s.mu.Unlock()
}

func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LocalDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localDesc
}

func (s *Session) RemoteDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDesc
}

// PendingCandidates is the number of remote candidates waiting for the remote description.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CreateOffer moves Idle -> Offering -> AwaitingAnswer and sends the offer.
func (s *Session) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	s.step.Lock()
	defer s.step.Unlock()

	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer in %s", domain.ErrInvalidTransition, st)
	}
	s.mu.Unlock()
	s.setState(Offering)

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, s.fail(fmt.Errorf("%w: create offer: %v", domain.ErrNegotiationFailure, err))
	}

	s.mu.Lock()
	s.localDesc = &offer
	if s.cfg.AnswerTimeout > 0 {
		s.timer = time.AfterFunc(s.cfg.AnswerTimeout, s.onAnswerTimeout)
	}
	s.mu.Unlock()
	s.setState(AwaitingAnswer)

	if err := s.out.SendOffer(offer); err != nil {
		return webrtc.SessionDescription{}, s.fail(fmt.Errorf("%w: send offer: %v", domain.ErrNegotiationFailure, err))
	}
	s.publishGathered()
	s.log.Debug().Msg("offer sent")
	return offer, nil
}

// HandleOffer answers a remote offer: Idle -> Answering -> Connected.
func (s *Session) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	s.step.Lock()
	defer s.step.Unlock()

	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	s.mu.Lock()
	switch st := s.state; st {
	case Idle:
	case Offering, AwaitingAnswer:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("%w: offer received in %s", domain.ErrInvalidTransition, st)
	default:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("%w: offer received in %s", domain.ErrStaleMessage, st)
	}
	s.mu.Unlock()
	s.setState(Answering)

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, s.fail(fmt.Errorf("%w: set remote offer: %v", domain.ErrNegotiationFailure, err))
	}
	s.applyQueued(&offer)

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, s.fail(fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailure, err))
	}
	s.mu.Lock()
	s.localDesc = &answer
	s.mu.Unlock()

	if err := s.out.SendAnswer(answer); err != nil {
		return webrtc.SessionDescription{}, s.fail(fmt.Errorf("%w: send answer: %v", domain.ErrNegotiationFailure, err))
	}
	s.setState(Connected)
	s.publishGathered()
	s.log.Debug().Msg("answer sent")
	return answer, nil
}

// HandleAnswer applies the answer to our offer: AwaitingAnswer -> Connected.
// An answer in any other state, or a second one, is stale.
func (s *Session) HandleAnswer(ctx context.Context, answer webrtc.SessionDescription) error {
	s.step.Lock()
	defer s.step.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != AwaitingAnswer || s.remoteDesc != nil {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: answer received in %s", domain.ErrStaleMessage, st)
	}
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return s.fail(fmt.Errorf("%w: set remote answer: %v", domain.ErrNegotiationFailure, err))
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.applyQueued(&answer)
	s.setState(Connected)
	s.log.Debug().Msg("answer applied")
	return nil
}

// AddICECandidate applies a remote candidate, or queues it until the remote
// description is known.
func (s *Session) AddICECandidate(c webrtc.ICECandidateInit) error {
	s.step.Lock()
	defer s.step.Unlock()

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: candidate for closed session", domain.ErrStaleMessage)
	}
	if s.remoteDesc == nil {
		s.pending = append(s.pending, c)
		n := len(s.pending)
		s.mu.Unlock()
		s.log.Debug().Int("queued", n).Msg("candidate queued")
		return nil
	}
	s.mu.Unlock()

	if err := s.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// applyQueued records the remote description and flushes queued candidates in
// arrival order. Runs under the step lock.
func (s *Session) applyQueued(remote *webrtc.SessionDescription) {
	s.mu.Lock()
	s.remoteDesc = remote
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range queued {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("queued candidate rejected")
		}
	}
	if len(queued) > 0 {
		s.log.Debug().Int("count", len(queued)).Msg("queued candidates applied")
	}
}

func (s *Session) onLocalCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	if !s.published {
		s.gathered = append(s.gathered, c)
		return
	}
	if err := s.out.SendCandidate(c); err != nil {
		s.log.Warn().Err(err).Msg("send candidate failed")
	}
}

// publishGathered marks our description as sent and flushes held local candidates.
func (s *Session) publishGathered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = true
	for _, c := range s.gathered {
		if err := s.out.SendCandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("send candidate failed")
		}
	}
	s.gathered = nil
}

func (s *Session) onConnectionState(st webrtc.PeerConnectionState) {
	s.log.Debug().Str("state", st.String()).Msg("connection state")
	switch st {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.fail(fmt.Errorf("%w: transport %s", domain.ErrNegotiationFailure, st))
	}
}

func (s *Session) onAnswerTimeout() {
	s.mu.Lock()
	waiting := s.state == AwaitingAnswer && s.remoteDesc == nil
	s.mu.Unlock()
	if waiting {
		s.fail(fmt.Errorf("%w: no answer within %s", domain.ErrNegotiationFailure, s.cfg.AnswerTimeout))
	}
}

// fail closes the session and reports err once through OnFailure.
func (s *Session) fail(err error) error {
	if !s.close() {
		return err
	}
	s.log.Warn().Err(err).Msg("negotiation failed")
	s.mu.Lock()
	fn := s.onFailure
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	return err
}

// Close ends the session without reporting a failure. Idempotent.
func (s *Session) Close() {
	if s.close() {
		s.log.Debug().Msg("session closed")
	}
}

func (s *Session) close() bool {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return false
	}
	s.state = Closed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gathered = nil
	fn := s.onState
	s.mu.Unlock()

	if fn != nil {
		fn(Closed)
	}
	if err := s.pc.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close peer connection")
	}
	return true
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == Closed || s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
