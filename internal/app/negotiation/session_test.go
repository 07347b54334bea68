package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/core/coretest"
	"github.com/dkeye/callroom/internal/domain"
)

type recordingOutbox struct {
	mu         sync.Mutex
	events     []string
	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	err        error
}

func (o *recordingOutbox) SendOffer(d webrtc.SessionDescription) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "offer")
	o.offers = append(o.offers, d)
	return o.err
}

func (o *recordingOutbox) SendAnswer(d webrtc.SessionDescription) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "answer")
	o.answers = append(o.answers, d)
	return o.err
}

func (o *recordingOutbox) SendCandidate(c webrtc.ICECandidateInit) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "candidate")
	o.candidates = append(o.candidates, c)
	return o.err
}

func (o *recordingOutbox) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type pair struct {
	offerer, answerer *Session
	aConn, bConn      *coretest.Conn
	aOut, bOut        *recordingOutbox
}

func newPair(cfg Config) *pair {
	net := coretest.NewNetwork()
	key := NewPairKey("room", "a", "b")
	p := &pair{aConn: net.NewConn(), bConn: net.NewConn(), aOut: &recordingOutbox{}, bOut: &recordingOutbox{}}
	p.offerer = NewSession(key, "a", p.aConn, p.aOut, cfg)
	p.answerer = NewSession(key, "b", p.bConn, p.bOut, cfg)
	return p
}

func TestSession_Offer_Answer_Connects_Both_Sides(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	// When a offers
	offer, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)
	req.Equal(AwaitingAnswer, p.offerer.State())
	req.Equal(webrtc.SDPTypeOffer, offer.Type)

	// And b answers
	answer, err := p.answerer.HandleOffer(ctx, offer)
	req.NoError(err)
	req.Equal(Connected, p.answerer.State())

	// And a applies the answer
	req.NoError(p.offerer.HandleAnswer(ctx, answer))

	// Then both sides are connected
	req.Equal(Connected, p.offerer.State())
	req.Equal(webrtc.PeerConnectionStateConnected, p.aConn.ConnectionState())
	req.Equal(webrtc.PeerConnectionStateConnected, p.bConn.ConnectionState())
	req.Equal(offer, *p.answerer.RemoteDescription())
	req.Equal(answer, *p.offerer.RemoteDescription())

	// And each side sent its description before its candidates
	req.Equal([]string{"offer", "candidate"}, p.aOut.Events())
	req.Equal([]string{"answer", "candidate"}, p.bOut.Events())
}

func TestSession_Early_Candidates_Are_Queued_And_Flushed_In_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	offer, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)

	// Given candidates arrive at b before the offer
	early := []webrtc.ICECandidateInit{{Candidate: "c1"}, {Candidate: "c2"}, {Candidate: "c3"}}
	for _, c := range early {
		req.NoError(p.answerer.AddICECandidate(c))
	}
	req.Equal(3, p.answerer.PendingCandidates())
	req.Empty(p.bConn.Applied())

	// When the offer arrives
	_, err = p.answerer.HandleOffer(ctx, offer)
	req.NoError(err)

	// Then the queue is applied in arrival order
	req.Zero(p.answerer.PendingCandidates())
	req.Equal(early, p.bConn.Applied())

	// And later candidates go straight through
	req.NoError(p.answerer.AddICECandidate(webrtc.ICECandidateInit{Candidate: "c4"}))
	req.Len(p.bConn.Applied(), 4)
}

func TestSession_Offer_While_Offering_Is_Invalid_Transition(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	_, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)

	other := coretest.NewNetwork().NewConn()
	remoteOffer, err := other.CreateOffer()
	req.NoError(err)

	_, err = p.offerer.HandleOffer(ctx, remoteOffer)
	req.ErrorIs(err, domain.ErrInvalidTransition)
	req.Equal(AwaitingAnswer, p.offerer.State())

	_, err = p.offerer.CreateOffer(ctx)
	req.ErrorIs(err, domain.ErrInvalidTransition)
}

func TestSession_Redelivered_Offer_Is_Stale(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	offer, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)
	_, err = p.answerer.HandleOffer(ctx, offer)
	req.NoError(err)

	// When the same offer is delivered again
	_, err = p.answerer.HandleOffer(ctx, offer)

	// Then it is dropped as stale and the session is untouched
	req.ErrorIs(err, domain.ErrStaleMessage)
	req.True(domain.Silent(err))
	req.Equal(Connected, p.answerer.State())
	req.Equal([]string{"answer", "candidate"}, p.bOut.Events())
}

func TestSession_Second_Answer_Is_Stale(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	offer, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)
	answer, err := p.answerer.HandleOffer(ctx, offer)
	req.NoError(err)
	req.NoError(p.offerer.HandleAnswer(ctx, answer))

	req.ErrorIs(p.offerer.HandleAnswer(ctx, answer), domain.ErrStaleMessage)
	req.Equal(Connected, p.offerer.State())

	// An answer to a session that never offered is stale too
	req.ErrorIs(p.answerer.HandleAnswer(ctx, answer), domain.ErrStaleMessage)
}

func TestSession_Answer_Timeout_Closes_With_Negotiation_Failure(t *testing.T) {
	req := require.New(t)
	p := newPair(Config{AnswerTimeout: 20 * time.Millisecond})

	failed := make(chan error, 1)
	p.offerer.OnFailure(func(err error) { failed <- err })

	_, err := p.offerer.CreateOffer(context.Background())
	req.NoError(err)

	select {
	case err := <-failed:
		req.ErrorIs(err, domain.ErrNegotiationFailure)
		req.True(domain.Retriable(err))
	case <-time.After(2 * time.Second):
		t.Fatal("answer timeout did not fire")
	}
	req.Equal(Closed, p.offerer.State())
	req.Equal(webrtc.PeerConnectionStateClosed, p.aConn.ConnectionState())
}

func TestSession_Transport_Failure_Closes_Session(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newPair(Config{})

	var got []error
	p.answerer.OnFailure(func(err error) { got = append(got, err) })

	offer, err := p.offerer.CreateOffer(ctx)
	req.NoError(err)
	_, err = p.answerer.HandleOffer(ctx, offer)
	req.NoError(err)

	// When ICE fails on b's side
	p.bConn.Fail()

	// Then b's session is closed and the failure is reported once
	req.Equal(Closed, p.answerer.State())
	req.Len(got, 1)
	req.ErrorIs(got[0], domain.ErrNegotiationFailure)

	// And late messages for the pair are stale
	req.ErrorIs(p.answerer.AddICECandidate(webrtc.ICECandidateInit{Candidate: "late"}), domain.ErrStaleMessage)
}

func TestSession_Close_Is_Idempotent_And_Silent(t *testing.T) {
	req := require.New(t)
	p := newPair(Config{})

	called := false
	p.offerer.OnFailure(func(error) { called = true })

	p.offerer.Close()
	p.offerer.Close()

	req.Equal(Closed, p.offerer.State())
	req.False(called)

	_, err := p.offerer.HandleOffer(context.Background(), webrtc.SessionDescription{})
	req.ErrorIs(err, domain.ErrStaleMessage)
}

func TestSession_Send_Failure_Is_Negotiation_Failure(t *testing.T) {
	req := require.New(t)
	p := newPair(Config{})
	p.aOut.err = errors.New("socket gone")

	_, err := p.offerer.CreateOffer(context.Background())

	req.ErrorIs(err, domain.ErrNegotiationFailure)
	req.Equal(Closed, p.offerer.State())
}

func TestSession_Cancelled_Context_Leaves_State_Untouched(t *testing.T) {
	req := require.New(t)
	p := newPair(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.offerer.CreateOffer(ctx)

	req.ErrorIs(err, context.Canceled)
	req.Equal(Idle, p.offerer.State())
}
