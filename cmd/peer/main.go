// Command peer joins a room as a native WebRTC participant. Lines typed on
// stdin are sent as chat; /mic, /video, /share, /invite <id> and /quit control
// the call.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/dkeye/callroom/internal/adapters/rtc"
	wssignal "github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/app/media"
	"github.com/dkeye/callroom/internal/app/negotiation"
	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/domain"
)

type options struct {
	url           string
	id            string
	name          string
	room          string
	audio         bool
	video         bool
	devices       bool
	answerTimeout time.Duration
	iceServers    []string
	loopback      bool
	verbose       bool
}

func parseFlags() options {
	var o options
	flag.StringVarP(&o.url, "url", "u", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	flag.StringVar(&o.id, "id", "", "participant id (random when empty)")
	flag.StringVarP(&o.name, "name", "n", "peer", "display name")
	flag.StringVarP(&o.room, "room", "r", "lobby", "room to join")
	flag.BoolVar(&o.audio, "audio", true, "send audio")
	flag.BoolVar(&o.video, "video", false, "send video")
	flag.BoolVar(&o.devices, "devices", false, "capture real camera and microphone instead of generated tracks")
	flag.DurationVar(&o.answerTimeout, "answer-timeout", 30*time.Second, "give up on an unanswered offer")
	flag.StringSliceVar(&o.iceServers, "ice", rtc.DefaultOptions().ICEServers, "ICE server URLs")
	flag.BoolVar(&o.loopback, "loopback", false, "gather loopback candidates")
	flag.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	flag.Parse()
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o
}

func main() {
	opts := parseFlags()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Msg("peer stopped")
	}
}

func run(ctx context.Context, opts options) error {
	self := domain.ParticipantID(opts.id)

	client, err := wssignal.Dial(ctx, opts.url, wssignal.ClientOptions{ID: self, Name: opts.name})
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	defer client.Close()

	rtcOpts := rtc.DefaultOptions()
	rtcOpts.ICEServers = opts.iceServers
	rtcOpts.IncludeLoopback = opts.loopback
	factory, err := rtc.NewFactory(rtcOpts)
	if err != nil {
		return err
	}

	var devices media.Devices = media.NewStaticDevices(opts.id)
	if opts.devices {
		capture, err := media.NewDeviceCapture(opts.id)
		if err != nil {
			return fmt.Errorf("open devices: %w", err)
		}
		devices = capture
	}

	e := orch.NewEndpoint(orch.Config{
		Room:        domain.RoomID(opts.room),
		Self:        self,
		Constraints: media.Constraints{Audio: opts.audio, Video: opts.video},
		Negotiation: negotiation.Config{AnswerTimeout: opts.answerTimeout},
	}, client, factory.NewConnection, media.NewManager(devices))

	e.OnMessage(func(m domain.ChatMessage) {
		fmt.Printf("[%s] %s\n", m.SenderID, m.Content)
	})
	e.OnInvitation(func(inv domain.Invitation) {
		log.Info().Str("id", string(inv.ID)).Str("from", string(inv.From)).Str("room", string(inv.RoomID)).Msg("invitation received")
	})
	e.OnFailure(func(remote domain.ParticipantID, err error) {
		log.Warn().Err(err).Str("remote", string(remote)).Msg("peer connection failed")
	})

	if err := e.Join(ctx); err != nil {
		if domain.Retriable(err) {
			return fmt.Errorf("media unavailable, check permissions and retry: %w", err)
		}
		return err
	}
	defer func() {
		if err := e.Leave(); err != nil {
			log.Error().Err(err).Msg("leave")
		}
	}()
	log.Info().Str("room", opts.room).Str("id", opts.id).Msg("joined")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.Done():
			return nil
		case <-client.Done():
			return wssignal.ErrRemote
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := command(ctx, e, client, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func command(ctx context.Context, e *orch.Endpoint, client *wssignal.Client, line string) bool {
	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/mic":
		on, err := e.ToggleMic()
		logToggle("mic", on, err)
	case line == "/video":
		on, err := e.ToggleVideo()
		logToggle("video", on, err)
	case line == "/share":
		if e.Media().State().ScreenSharing() {
			logToggle("screen", false, e.StopScreenShare(ctx))
		} else {
			logToggle("screen", true, e.StartScreenShare(ctx))
		}
	case line == "/peers":
		for pid, st := range e.PeerStates() {
			fmt.Printf("%s %s %+v\n", pid, st, e.RemoteMedia()[pid])
		}
	case strings.HasPrefix(line, "/invite "):
		to := domain.ParticipantID(strings.TrimSpace(strings.TrimPrefix(line, "/invite ")))
		inv, err := client.Invite(ctx, e.Room(), to)
		if err != nil {
			log.Error().Err(err).Msg("invite")
			break
		}
		log.Info().Str("id", string(inv.ID)).Str("to", string(to)).Msg("invited")
	default:
		if n := e.SendMessage(line); n == 0 {
			log.Warn().Msg("no open chat channel")
		}
	}
	return false
}

func logToggle(what string, on bool, err error) {
	if err != nil {
		log.Error().Err(err).Str("device", what).Msg("toggle failed")
		return
	}
	log.Info().Str("device", what).Bool("on", on).Msg("toggled")
}
