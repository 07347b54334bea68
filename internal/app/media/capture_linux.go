//go:build linux

package media

import (
	"context"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
)

// DeviceCapture opens local hardware through pion/mediadevices (V4L2, malgo,
// X11 screen grab) and re-encodes into VP8/Opus tracks.
type DeviceCapture struct {
	streamID string
	selector *mediadevices.CodecSelector
	log      zerolog.Logger
}

func NewDeviceCapture(streamID string) (*DeviceCapture, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &DeviceCapture{
		streamID: streamID,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		log: log.With().Str("module", "app.media.capture").Logger(),
	}, nil
}

func (d *DeviceCapture) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}
	if !c.Audio && !c.Video {
		return Stream{}, nil
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras poison the VP8 encoder.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return Stream{}, classify("get user media", err)
	}

	var s Stream
	for _, src := range ms.GetTracks() {
		source := domain.VideoNone
		if src.Kind() == webrtc.RTPCodecTypeVideo {
			source = domain.VideoCamera
		}
		t, err := d.bridge(src, source)
		if err != nil {
			s.Stop()
			closeAll(ms.GetTracks())
			return Stream{}, classify("get user media", err)
		}
		if src.Kind() == webrtc.RTPCodecTypeVideo {
			s.Video = t
		} else {
			s.Audio = t
		}
	}
	d.log.Info().Bool("audio", s.Audio != nil).Bool("video", s.Video != nil).Msg("local media captured")
	return s, nil
}

func (d *DeviceCapture) GetDisplayMedia(ctx context.Context) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Video: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, classify("get display media", err)
	}
	tracks := ms.GetVideoTracks()
	if len(tracks) == 0 {
		closeAll(ms.GetTracks())
		return nil, classify("get display media", domain.ErrDeviceUnavailable)
	}
	t, err := d.bridge(tracks[0], domain.VideoScreen)
	if err != nil {
		closeAll(ms.GetTracks())
		return nil, classify("get display media", err)
	}
	d.log.Info().Msg("screen capture started")
	return t, nil
}

// bridge pumps the encoded output of a device track into a Track.
func (d *DeviceCapture) bridge(src mediadevices.Track, source domain.VideoSource) (*Track, error) {
	codec := Opus
	if src.Kind() == webrtc.RTPCodecTypeVideo {
		codec = VP8
	}
	reader, err := src.NewEncodedReader(codec.MimeType)
	if err != nil {
		return nil, err
	}
	t, err := NewTrack(src.Kind(), source, codec, d.streamID)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	t.setRelease(func() { _ = src.Close() })
	src.OnEnded(func(err error) {
		if err != nil {
			d.log.Warn().Err(err).Str("kind", src.Kind().String()).Msg("device track ended")
		}
		t.End()
	})

	go func() {
		defer reader.Close()
		for !t.Ended() {
			buf, release, err := reader.Read()
			if err != nil {
				t.End()
				return
			}
			dur := time.Duration(buf.Samples) * time.Second / time.Duration(codec.ClockRate)
			if err := t.WriteSample(media.Sample{Data: buf.Data, Duration: dur}); err != nil {
				d.log.Debug().Err(err).Msg("write sample")
			}
			release()
		}
	}()
	return t, nil
}

func closeAll(tracks []mediadevices.Track) {
	for _, t := range tracks {
		_ = t.Close()
	}
}
