package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rtspgrab/rtspgrab/internal/app"
	"github.com/rtspgrab/rtspgrab/pkg/core"
	"github.com/rtspgrab/rtspgrab/pkg/h264"
	"github.com/rtspgrab/rtspgrab/pkg/rtp"
	"github.com/rtspgrab/rtspgrab/pkg/rtsp"
	"github.com/rtspgrab/rtspgrab/pkg/yaml"
)

type Config struct {
	Output       string        `yaml:"output"`
	Retry        time.Duration `yaml:"retry"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	Buffer       int           `yaml:"buffer"`
}

type RTSPConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	UDPPort         int           `yaml:"udp_port"`
	MaxAuthAttempts int           `yaml:"max_auth_attempts"`
	UserAgent       string        `yaml:"user_agent"`
}

var ErrStall = errors.New("recorder: no payload received")

func Init() {
	var cfg struct {
		Mod     Config            `yaml:"recorder"`
		RTSP    RTSPConfig        `yaml:"rtsp"`
		Streams map[string]string `yaml:"streams"`
	}

	// default config
	cfg.Mod = DefaultConfig()
	cfg.RTSP = DefaultRTSPConfig()

	app.LoadConfig(&cfg)
	app.Info["recorder"] = cfg.Mod

	log = app.GetLogger("recorder")

	if b, err := yaml.Encode(map[string]any{"recorder": cfg.Mod, "rtsp": cfg.RTSP}, 2); err == nil {
		log.Debug().Msgf("[recorder] config:\n%s", b)
	}

	if len(cfg.Streams) == 0 {
		log.Warn().Msg("[recorder] no streams in config")
		return
	}

	rec = New(cfg.Mod, cfg.RTSP, cfg.Streams)
	rec.Log = log
	rec.RTSPLog = app.GetLogger("rtsp")
	rec.RTPLog = app.GetLogger("rtp")
	rec.Start(context.Background())
}

// Stop running recorder, if any, and wait for all files to be closed
func Stop() {
	if rec != nil {
		rec.Stop()
	}
}

var log zerolog.Logger
var rec *Recorder

func DefaultConfig() Config {
	return Config{
		Output:       ".",
		Retry:        10 * time.Second,
		ReadTimeout:  5 * time.Second,
		StallTimeout: 30 * time.Second,
		Buffer:       64 * 1024,
	}
}

func DefaultRTSPConfig() RTSPConfig {
	return RTSPConfig{
		Timeout:         rtsp.Timeout,
		MaxAuthAttempts: rtsp.MaxAuthAttempts,
		UserAgent:       app.UserAgent,
	}
}

// Recorder runs one independent worker per stream
type Recorder struct {
	Config Config
	RTSP   RTSPConfig

	Log     zerolog.Logger
	RTSPLog zerolog.Logger
	RTPLog  zerolog.Logger

	cameras []*camera
	cancel  context.CancelFunc
	stop    sync.Once
}

type camera struct {
	name   string
	url    string
	port   int
	worker *core.Worker
}

// New - streams is name => rtsp URL. UDP ports assigned in name order.
func New(cfg Config, rtspCfg RTSPConfig, streams map[string]string) *Recorder {
	r := &Recorder{
		Config:  cfg,
		RTSP:    rtspCfg,
		Log:     zerolog.Nop(),
		RTSPLog: zerolog.Nop(),
		RTPLog:  zerolog.Nop(),
	}

	names := make([]string, 0, len(streams))
	for name := range streams {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		cam := &camera{name: name, url: streams[name]}
		if rtspCfg.UDPPort > 0 {
			cam.port = rtspCfg.UDPPort + 2*i
		}
		r.cameras = append(r.cameras, cam)
	}

	return r
}

func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	for _, cam := range r.cameras {
		cam := cam
		cam.worker = core.NewWorker(0, func() time.Duration {
			err := r.run(ctx, cam)

			if ctx.Err() != nil {
				return 0
			}

			if err != nil {
				r.Log.Warn().Err(err).Str("name", cam.name).Dur("retry", r.Config.Retry).Msg("[recorder] run")
			}

			return r.Config.Retry
		})
	}
}

// Stop cancels all runs and waits until they finish
func (r *Recorder) Stop() {
	r.stop.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		for _, cam := range r.cameras {
			if cam.worker == nil {
				continue
			}
			cam.worker.Stop()
			<-cam.worker.Done()
		}
	})
}

// run is one RTSP session from connect till error or cancel
func (r *Recorder) run(ctx context.Context, cam *camera) (err error) {
	id := uuid.NewString()
	log := r.Log.With().Str("name", cam.name).Str("run", id).Logger()

	stream, err := rtp.Listen(cam.port)
	if err != nil {
		return err
	}
	defer stream.Close()

	stream.ReadTimeout = r.Config.ReadTimeout
	stream.Log = r.RTPLog.With().Str("name", cam.name).Logger()

	client, err := rtsp.NewClient(cam.url)
	if err != nil {
		return err
	}

	if r.RTSP.Timeout > 0 {
		client.Timeout = r.RTSP.Timeout
	}
	if r.RTSP.MaxAuthAttempts > 0 {
		client.MaxAuthAttempts = r.RTSP.MaxAuthAttempts
	}
	client.UserAgent = r.RTSP.UserAgent
	client.Log = r.RTSPLog.With().Str("name", cam.name).Logger()

	if err = client.Connect(ctx); err != nil {
		return err
	}

	defer func() {
		if err := client.Teardown(); err != nil {
			log.Debug().Err(err).Msg("[recorder] teardown")
		}
	}()

	if _, err = client.Setup(stream.Port()); err != nil {
		return err
	}

	if _, err = client.Play(""); err != nil {
		return err
	}

	path := filepath.Join(r.Config.Output, cam.name+"-"+id+".h264")

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := newWriter(f, r.Config.Buffer)

	defer func() {
		if err2 := w.Close(); err == nil {
			err = err2
		}

		log.Info().Int("payloads", w.payloads).Int64("bytes", w.bytes).
			Int("idr", w.idr).Msg("[recorder] stop")
	}()

	if sps, pps := h264.GetParameterSet(rtsp.VideoFmtp(client.SDP())); sps != nil && pps != nil {
		if _, err = w.Write(h264.AnnexB(sps, pps)); err != nil {
			return err
		}

		if s, err := h264.DecodeSPS(sps); err == nil {
			log = log.With().Str("video", s.String()).Logger()
		} else {
			log.Debug().Err(err).Msg("[recorder] sps")
		}
	}

	log.Info().Str("url", client.String()).Str("path", path).Int("port", stream.Port()).
		Str("session", client.Session()).Dur("timeout", client.SessionTimeout()).Msg("[recorder] start")

	return r.watch(ctx, stream, w, client)
}

// watch runs stream until ctx is done, or no payload for StallTimeout.
// Session is kept alive with OPTIONS at half of the server session timeout.
func (r *Recorder) watch(ctx context.Context, stream *rtp.Stream, w *writer, client *rtsp.Client) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if timeout := client.SessionTimeout(); timeout > 0 {
		go func() {
			ticker := time.NewTicker(timeout / 2)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := client.Options(); err != nil {
						cancel(err)
						return
					}
				}
			}
		}()
	}

	if r.Config.StallTimeout > 0 {
		go func() {
			ticker := time.NewTicker(r.Config.StallTimeout / 4)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					if now.Sub(w.Last()) > r.Config.StallTimeout {
						cancel(ErrStall)
						return
					}
				}
			}
		}()
	}

	err := stream.Run(ctx, func(payload []byte) error {
		_, err := w.Write(payload)
		return err
	})

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	if ctx.Err() != nil {
		return nil
	}

	return err
}
