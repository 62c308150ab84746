// Package web exposes the rig's control API over HTTP: servo positioning,
// animation playback, audio management and a live status websocket.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/kristof/droid-rig/internal/log"
	"github.com/kristof/droid-rig/pkg/animation"
	"github.com/kristof/droid-rig/pkg/audio"
	"github.com/kristof/droid-rig/pkg/hub"
	"github.com/kristof/droid-rig/pkg/servo"
)

// statusInterval is how often the live status stream is refreshed.
const statusInterval = 200 * time.Millisecond

// Server is the rig control API server.
type Server struct {
	app *fiber.App

	servo    *servo.Controller
	animator *animation.Animator
	player   *audio.Player
	store    *animation.Store

	statusHub *hub.Hub
}

// NewServer wires the API over the given components.
func NewServer(ctrl *servo.Controller, anim *animation.Animator, player *audio.Player, store *animation.Store) *Server {
	s := &Server{
		servo:     ctrl,
		animator:  anim,
		player:    player,
		store:     store,
		statusHub: hub.New("status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "DroidRig",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024, // audio uploads
	})

	app.Use(cors.New())

	app.Get("/", s.handleAPIInfo)
	app.Get("/api", s.handleAPIInfo)

	app.Post("/servo", s.handleSetServo)
	app.Get("/servo/:channel/config", s.handleGetServoConfig)
	app.Post("/servo/:channel/config", s.handleSetServoConfig)

	app.Post("/animate", s.handleAnimate)
	app.Post("/play", s.handlePlay)
	app.Post("/stop", s.handleStop)
	app.Get("/status", s.handleStatus)
	app.Post("/center", s.handleCenter)

	app.Get("/config", s.handleGetConfig)
	app.Post("/config", s.handleSetConfig)
	app.Post("/config/save", s.handleSaveConfig)

	app.Post("/audio/upload", s.handleAudioUpload)
	app.Get("/audio/current", s.handleAudioCurrent)
	app.Post("/audio/select", s.handleAudioSelect)
	app.Post("/audio/clear", s.handleAudioClear)
	app.Get("/audio/file/:filename", s.handleAudioFile)
	app.Get("/audio/list", s.handleAudioList)
	app.Get("/audio/offset", s.handleGetAudioOffset)
	app.Post("/audio/offset", s.handleSetAudioOffset)

	app.Get("/animations/list", s.handleAnimationsList)
	app.Post("/animations/save", s.handleAnimationsSave)
	app.Get("/animations/load/:filename", s.handleAnimationsLoad)
	app.Post("/animations/delete/:filename", s.handleAnimationsDelete)
	app.Post("/animations/play/:filename", s.handleAnimationsPlay)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Listen starts the server. Blocks until Shutdown.
func (s *Server) Listen(addr string) error {
	go s.statusHub.Run()
	go s.statusLoop()
	log.Info("control api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying fiber app (used by tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// Status is the live rig state pushed to dashboards and returned by
// GET /status.
type Status struct {
	Animating    bool                   `json:"animating"`
	AudioPlaying bool                   `json:"audio_playing"`
	Positions    map[int]int            `json:"positions"`
	Servos       map[int]servo.Settings `json:"servos"`
}

func (s *Server) status() Status {
	return Status{
		Animating:    s.animator.IsAnimating(),
		AudioPlaying: s.player.IsPlaying(),
		Positions:    s.servo.Positions(),
		Servos:       s.servoConfigs(),
	}
}

func (s *Server) servoConfigs() map[int]servo.Settings {
	out := make(map[int]servo.Settings)
	for i := 0; i < s.servo.NumServos(); i++ {
		st := s.servo.Store().Servo(i)
		if st.Color == "" {
			st.Color = servo.DefaultColor(i)
		}
		out[i] = st
	}
	return out
}

// statusLoop pushes the rig state to websocket clients at a fixed rate.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for range ticker.C {
		if s.statusHub.ClientCount() == 0 {
			continue
		}
		s.statusHub.BroadcastJSON(s.status())
	}
}

// handleStatusWS streams rig status over a websocket.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)

	// Send the current state immediately
	c.WriteJSON(s.status())

	client.Run()
}
