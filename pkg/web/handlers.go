package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kristof/droid-rig/internal/config"
	"github.com/kristof/droid-rig/pkg/animation"
)

func (s *Server) handleAPIInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"endpoints": fiber.Map{
			"/servo":                  "POST - Set individual servo position",
			"/servo/:channel/config":  "GET/POST - Get or set servo configuration",
			"/animate":                "POST - Trigger preset animation",
			"/play":                   "POST - Play custom keyframes",
			"/stop":                   "POST - Stop current animation",
			"/status":                 "GET - Check status and positions",
			"/center":                 "POST - Return servos to center",
			"/config":                 "GET/POST - Get or set global configuration",
			"/config/save":            "POST - Save configuration to disk",
			"/audio/...":              "Audio upload, selection and sync offset",
			"/animations/...":         "Saved animation CRUD and playback",
			"/ws/status":              "WS - Live status stream",
		},
	})
}

func busyResponse(c *fiber.Ctx) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"status":  "busy",
		"message": "Animation in progress",
	})
}

func errorResponse(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{"status": "error", "message": msg})
}

type setServoRequest struct {
	Channel  int  `json:"channel"`
	Position *int `json:"position"`
}

func (s *Server) handleSetServo(c *fiber.Ctx) error {
	if s.animator.IsAnimating() {
		return busyResponse(c)
	}

	var req setServoRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	_, center, _ := s.servo.Limits(req.Channel)
	position := center
	if req.Position != nil {
		position = *req.Position
	}

	applied := s.servo.SetPosition(req.Channel, position)
	return c.JSON(fiber.Map{
		"status":   "ok",
		"channel":  req.Channel,
		"position": applied,
	})
}

func (s *Server) channelParam(c *fiber.Ctx) (int, error) {
	ch, err := strconv.Atoi(c.Params("channel"))
	if err != nil || ch < 0 || ch >= s.servo.NumServos() {
		return 0, errors.New("invalid channel")
	}
	return ch, nil
}

func (s *Server) handleGetServoConfig(c *fiber.Ctx) error {
	ch, err := s.channelParam(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid channel")
	}
	st := s.servo.Store().Servo(ch)
	return c.JSON(fiber.Map{
		"channel":      ch,
		"name":         st.Name,
		"min_pulse":    st.MinPulse,
		"max_pulse":    st.MaxPulse,
		"center_pulse": st.CenterPulse,
		"color":        st.Color,
	})
}

type servoConfigRequest struct {
	Name        *string `json:"name"`
	MinPulse    *int    `json:"min_pulse"`
	MaxPulse    *int    `json:"max_pulse"`
	CenterPulse *int    `json:"center_pulse"`
	Color       *string `json:"color"`
}

func (s *Server) handleSetServoConfig(c *fiber.Ctx) error {
	ch, err := s.channelParam(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid channel")
	}
	if s.animator.IsAnimating() {
		return busyResponse(c)
	}

	var req servoConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	st := s.servo.Store().Servo(ch)
	if req.Name != nil {
		st.Name = *req.Name
	}
	if req.MinPulse != nil {
		st.MinPulse = *req.MinPulse
	}
	if req.MaxPulse != nil {
		st.MaxPulse = *req.MaxPulse
	}
	if req.CenterPulse != nil {
		st.CenterPulse = *req.CenterPulse
	}
	if req.Color != nil {
		st.Color = *req.Color
	}

	// Clamp to the global pulse range
	if st.MinPulse < config.MinPulse {
		st.MinPulse = config.MinPulse
	}
	if st.MaxPulse > config.MaxPulse {
		st.MaxPulse = config.MaxPulse
	}
	if st.MinPulse >= st.MaxPulse {
		return errorResponse(c, fiber.StatusBadRequest, "min must be less than max")
	}
	if st.CenterPulse < st.MinPulse || st.CenterPulse > st.MaxPulse {
		st.CenterPulse = (st.MinPulse + st.MaxPulse) / 2
	}

	s.servo.Store().SetServo(ch, st)
	s.saveConfigQuiet()

	return c.JSON(fiber.Map{
		"status":       "ok",
		"channel":      ch,
		"name":         st.Name,
		"min_pulse":    st.MinPulse,
		"max_pulse":    st.MaxPulse,
		"center_pulse": st.CenterPulse,
		"color":        st.Color,
	})
}

func (s *Server) handleAnimate(c *fiber.Ctx) error {
	if err := s.animator.StartPreset(); err != nil {
		return busyResponse(c)
	}
	return c.JSON(fiber.Map{"status": "started", "message": "Animation sequence started"})
}

// keyframePayload is the wire shape of one keyframe. JSON object keys
// are strings; channels are parsed to ints here so malformed keys never
// reach the engine.
type keyframePayload struct {
	Servos   map[string]int `json:"servos"`
	Duration int            `json:"duration"`
}

type playRequest struct {
	Keyframes []keyframePayload `json:"keyframes"`
	WithAudio *bool             `json:"with_audio"`
}

func parseKeyframes(payload []keyframePayload) ([]animation.Keyframe, error) {
	frames := make([]animation.Keyframe, 0, len(payload))
	for _, kf := range payload {
		targets := make(map[int]int, len(kf.Servos))
		for k, pulse := range kf.Servos {
			ch, err := strconv.Atoi(k)
			if err != nil || ch < 0 {
				return nil, errors.New("invalid servo channel: " + k)
			}
			targets[ch] = pulse
		}
		duration := kf.Duration
		if duration <= 0 {
			duration = 500
		}
		frames = append(frames, animation.Keyframe{Targets: targets, DurationMS: duration})
	}
	return frames, nil
}

func (s *Server) handlePlay(c *fiber.Ctx) error {
	var req playRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Keyframes) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, "No keyframes provided")
	}

	frames, err := parseKeyframes(req.Keyframes)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	withAudio := true
	if req.WithAudio != nil {
		withAudio = *req.WithAudio
	}

	if err := s.animator.StartKeyframes(frames, withAudio); err != nil {
		return busyResponse(c)
	}
	return c.JSON(fiber.Map{
		"status":  "started",
		"message": "Playing " + strconv.Itoa(len(frames)) + " keyframes",
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.animator.Stop()
	return c.JSON(fiber.Map{"status": "ok", "message": "Stop signal sent"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleCenter(c *fiber.Ctx) error {
	if s.animator.IsAnimating() {
		return busyResponse(c)
	}
	s.servo.CenterAll()
	return c.JSON(fiber.Map{"status": "ok", "message": "Servos centered"})
}

func (s *Server) globalConfig() fiber.Map {
	return fiber.Map{
		"numServos":         s.servo.NumServos(),
		"globalMinPulse":    config.MinPulse,
		"globalMaxPulse":    config.MaxPulse,
		"globalCenterPulse": config.CenterPulse,
		"servos":            s.servoConfigs(),
	}
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.globalConfig())
}

type configRequest struct {
	NumServos *int `json:"numServos"`
}

func (s *Server) handleSetConfig(c *fiber.Ctx) error {
	if s.animator.IsAnimating() {
		return busyResponse(c)
	}

	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.NumServos != nil {
		s.servo.SetNumServos(*req.NumServos)
		s.saveConfigQuiet()
	}

	resp := s.globalConfig()
	resp["status"] = "ok"
	return c.JSON(resp)
}

func (s *Server) handleSaveConfig(c *fiber.Ctx) error {
	if err := s.servo.Store().Save(); err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok", "message": "Configuration saved"})
}

// saveConfigQuiet persists the config, ignoring failures so API mutations
// still succeed on read-only filesystems.
func (s *Server) saveConfigQuiet() {
	_ = s.servo.Store().Save()
}
