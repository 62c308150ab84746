package web

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kristof/droid-rig/internal/config"
	"github.com/kristof/droid-rig/pkg/animation"
)

func (s *Server) handleAnimationsList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ok",
		"animations": s.store.List(),
	})
}

// animationPayload is the wire shape for saving an animation. Curve keys
// are strings (JSON object keys); they are parsed at this boundary.
type animationPayload struct {
	Name        string                     `json:"name"`
	DurationMS  int                        `json:"duration_ms"`
	Curves      map[string]animation.Curve `json:"curves"`
	Annotations []animation.Annotation     `json:"annotations"`
}

func (s *Server) handleAnimationsSave(c *fiber.Ctx) error {
	var req animationPayload
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Name is required")
	}

	curves := make(map[int]animation.Curve, len(req.Curves))
	for k, curve := range req.Curves {
		ch, err := strconv.Atoi(k)
		if err != nil || ch < 0 {
			return errorResponse(c, fiber.StatusBadRequest, "invalid curve channel: "+k)
		}
		curves[ch] = curve
	}

	duration := req.DurationMS
	if duration <= 0 {
		duration = 3000
	}

	anim := &animation.Saved{
		Name:        req.Name,
		DurationMS:  duration,
		Curves:      curves,
		Annotations: req.Annotations,
		AudioFile:   s.player.CurrentFile(),
	}

	// Updating an existing animation keeps its creation time.
	if existing, err := s.store.Load(req.Name); err == nil {
		anim.CreatedAt = existing.CreatedAt
	}

	filename, err := s.store.Save(anim)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"message":  "Animation '" + req.Name + "' saved",
		"filename": filename,
	})
}

// savedToPayload converts a Saved back to the wire shape.
func savedToPayload(anim *animation.Saved) fiber.Map {
	curves := make(map[string]animation.Curve, len(anim.Curves))
	for ch, c := range anim.Curves {
		curves[strconv.Itoa(ch)] = c
	}
	return fiber.Map{
		"name":        anim.Name,
		"duration_ms": anim.DurationMS,
		"curves":      curves,
		"annotations": anim.Annotations,
		"audio_file":  anim.AudioFile,
		"created_at":  anim.CreatedAt,
		"updated_at":  anim.UpdatedAt,
	}
}

func (s *Server) handleAnimationsLoad(c *fiber.Ctx) error {
	anim, err := s.store.LoadByFilename(c.Params("filename"))
	if err != nil {
		return errorResponse(c, fiber.StatusNotFound, "Animation not found")
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"animation": savedToPayload(anim),
	})
}

func (s *Server) handleAnimationsDelete(c *fiber.Ctx) error {
	anim, err := s.store.LoadByFilename(c.Params("filename"))
	if err != nil {
		return errorResponse(c, fiber.StatusNotFound, "Animation not found")
	}
	if !s.store.Delete(anim.Name) {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to delete")
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Animation '" + anim.Name + "' deleted",
	})
}

func (s *Server) handleAnimationsPlay(c *fiber.Ctx) error {
	anim, err := s.store.LoadByFilename(c.Params("filename"))
	if err != nil {
		return errorResponse(c, fiber.StatusNotFound, "Animation not found")
	}

	frames := s.animator.SampleSaved(anim, config.SampleIntervalMS)
	if len(frames) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, "Animation has no data")
	}

	// If the animation names an audio track that still exists, select it
	// for synchronized playback.
	withAudio := false
	if anim.AudioFile != "" {
		if _, err := os.Stat(filepath.Join(s.player.Dir(), anim.AudioFile)); err == nil {
			if s.player.SetCurrent(anim.AudioFile) == nil {
				withAudio = true
			}
		}
	}

	if err := s.animator.StartKeyframes(frames, withAudio); err != nil {
		return busyResponse(c)
	}

	return c.JSON(fiber.Map{
		"status":      "started",
		"message":     "Playing '" + anim.Name + "'",
		"duration_ms": anim.DurationMS,
		"has_audio":   withAudio,
	})
}
