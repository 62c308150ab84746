package web

import (
	"io"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kristof/droid-rig/pkg/audio"
)

// waveformSamples is the resolution of the waveform sent to the editor.
const waveformSamples = 200

func (s *Server) handleAudioUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "No file provided")
	}
	if fh.Filename == "" {
		return errorResponse(c, fiber.StatusBadRequest, "No file selected")
	}

	f, err := fh.Open()
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}

	name, err := s.player.SaveUpload(data, fh.Filename)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if err := s.player.SetCurrent(name); err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}
	s.saveConfigQuiet()

	path := filepath.Join(s.player.Dir(), name)
	return c.JSON(fiber.Map{
		"status":      "ok",
		"filename":    name,
		"duration_ms": audio.DurationMS(path),
		"waveform":    audio.Waveform(path, waveformSamples),
	})
}

func (s *Server) handleAudioCurrent(c *fiber.Ctx) error {
	name := s.player.CurrentFile()
	if name == "" {
		return c.JSON(fiber.Map{"status": "ok", "has_audio": false})
	}

	path := filepath.Join(s.player.Dir(), name)
	return c.JSON(fiber.Map{
		"status":      "ok",
		"has_audio":   true,
		"filename":    name,
		"duration_ms": audio.DurationMS(path),
		"waveform":    audio.Waveform(path, waveformSamples),
	})
}

type audioSelectRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleAudioSelect(c *fiber.Ctx) error {
	var req audioSelectRequest
	if err := c.BodyParser(&req); err != nil || req.Filename == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Filename required")
	}

	if err := s.player.SetCurrent(req.Filename); err != nil {
		return errorResponse(c, fiber.StatusNotFound, "Audio file not found")
	}
	s.saveConfigQuiet()

	path := filepath.Join(s.player.Dir(), req.Filename)
	return c.JSON(fiber.Map{
		"status":      "ok",
		"filename":    req.Filename,
		"duration_ms": audio.DurationMS(path),
	})
}

func (s *Server) handleAudioClear(c *fiber.Ctx) error {
	s.player.Clear()
	s.saveConfigQuiet()
	return c.JSON(fiber.Map{"status": "ok", "message": "Audio cleared"})
}

func (s *Server) handleAudioFile(c *fiber.Ctx) error {
	name := filepath.Base(c.Params("filename"))
	return c.SendFile(filepath.Join(s.player.Dir(), name))
}

func (s *Server) handleAudioList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"files":  s.player.List(),
	})
}

func (s *Server) handleGetAudioOffset(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"offset_ms": s.player.OffsetMS(),
	})
}

type audioOffsetRequest struct {
	OffsetMS int `json:"offset_ms"`
}

func (s *Server) handleSetAudioOffset(c *fiber.Ctx) error {
	var req audioOffsetRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	s.player.SetOffsetMS(req.OffsetMS) // clamps
	s.saveConfigQuiet()

	applied := s.player.OffsetMS()
	return c.JSON(fiber.Map{
		"status":    "ok",
		"offset_ms": applied,
		"message":   "Audio offset set to " + strconv.Itoa(applied) + "ms (saved)",
	})
}
