package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/solacestudio/studio-reservation/internal/booking"
	"github.com/solacestudio/studio-reservation/internal/model"
	"github.com/solacestudio/studio-reservation/internal/repository"
)

// ScheduleHandler exposes the public class schedule.  Listing is cacheable;
// the per-session detail includes live seat and waitlist counts from the
// engine's capacity tracker.
type ScheduleHandler struct {
	Sessions *repository.SessionRepo
	Engine   *booking.ReservationEngine
	Clock    booking.Clock
}

func NewScheduleHandler(sessions *repository.SessionRepo, engine *booking.ReservationEngine, clock booking.Clock) *ScheduleHandler {
	return &ScheduleHandler{Sessions: sessions, Engine: engine, Clock: clock}
}

type sessionResp struct {
	ID                  uint64 `json:"id"`
	Name                string `json:"name"`
	ClassType           string `json:"class_type"`
	Room                string `json:"room"`
	StartsAt            string `json:"starts_at"`
	EndsAt              string `json:"ends_at"`
	MaxCapacity         uint32 `json:"max_capacity"`
	WaitlistCapacity    uint32 `json:"waitlist_capacity"`
	CancelDeadlineHours uint32 `json:"cancel_deadline_hours"`
	LateFeeCents        uint32 `json:"late_fee_cents"`
	DropInPriceCents    uint32 `json:"drop_in_price_cents"`
}

func toSessionResp(s *model.ClassSession) sessionResp {
	return sessionResp{
		ID:                  s.ID,
		Name:                s.Name,
		ClassType:           s.ClassType,
		Room:                s.Room,
		StartsAt:            s.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:              s.EndsAt.UTC().Format(time.RFC3339),
		MaxCapacity:         s.MaxCapacity,
		WaitlistCapacity:    s.WaitlistCapacity,
		CancelDeadlineHours: s.CancelDeadlineHours,
		LateFeeCents:        s.LateFeeCents,
		DropInPriceCents:    s.DropInPriceCents,
	}
}

// List returns upcoming active sessions.  Accepts an optional ?limit= query
// parameter (default 50).
func (h *ScheduleHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Sessions.ListUpcoming(ctx, h.Clock.Now(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]sessionResp, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResp(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// Get returns one session with its current confirmed-seat count and
// waitlist length.
func (h *ScheduleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	confirmed, waitlisted, err := h.Engine.Availability(ctx, id)
	if err != nil {
		return bookingError(c, err)
	}
	resp := toSessionResp(s)
	spotsLeft := uint32(0)
	if s.MaxCapacity > confirmed {
		spotsLeft = s.MaxCapacity - confirmed
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session":          resp,
		"confirmed":        confirmed,
		"spots_left":       spotsLeft,
		"waitlist_length":  waitlisted,
		"waitlist_is_full": waitlisted >= s.WaitlistCapacity,
	})
}
