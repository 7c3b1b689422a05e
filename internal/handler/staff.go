package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/solacestudio/studio-reservation/internal/booking"
	"github.com/solacestudio/studio-reservation/internal/model"
	"github.com/solacestudio/studio-reservation/internal/repository"
)

// StaffHandler exposes the staff-only endpoints: session scheduling, class
// rosters, attendance outcomes and credit grants.
type StaffHandler struct {
	Sessions     *repository.SessionRepo
	Reservations *repository.ReservationRepo
	Members      *repository.MemberRepo
	Ledger       *repository.LedgerRepo
	Engine       *booking.ReservationEngine
	Clock        booking.Clock
}

func NewStaffHandler(sessions *repository.SessionRepo, reservations *repository.ReservationRepo, members *repository.MemberRepo, ledger *repository.LedgerRepo, engine *booking.ReservationEngine, clock booking.Clock) *StaffHandler {
	return &StaffHandler{
		Sessions:     sessions,
		Reservations: reservations,
		Members:      members,
		Ledger:       ledger,
		Engine:       engine,
		Clock:        clock,
	}
}

type createSessionReq struct {
	Name                string `json:"name"`
	ClassType           string `json:"class_type"`
	Room                string `json:"room"`
	StartsAt            string `json:"starts_at"` // RFC 3339
	EndsAt              string `json:"ends_at"`   // RFC 3339
	MaxCapacity         uint32 `json:"max_capacity"`
	WaitlistCapacity    uint32 `json:"waitlist_capacity"`
	CancelDeadlineHours uint32 `json:"cancel_deadline_hours"`
	LateFeeCents        uint32 `json:"late_fee_cents"`
	DropInPriceCents    uint32 `json:"drop_in_price_cents"`
}

// CreateSession schedules a new class session.
func (h *StaffHandler) CreateSession(c echo.Context) error {
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.MaxCapacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and max_capacity required"})
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC 3339"})
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be RFC 3339"})
	}
	if !endsAt.After(startsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}
	if !startsAt.After(h.Clock.Now()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be in the future"})
	}

	s := &model.ClassSession{
		Name:                req.Name,
		ClassType:           strings.TrimSpace(req.ClassType),
		Room:                strings.TrimSpace(req.Room),
		StartsAt:            startsAt.UTC(),
		EndsAt:              endsAt.UTC(),
		MaxCapacity:         req.MaxCapacity,
		WaitlistCapacity:    req.WaitlistCapacity,
		CancelDeadlineHours: req.CancelDeadlineHours,
		LateFeeCents:        req.LateFeeCents,
		DropInPriceCents:    req.DropInPriceCents,
		IsActive:            true,
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Sessions.Create(ctx, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	return c.JSON(http.StatusCreated, toSessionResp(s))
}

// DeactivateSession stops a session from accepting new bookings.  Existing
// reservations are untouched; the engine's cached occupancy is dropped so a
// later reactivation rehydrates from the database.
func (h *StaffHandler) DeactivateSession(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Sessions.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
	}
	h.Engine.Invalidate(id)
	return c.NoContent(http.StatusNoContent)
}

// Roster returns a session's open reservations with member contact details,
// confirmed seats first and the waitlist in queue order.
func (h *StaffHandler) Roster(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if _, err := h.Sessions.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	roster, err := h.Reservations.RosterBySession(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": id, "roster": roster})
}

// MarkNoShow flags a confirmed reservation whose member never checked in.
// Only valid once the session has ended; the consumed credit stays spent.
func (h *StaffHandler) MarkNoShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	res, err := h.Engine.MarkNoShow(ctx, id, h.Clock.Now())
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Complete closes out a checked-in reservation after the session ends.
func (h *StaffHandler) Complete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	res, err := h.Engine.Complete(ctx, id, h.Clock.Now())
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

type grantCreditsReq struct {
	Source    string `json:"source"` // MEMBERSHIP | PACKAGE
	Granted   uint32 `json:"granted"`
	Rollover  uint32 `json:"rollover"`
	ExpiresAt string `json:"expires_at"` // RFC 3339, empty = never
}

// GrantCredits opens a new ledger account for a member, e.g. a monthly
// membership allotment or a purchased class pack.
func (h *StaffHandler) GrantCredits(c echo.Context) error {
	memberID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid member id"})
	}
	var req grantCreditsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	source := strings.ToUpper(strings.TrimSpace(req.Source))
	if source != model.SourceMembership && source != model.SourcePackage {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "source must be MEMBERSHIP or PACKAGE"})
	}
	if req.Granted == 0 && req.Rollover == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to grant"})
	}
	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expires_at must be RFC 3339"})
		}
		if !t.After(h.Clock.Now()) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expires_at must be in the future"})
		}
		u := t.UTC()
		expiresAt = &u
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if _, err := h.Members.GetByID(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	acct := &model.LedgerAccount{
		MemberID:  memberID,
		Source:    source,
		Granted:   req.Granted,
		Rollover:  req.Rollover,
		ExpiresAt: expiresAt,
	}
	if err := h.Ledger.Create(ctx, acct); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "grant failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"account_id": acct.ID,
		"member_id":  acct.MemberID,
		"source":     acct.Source,
		"granted":    acct.Granted,
		"rollover":   acct.Rollover,
		"remaining":  acct.Remaining(),
		"expires_at": req.ExpiresAt,
	})
}
