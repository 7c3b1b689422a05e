package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/solacestudio/studio-reservation/internal/booking"
	"github.com/solacestudio/studio-reservation/internal/model"
	"github.com/solacestudio/studio-reservation/internal/repository"
)

// BookingHandler exposes the member-facing reservation endpoints.  All
// booking state transitions run through the reservation engine; this layer
// only does identity, ownership and payload work.
type BookingHandler struct {
	Engine       *booking.ReservationEngine
	Reservations *repository.ReservationRepo
	Ledger       *repository.LedgerRepo
	Clock        booking.Clock
}

func NewBookingHandler(engine *booking.ReservationEngine, reservations *repository.ReservationRepo, ledger *repository.LedgerRepo, clock booking.Clock) *BookingHandler {
	return &BookingHandler{Engine: engine, Reservations: reservations, Ledger: ledger, Clock: clock}
}

type bookReq struct {
	PaymentMethod string `json:"payment_method"`
	AccountID     uint64 `json:"account_id"` // optional; auto-picked for credit methods
}

type reservationResp struct {
	ID            uint64  `json:"id"`
	SessionID     uint64  `json:"session_id"`
	Status        string  `json:"status"`
	Position      uint32  `json:"position"`
	PaymentMethod string  `json:"payment_method"`
	AmountCents   uint32  `json:"amount_cents"`
	FeeCents      uint32  `json:"fee_cents"`
	RefundCents   uint32  `json:"refund_cents"`
	BookedAt      string  `json:"booked_at"`
	CancelledAt   *string `json:"cancelled_at,omitempty"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	resp := reservationResp{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Status:        r.Status,
		Position:      r.Position,
		PaymentMethod: r.PaymentMethod,
		AmountCents:   r.AmountCents,
		FeeCents:      r.FeeCents,
		RefundCents:   r.RefundCents,
		BookedAt:      r.BookedAt.UTC().Format(time.RFC3339),
	}
	if r.CancelledAt != nil {
		iso := r.CancelledAt.UTC().Format(time.RFC3339)
		resp.CancelledAt = &iso
	}
	return resp
}

// Book reserves a spot in a class session for the authenticated member.
// When the payment method consumes credits and no account id is given, the
// member's best usable account is picked automatically: membership
// allotments before packages, soonest-expiring first.
func (h *BookingHandler) Book(c echo.Context) error {
	memberID, ok := memberIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	now := h.Clock.Now()

	src := booking.CreditSource{Method: method, AccountID: req.AccountID}
	if (method == model.PayMembership || method == model.PayPackage) && req.AccountID == 0 {
		acct, err := h.Ledger.ActiveAccountForMember(ctx, memberID, now)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "no usable credits"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if acct.Source != method {
			return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "no usable credits for " + strings.ToLower(method)})
		}
		src.AccountID = acct.ID
	}

	res, err := h.Engine.Book(ctx, memberID, sessionID, src, now)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// Cancel cancels the authenticated member's reservation.  The engine
// decides on-time versus late treatment and runs waitlist promotion.
func (h *BookingHandler) Cancel(c echo.Context) error {
	memberID, ok := memberIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservationID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.requireOwnership(ctx, reservationID, memberID); err != nil {
		return bookingError(c, err)
	}
	res, err := h.Engine.Cancel(ctx, reservationID, h.Clock.Now())
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// CheckIn marks the member's confirmed reservation as checked in.  Allowed
// until the grace window after class start closes; repeating the call is a
// no-op.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	memberID, ok := memberIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservationID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.requireOwnership(ctx, reservationID, memberID); err != nil {
		return bookingError(c, err)
	}
	res, err := h.Engine.CheckIn(ctx, reservationID, h.Clock.Now())
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// ListMine returns all of the member's reservations with session details.
func (h *BookingHandler) ListMine(c echo.Context) error {
	memberID, ok := memberIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	details, err := h.Reservations.ListByMember(ctx, memberID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": details})
}

// Get returns one of the member's reservations with session details.
func (h *BookingHandler) Get(c echo.Context) error {
	memberID, ok := memberIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservationID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Reservations.GetDetailForMember(ctx, reservationID, memberID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReservationNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, repository.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *BookingHandler) requireOwnership(ctx context.Context, reservationID, memberID uint64) error {
	res, err := h.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return booking.ErrReservationNotFound
		}
		return err
	}
	if res.MemberID != memberID {
		return repository.ErrForbidden
	}
	return nil
}
