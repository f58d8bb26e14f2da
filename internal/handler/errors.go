package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitbook/internal/booking"
	"github.com/iliyamo/fitbook/internal/model"
)

const refreshMessage = "this booking has changed, please refresh"

// statusFor maps an engine error kind to an HTTP status.
func statusFor(kind booking.ErrorKind) int {
	switch kind {
	case booking.KindStaleProposal, booking.KindDeadlineAlreadyPassed, booking.KindConflict,
		booking.KindInvalidTransition, booking.KindInvalidState:
		return http.StatusConflict
	case booking.KindUnauthorizedActor:
		return http.StatusForbidden
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindInvalidInput:
		return http.StatusBadRequest
	case booking.KindNegotiationLimitExceeded:
		return http.StatusUnprocessableEntity
	case booking.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders an engine error. Errors that mean the caller acted on
// an outdated view get the refresh message; b, when set, is the booking as
// it is now (e.g. after an inline expiry).
func writeError(c echo.Context, err error, b *model.Booking) error {
	var be *booking.Error
	if !errors.As(err, &be) {
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	body := echo.Map{"error": be.Msg, "kind": be.Kind}
	if booking.NeedsRefresh(err) {
		body["error"] = refreshMessage
		body["detail"] = be.Msg
	}
	if be.Kind == booking.KindStoreUnavailable {
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		body["error"] = "bookings are temporarily unavailable"
		delete(body, "detail")
	}
	if b != nil {
		body["booking"] = b
	}
	return c.JSON(statusFor(be.Kind), body)
}
