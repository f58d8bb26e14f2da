package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitbook/internal/booking"
	"github.com/iliyamo/fitbook/internal/middleware"
	"github.com/iliyamo/fitbook/internal/model"
)

// BookingHandler exposes the booking engine over HTTP. All methods assume
// JWTAuth has run; the engine itself decides whether the caller is a party
// to the booking.
type BookingHandler struct {
	Engine *booking.Engine
}

// NewBookingHandler constructs a BookingHandler. The engine must be non-nil.
func NewBookingHandler(engine *booking.Engine) *BookingHandler {
	if engine == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine}
}

type createBookingRequest struct {
	ProviderID         string `json:"provider_id" validate:"required"`
	Kind               string `json:"kind" validate:"required,oneof=class program private"`
	Title              string `json:"title" validate:"max=200"`
	Date               string `json:"date" validate:"required,datetime=2006-01-02"`
	Time               string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes    int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
	VenueID            string `json:"venue_id" validate:"required"`
	PriceCents         int64  `json:"price_cents" validate:"min=0"`
	Currency           string `json:"currency" validate:"required,len=3"`
	PaymentMethod      string `json:"payment_method" validate:"omitempty,oneof=card pay_at_venue"`
	CancellationPolicy string `json:"cancellation_policy" validate:"omitempty,oneof=flexible moderate strict"`
	Draft              bool   `json:"draft"`
}

type changesBody struct {
	Date            *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            *string `json:"time" validate:"omitempty,datetime=15:04"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	VenueID         *string `json:"venue_id" validate:"omitempty,min=1"`
	PriceCents      *int64  `json:"price_cents" validate:"omitempty,min=0"`
}

func (b changesBody) model() model.Changes {
	return model.Changes{Date: b.Date, Time: b.Time, DurationMinutes: b.DurationMinutes, VenueID: b.VenueID, PriceCents: b.PriceCents}
}

type proposeRequest struct {
	Changes changesBody `json:"changes"`
	Message string      `json:"message" validate:"max=1000"`
}

type respondRequest struct {
	Action       string      `json:"action" validate:"required,oneof=accept reject counter keep_original"`
	Message      string      `json:"message" validate:"max=1000"`
	Changes      changesBody `json:"changes"`
	KeepOriginal bool        `json:"keep_original"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type attendanceRequest struct {
	Attended *bool `json:"attended" validate:"required"`
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=card pay_at_venue"`
}

type cardPaymentRequest struct {
	Token string `json:"token" validate:"required"`
}

type venuePaymentRequest struct {
	Code string `json:"code" validate:"required"`
}

// result renders the outcome of a booking mutation.
func result(c echo.Context, status int, b *model.Booking, err error) error {
	if err != nil {
		return writeError(c, err, b)
	}
	return c.JSON(status, b)
}

// Create handles POST /v1/bookings. The caller becomes the requester.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.CreateBooking(c.Request().Context(), booking.CreateRequest{
		RequesterID: middleware.ActorID(c),
		ProviderID:  body.ProviderID,
		Kind:        model.Kind(body.Kind),
		Title:       body.Title,
		Terms: model.Terms{
			Date:            body.Date,
			Time:            body.Time,
			DurationMinutes: body.DurationMinutes,
			VenueID:         body.VenueID,
			PriceCents:      body.PriceCents,
			Currency:        body.Currency,
		},
		PaymentMethod:      model.PaymentMethod(body.PaymentMethod),
		CancellationPolicy: model.CancellationPolicy(body.CancellationPolicy),
		Draft:              body.Draft,
	})
	return result(c, http.StatusCreated, b, err)
}

// Submit handles POST /v1/bookings/:id/submit.
func (h *BookingHandler) Submit(c echo.Context) error {
	b, err := h.Engine.SubmitBooking(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	return result(c, http.StatusOK, b, err)
}

// Accept handles POST /v1/bookings/:id/accept.
func (h *BookingHandler) Accept(c echo.Context) error {
	b, err := h.Engine.AcceptBooking(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	return result(c, http.StatusOK, b, err)
}

// Reject handles POST /v1/bookings/:id/reject.
func (h *BookingHandler) Reject(c echo.Context) error {
	var body reasonRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.RejectBooking(c.Request().Context(), c.Param("id"), middleware.ActorID(c), body.Reason)
	return result(c, http.StatusOK, b, err)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var body reasonRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.CancelBooking(c.Request().Context(), c.Param("id"), middleware.ActorID(c), body.Reason)
	return result(c, http.StatusOK, b, err)
}

// Attendance handles POST /v1/bookings/:id/attendance.
func (h *BookingHandler) Attendance(c echo.Context) error {
	var body attendanceRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.MarkAttendance(c.Request().Context(), c.Param("id"), middleware.ActorID(c), *body.Attended)
	return result(c, http.StatusOK, b, err)
}

// PaymentMethod handles PUT /v1/bookings/:id/payment-method.
func (h *BookingHandler) PaymentMethod(c echo.Context) error {
	var body paymentMethodRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.SelectPaymentMethod(c.Request().Context(), c.Param("id"), middleware.ActorID(c), model.PaymentMethod(body.Method))
	return result(c, http.StatusOK, b, err)
}

// PayByCard handles POST /v1/bookings/:id/payments/card. A declined card
// answers 402 with the booking so the client can show the failure; a charge
// without an outcome answers 502 and should be retried.
func (h *BookingHandler) PayByCard(c echo.Context) error {
	var body cardPaymentRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.PayByCard(c.Request().Context(), c.Param("id"), middleware.ActorID(c), body.Token)
	if err != nil {
		return writeError(c, err, b)
	}
	switch b.PaymentStatus {
	case model.PaymentFailed:
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment failed", "booking": b})
	case model.PaymentProcessing:
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable, please retry", "booking": b})
	}
	return c.JSON(http.StatusOK, b)
}

// ConfirmVenuePayment handles POST /v1/bookings/:id/payments/venue.
func (h *BookingHandler) ConfirmVenuePayment(c echo.Context) error {
	var body venuePaymentRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.ConfirmVenuePayment(c.Request().Context(), c.Param("id"), middleware.ActorID(c), body.Code)
	return result(c, http.StatusOK, b, err)
}

// Propose handles POST /v1/bookings/:id/proposals.
func (h *BookingHandler) Propose(c echo.Context) error {
	var body proposeRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	p, err := h.Engine.Propose(c.Request().Context(), c.Param("id"), middleware.ActorID(c), booking.ProposeRequest{
		Changes: body.Changes.model(),
		Message: body.Message,
	})
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, p)
}

// Respond handles POST /v1/proposals/:id/respond.
func (h *BookingHandler) Respond(c echo.Context) error {
	var body respondRequest
	if msg, ok := bindValid(c, &body); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	b, err := h.Engine.RespondToProposal(c.Request().Context(), c.Param("id"), middleware.ActorID(c), booking.RespondRequest{
		Action:       booking.Action(body.Action),
		Message:      body.Message,
		Changes:      body.Changes.model(),
		KeepOriginal: body.KeepOriginal,
	})
	return result(c, http.StatusOK, b, err)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.Engine.GetBooking(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	return result(c, http.StatusOK, b, err)
}

// List handles GET /v1/bookings?status=.
func (h *BookingHandler) List(c echo.Context) error {
	bs, err := h.Engine.ListBookings(c.Request().Context(), middleware.ActorID(c), model.Status(c.QueryParam("status")))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs})
}

// Proposals handles GET /v1/bookings/:id/proposals.
func (h *BookingHandler) Proposals(c echo.Context) error {
	ps, err := h.Engine.ListProposals(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"proposals": ps})
}

// History handles GET /v1/bookings/:id/history.
func (h *BookingHandler) History(c echo.Context) error {
	hs, err := h.Engine.History(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"history": hs})
}

// Reminders handles GET /v1/bookings/:id/reminders.
func (h *BookingHandler) Reminders(c echo.Context) error {
	rs, err := h.Engine.Reminders(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"reminders": rs})
}

// Policies handles GET /v1/booking-policies.
func (h *BookingHandler) Policies(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Engine.Policy().Describe())
}
