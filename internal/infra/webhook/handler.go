package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"shift_sms_gateway/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Routes registered with the carriers.
const (
	StatusPath  = "/sms/status"
	InboundPath = "/sms/inbound"
)

const (
	headerValidationToken   = "Validation-Token"
	headerVerificationToken = "Verification-Token"
	headerTwilioSignature   = "X-Twilio-Signature"
)

// Gateway is the part of the provider gateway the handlers use.
type Gateway interface {
	ValidateWebhookSignature(signature, url string, params map[string]string) bool
	GenerateResponse(text string) string
}

// Processor applies verified webhook payloads.
type Processor interface {
	HandleStatus(ctx context.Context, payload []byte) error
	HandleInbound(ctx context.Context, payload []byte) (bool, error)
}

// Handler serves carrier webhooks. Every request is answered with 200 and the
// provider's acknowledgement body, since carriers retry anything else.
type Handler struct {
	gateway       Gateway
	processor     Processor
	publicBaseURL string
	logger        *logrus.Entry
}

func NewHandler(gateway Gateway, processor Processor, publicBaseURL string, logger *logrus.Entry) *Handler {
	return &Handler{
		gateway:       gateway,
		processor:     processor,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.WithField("component", "webhook"),
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.POST(StatusPath, h.status)
	e.POST(InboundPath, h.inbound)
}

func (h *Handler) status(c echo.Context) error {
	return h.serve(c, "status", func(ctx context.Context, log *logrus.Entry, body []byte) string {
		if err := h.processor.HandleStatus(ctx, body); err != nil {
			log.WithError(err).Warn("Failed to apply delivery status")
			return "error"
		}
		return "processed"
	})
}

func (h *Handler) inbound(c echo.Context) error {
	return h.serve(c, "inbound", func(ctx context.Context, log *logrus.Entry, body []byte) string {
		processed, err := h.processor.HandleInbound(ctx, body)
		if err != nil {
			// RingCentral pushes status changes of outbound messages to the same subscription.
			if statusErr := h.processor.HandleStatus(ctx, body); statusErr == nil {
				return "status_via_inbound"
			}
			log.WithError(err).Warn("Failed to process inbound SMS")
			return "error"
		}
		if !processed {
			return "ignored"
		}
		return "processed"
	})
}

type processFunc func(ctx context.Context, log *logrus.Entry, body []byte) string

func (h *Handler) serve(c echo.Context, kind string, process processFunc) error {
	req := c.Request()
	log := h.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	})

	// RingCentral confirms a new subscription by expecting its token echoed back.
	if token := req.Header.Get(headerValidationToken); token != "" {
		log.Info("Answering subscription validation request")
		metrics.RecordWebhook(kind, "validation")
		c.Response().Header().Set(headerValidationToken, token)
		return c.NoContent(http.StatusOK)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		log.WithError(err).Warn("Failed to read webhook body")
		metrics.RecordWebhook(kind, "error")
		return h.ack(c)
	}

	if !h.gateway.ValidateWebhookSignature(signatureFrom(req), h.requestURL(c), paramsFrom(req, body)) {
		log.Warn("Webhook signature rejected")
		metrics.RecordWebhook(kind, "rejected")
		return h.ack(c)
	}

	outcome := process(req.Context(), log, body)
	metrics.RecordWebhook(kind, outcome)
	return h.ack(c)
}

func (h *Handler) ack(c echo.Context) error {
	resp := h.gateway.GenerateResponse("")
	if strings.HasPrefix(resp, "<?xml") {
		return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(resp))
	}
	return c.String(http.StatusOK, resp)
}

func signatureFrom(req *http.Request) string {
	if sig := req.Header.Get(headerTwilioSignature); sig != "" {
		return sig
	}
	return req.Header.Get(headerVerificationToken)
}

// requestURL is the URL the carrier signed. Behind a proxy that is the public one.
func (h *Handler) requestURL(c echo.Context) string {
	uri := c.Request().URL.RequestURI()
	if h.publicBaseURL != "" {
		return h.publicBaseURL + uri
	}
	return c.Scheme() + "://" + c.Request().Host + uri
}

// paramsFrom returns form fields, or the top-level string fields of a JSON body.
func paramsFrom(req *http.Request, body []byte) map[string]string {
	params := map[string]string{}
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return params
		}
		for k, v := range form {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		return params
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return params
	}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			params[k] = s
		}
	}
	return params
}
