// Package errmsg turns pipeline errors into a single display message.
package errmsg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/model"
)

// Fallback is returned when nothing better can be extracted.
const Fallback = "An unexpected error occurred"

// Message extracts a display message from err. It checks, in order, the
// payload's "error", "message" and "detail" strings, the first element of
// the array under the payload's first key, then the message of the
// *model.APIError in err's chain, or err's own message when there is none.
// It never panics and always returns a non-empty string.
func Message(err error) string {
	if err == nil {
		return Fallback
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr == nil || emptyAPIError(apiErr) {
			return Fallback
		}
		if msg := payloadMessage(apiErr); msg != "" {
			return msg
		}
		if msg := safeErrorString(apiErr); msg != "" {
			return msg
		}
		return Fallback
	}

	if msg := safeErrorString(err); msg != "" {
		return msg
	}
	return Fallback
}

// emptyAPIError reports whether apiErr carries nothing to show.
func emptyAPIError(apiErr *model.APIError) bool {
	return apiErr.StatusCode == 0 && apiErr.Err == nil &&
		apiErr.Method == "" && apiErr.URL == "" &&
		len(apiErr.Body) == 0 && apiErr.Payload == nil
}

func payloadMessage(apiErr *model.APIError) string {
	payload := apiErr.Payload
	if payload == nil && len(apiErr.Body) > 0 {
		_ = json.Unmarshal(apiErr.Body, &payload)
	}
	for _, field := range []string{"error", "message", "detail"} {
		if s, ok := payload[field].(string); ok && s != "" {
			return s
		}
	}
	return firstFieldError(apiErr.Body, payload)
}

// firstFieldError returns the first element of the array stored under the
// first key of the JSON object body, in document order.
func firstFieldError(body []byte, payload map[string]any) string {
	key, ok := firstKey(body)
	if !ok {
		return ""
	}
	items, ok := payload[key].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	switch first := items[0].(type) {
	case string:
		return first
	case nil:
		return ""
	default:
		data, err := json.Marshal(first)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func firstKey(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}

func safeErrorString(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = ""
		}
	}()
	return err.Error()
}

// Present logs the full error at error level and returns
// "Failed to <action>: <message>", followed by " (status N)" when the
// error carries an HTTP status.
func Present(ctx context.Context, logger *zap.Logger, action string, err error) string {
	msg := fmt.Sprintf("Failed to %s: %s", action, Message(err))
	status := model.StatusCode(err)
	if status > 0 {
		msg += fmt.Sprintf(" (status %d)", status)
	}

	fields := []zap.Field{
		zap.String("action", action),
		zap.Error(err),
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields,
			zap.Int("status", apiErr.StatusCode),
			zap.String("method", apiErr.Method),
			zap.String("url", apiErr.URL),
		)
		if apiErr.Payload != nil {
			fields = append(fields, zap.Any("body", observability.RedactBody(apiErr.Payload, nil)))
		} else if len(apiErr.Body) > 0 {
			fields = append(fields, zap.ByteString("body", apiErr.Body))
		}
	}
	observability.RequestLogger(ctx, logger).Error(msg, fields...)

	return msg
}

// Alerter shows a message to the user.
type Alerter interface {
	Alert(msg string)
}

// WriterAlerter writes each alert as a line to W.
type WriterAlerter struct {
	W io.Writer
}

// Alert writes msg followed by a newline.
func (a WriterAlerter) Alert(msg string) {
	_, _ = fmt.Fprintln(a.W, msg)
}

// Report presents err and hands the message to alerter.
func Report(ctx context.Context, logger *zap.Logger, alerter Alerter, action string, err error) string {
	msg := Present(ctx, logger, action, err)
	if alerter != nil {
		alerter.Alert(msg)
	}
	return msg
}
