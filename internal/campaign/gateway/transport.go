package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"time"

	"campaign-client/internal/common/errors"
	httpclient "campaign-client/internal/common/http"
	"campaign-client/internal/common/metrics"
	"campaign-client/internal/common/observability"
	"campaign-client/internal/common/validation"

	"go.opentelemetry.io/otel/codes"
)

// restTransport posts multipart forms to the backend and decodes validated
// JSON responses.
type restTransport struct {
	config *Config
	client *httpclient.Client
	obs    *observability.Observability
}

func (t *restTransport) post(ctx context.Context, op string, form *httpclient.Form, schema *validation.Schema, out interface{}) (err error) {
	ctx, span := t.obs.StartSpan(ctx, "gateway."+op, map[string]string{"operation": op})
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = string(errors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		metrics.GatewayRequests.WithLabelValues(op, status).Inc()
		metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}()

	resp, err := t.client.PostMultipart(ctx, t.config.endpoint(op), form)
	if err != nil {
		if isTimeout(err) {
			return errors.NewTransportTimeoutError(op)
		}
		return errors.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxResponseBytes))
	if err != nil {
		return errors.NewTransportError(op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.NewHTTPStatusError(op, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}

	if schema != nil {
		if result := schema.Validate(body); !result.Valid {
			return errors.NewResponseInvalidError(op, result.Summary())
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewResponseInvalidError(op, err.Error())
	}
	return nil
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
