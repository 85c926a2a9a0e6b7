package vision

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
)

// classify maps a raw error from the model provider onto a stable,
// six-code table.
func classify(err error) *apperr.Error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return apperr.New(apperr.KindConfigurationFault, apperr.CodeAuthentication, err)
		case 403:
			return apperr.New(apperr.KindConfigurationFault, apperr.CodePermissionDenied, err)
		case 429:
			return apperr.New(apperr.KindTransientUpstream, apperr.CodeQuotaExhausted, err)
		case 500, 502, 503, 504:
			return apperr.New(apperr.KindTransientUpstream, apperr.CodeQuotaExhausted, err)
		default:
			return apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTransientUpstream, apperr.CodeDeadlineExceeded, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return apperr.New(apperr.KindTransientUpstream, apperr.CodeQuotaExhausted, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return apperr.New(apperr.KindTransientUpstream, apperr.CodeDeadlineExceeded, err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return apperr.New(apperr.KindTransientUpstream, apperr.CodeNetwork, err)
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return apperr.New(apperr.KindConfigurationFault, apperr.CodeAuthentication, err)
	default:
		return apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, err)
	}
}
