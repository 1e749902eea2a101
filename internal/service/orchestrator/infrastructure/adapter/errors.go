package adapter

import (
	"encoding/json"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/pkg/response"

	"github.com/pkg/errors"
)

// translate 把下游的错误还原成带分类的错误。
// 下游返回了结构化的错误体时保留它的分类，否则一律视为下游不可用。
func translate(op, display string, err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		var body response.ErrorBody
		if jsonErr := json.Unmarshal(statusErr.Body, &body); jsonErr == nil && body.Error.Kind != "" {
			return body.AsError(op)
		}
	}
	return apperr.Wrap(apperr.KindDownstreamUnavailable, op, err, display+" unavailable")
}
