package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the guard API. adminGuard wraps the operations
// that change limiter state on behalf of an operator.
func RegisterRoutes(api huma.API, h *GuardHandler, adminGuard func(huma.Context, func(huma.Context))) {
	huma.Register(api, huma.Operation{
		OperationID: "list-limiters",
		Method:      http.MethodGet,
		Path:        "/v1/limiters",
		Summary:     "List limiters",
		Tags:        []string{"Limiters"},
	}, h.List)

	// A denial is still a 200: the caller decides how to refuse its own client.
	huma.Register(api, huma.Operation{
		OperationID: "check-limit",
		Method:      http.MethodPost,
		Path:        "/v1/limiters/{name}/check",
		Summary:     "Check and count a request",
		Description: "Counts one request for the identifier and reports whether it is within the limit.",
		Tags:        []string{"Limiters"},
	}, h.Check)

	huma.Register(api, huma.Operation{
		OperationID: "record-result",
		Method:      http.MethodPost,
		Path:        "/v1/limiters/{name}/result",
		Summary:     "Report an operation outcome",
		Description: "Refunds the request when the limiter skips this outcome. Failures return a suggested retry delay.",
		Tags:        []string{"Limiters"},
	}, h.RecordResult)

	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/v1/limiters/{name}/status",
		Summary:     "Peek at a counter",
		Description: "Returns the current window without consuming quota.",
		Tags:        []string{"Limiters"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID:   "reset-limit",
		Method:        http.MethodDelete,
		Path:          "/v1/limiters/{name}/entries/{identifier}",
		Summary:       "Reset a counter",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
		Middlewares:   huma.Middlewares{adminGuard},
	}, h.Reset)

	huma.Register(api, huma.Operation{
		OperationID: "check-spam",
		Method:      http.MethodPost,
		Path:        "/v1/spam/{action}/check",
		Summary:     "Check an anti-spam action",
		Description: "Selects the limit tier from the account age and trust flag, then checks it.",
		Tags:        []string{"Anti-spam"},
	}, h.CheckSpam)
}
