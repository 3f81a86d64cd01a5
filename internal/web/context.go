package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/labingest/internal/core"
	"github.com/JonMunkholm/labingest/internal/logging"
	"github.com/JonMunkholm/labingest/internal/web/middleware"
)

// withRequestMetadata marks the job as started over HTTP and logs who asked.
func withRequestMetadata(r *http.Request, adapterID string) context.Context {
	logging.FromContext(r.Context()).Info("job requested",
		"adapter", adapterID,
		"ip", middleware.ClientIP(r),
		"user_agent", r.UserAgent(),
	)
	return core.ContextWithTrigger(r.Context(), core.TriggerHTTP)
}
