// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/dataapi/internal/platform/respond"
)

// HealthDependencies names the checks [NewHealthHandlers] runs for
// readiness; a nil check is skipped, so a deployment with no configured
// cache, say, doesn't fail readiness over it.
type HealthDependencies struct {
	CheckMetadata func() error
	CheckCache    func() error
}

// NewHealthHandlers builds the liveness and readiness probes for container
// orchestration: liveness always succeeds once the process can route a
// request at all, readiness additionally checks that every configured
// dependency is reachable.
func NewHealthHandlers(deps HealthDependencies, log *slog.Logger) (liveness, readiness http.HandlerFunc) {
	liveness = func(w http.ResponseWriter, r *http.Request) {
		respond.OK(w, map[string]string{"status": "alive"})
	}

	readiness = func(w http.ResponseWriter, r *http.Request) {
		checks := []struct {
			name string
			fn   func() error
		}{
			{"metadata", deps.CheckMetadata},
			{"cache", deps.CheckCache},
		}

		for _, c := range checks {
			if c.fn == nil {
				continue
			}
			if err := c.fn(); err != nil {
				log.WarnContext(r.Context(), "readiness_check_failed", slog.String("dependency", c.name), slog.Any("error", err))
				http.Error(w, "not ready: "+c.name, http.StatusServiceUnavailable)
				return
			}
		}
		respond.OK(w, map[string]string{"status": "ready"})
	}
	return liveness, readiness
}
