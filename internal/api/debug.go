// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

// handleDebug dumps the live session and directory state. The route is
// only registered when the environment label is development.
func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.DebugState()); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode debug state")
	}
}
