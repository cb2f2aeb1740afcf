package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := make(map[string]string)

	if err := s.store.Ping(ctx); err != nil {
		status["storage"] = "unhealthy"
		s.logger.Error("readiness check failed for storage", zap.Error(err))
	} else {
		status["storage"] = "healthy"
	}

	if err := s.ledger.Ping(ctx); err != nil {
		status["ledger"] = "unhealthy"
		s.logger.Error("readiness check failed for ledger", zap.Error(err))
	} else {
		status["ledger"] = "healthy"
	}

	if status["storage"] != "healthy" || status["ledger"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	s.respondWithJSON(w, http.StatusOK, status)
}

// handleLatestRun serves the most recent run report: the in-process
// one when a scheduled run has happened, otherwise the newest report
// artifact on disk.
func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	if rep := s.Latest(); rep != nil {
		s.respondWithJSON(w, http.StatusOK, rep)
		return
	}

	data, err := s.latestArtifact()
	if err != nil {
		s.respondWithError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// latestArtifact returns the newest run-*.json under the reports dir.
func (s *Server) latestArtifact() ([]byte, error) {
	entries, err := os.ReadDir(s.config.ReportsDir)
	if err != nil {
		return nil, err
	}

	var (
		newest    string
		newestMod time.Time
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "run-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = name, info.ModTime()
		}
	}
	if newest == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(filepath.Join(s.config.ReportsDir, newest))
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
