package server

import (
	"encoding/json"
	"net/http"

	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := s.st.ListJobs(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if jobs == nil {
			jobs = []store.Job{}
		}
		writeJSON(w, jobs)
	case http.MethodPost:
		var j store.Job
		if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if j.URL == "" {
			http.Error(w, "url required", http.StatusBadRequest)
			return
		}
		if err := s.st.InsertJob(r.Context(), &j); err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": j.ID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
