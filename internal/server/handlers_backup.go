package server

import (
	"encoding/json"
	"net/http"

	"github.com/zianansar/proposal-writer-sub001/internal/backup"
)

type passphraseReq struct {
	Path       string `json:"path,omitempty"`
	Passphrase string `json:"passphrase"`
	Mode       string `json:"mode,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req passphraseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	path, err := s.engine.ExportArchive(r.Context(), req.Passphrase)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"path": path})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	meta, err := s.engine.PreviewArchive(path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, meta)
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlPassphrase.allow(clientKey(r)) {
		tooMany(w, 60)
		return
	}
	var req passphraseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	res, err := s.engine.DecryptArchive(r.Context(), req.Path, req.Passphrase)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlPassphrase.allow(clientKey(r)) {
		tooMany(w, 60)
		return
	}
	var req passphraseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	var mode backup.ImportMode
	switch req.Mode {
	case "replace_all":
		mode = backup.ReplaceAll
	case "merge_skip_duplicates":
		mode = backup.MergeSkipDuplicates
	default:
		http.Error(w, "mode must be replace_all or merge_skip_duplicates", http.StatusBadRequest)
		return
	}

	// Progress streams on ImportProgressChannel while this request
	// runs; the summary comes back on the request itself.
	summary, err := s.engine.ExecuteImport(r.Context(), req.Path, req.Passphrase, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"summary": summary,
		"channel": ImportProgressChannel,
	})
}
