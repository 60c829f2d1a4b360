package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zianansar/proposal-writer-sub001/internal/archive"
	"github.com/zianansar/proposal-writer-sub001/internal/backup"
	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
)

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func tooMany(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}

// writeError maps subsystem failures onto user-presentable responses.
// The wrong-passphrase/corrupt-archive ambiguity is preserved verbatim;
// no cryptographic detail leaks past this point.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crypto.ErrPassphraseTooShort):
		writeJSONStatus(w, http.StatusBadRequest, errBody("passphrase must be at least 12 characters"))
	case errors.Is(err, archive.ErrDecryptionFailed):
		writeJSONStatus(w, http.StatusBadRequest, errBody("wrong passphrase or corrupted archive"))
	case errors.Is(err, archive.ErrMalformedArchive), errors.Is(err, archive.ErrUnsupportedFormat):
		writeJSONStatus(w, http.StatusBadRequest, errBody("this file is not a readable archive"))
	case errors.Is(err, backup.ErrNewerArchive):
		writeJSONStatus(w, http.StatusConflict, errBody("this archive needs a newer version of the application; upgrade required"))
	case errors.Is(err, backup.ErrImportApplyFailed):
		writeJSONStatus(w, http.StatusInternalServerError, errBody("import failed and was rolled back; your data is unchanged"))
	default:
		writeJSONStatus(w, http.StatusInternalServerError, errBody(err.Error()))
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
