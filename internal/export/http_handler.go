package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/rollcall/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

// ServeHTTP answers GET ?format=csv|xlsx&congress=&session=&rollCall= with an attachment.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	rawFormat := strings.TrimSpace(query.Get("format"))
	if rawFormat == "" {
		rawFormat = string(FormatCSV)
	}
	format, err := ParseFormat(rawFormat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := repository.RowFilter{
		Congress: strings.TrimSpace(query.Get("congress")),
		Session:  strings.TrimSpace(query.Get("session")),
	}
	if raw := strings.TrimSpace(query.Get("rollCall")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err != nil || parsed <= 0 {
			http.Error(w, "rollCall must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.RollCallNumber = raw
	}

	// Buffer so a mid-export failure can still be reported as an error status.
	var buf bytes.Buffer
	if _, err := h.service.Export(r.Context(), &buf, format, filter); err != nil {
		http.Error(w, fmt.Sprintf("export rows: %v", err), http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("roll_call_votes.%s", format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
