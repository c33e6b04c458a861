// internal/collector/handler.go
package collector

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalnine/rowdelta/internal/logging"
	"github.com/signalnine/rowdelta/internal/protocol"
	"github.com/signalnine/rowdelta/internal/results"
)

// IngestHandler handles POST /ingest and POST /ingest/events requests from agents
type IngestHandler struct {
	db              *DB
	apiKey          string
	maxPayloadBytes int64
	seen            *lru.Cache[results.Key, struct{}]
	metrics         *Metrics
	log             logging.Logger
}

// NewIngestHandler creates a new ingest handler. cacheSize bounds the
// number of recent de-duplication keys kept in memory.
func NewIngestHandler(db *DB, apiKey string, maxPayloadBytes int64, cacheSize int, metrics *Metrics, logger logging.Logger) (*IngestHandler, error) {
	seen, err := lru.New[results.Key, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &IngestHandler{
		db:              db,
		apiKey:          apiKey,
		maxPayloadBytes: maxPayloadBytes,
		seen:            seen,
		metrics:         metrics,
		log:             logger,
	}, nil
}

// ServeHTTP ingests a single log item document
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	item, err := results.DecodeLogItem(body)
	if err != nil {
		h.rejectMalformed(w, "item", err)
		return
	}

	resp := &protocol.IngestResponse{}
	if err := h.store(item, body, resp); err != nil {
		h.log.Error("DB error", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	resp.Status = protocol.StatusStored
	if resp.Duplicates > 0 {
		resp.Status = protocol.StatusDuplicate
	}

	writeJSON(w, resp)
}

// Events returns the handler for newline-delimited event documents. Events
// are regrouped into log items before storing.
func (h *IngestHandler) Events() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}

		var events []results.Event
		sc := bufio.NewScanner(bytes.NewReader(body))
		sc.Buffer(make([]byte, 0, 64*1024), int(h.maxPayloadBytes)+1)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			e, err := results.DecodeEvent(line)
			if err != nil {
				h.rejectMalformed(w, "events", err)
				return
			}
			events = append(events, e)
		}
		if err := sc.Err(); err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}

		resp := &protocol.IngestResponse{Status: protocol.StatusStored}
		for _, item := range results.ItemsFromEvents(events) {
			if err := h.store(item, results.EncodeLogItem(item, results.Natural()), resp); err != nil {
				h.log.Error("DB error", "err", err)
				http.Error(w, "Internal error", http.StatusInternalServerError)
				return
			}
		}

		writeJSON(w, resp)
	})
}

func (h *IngestHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	// Check auth
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != h.apiKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	// Check content length
	if r.ContentLength > h.maxPayloadBytes {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return nil, false
	}

	// Read body with limit
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxPayloadBytes+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	if int64(len(body)) > h.maxPayloadBytes {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func (h *IngestHandler) rejectMalformed(w http.ResponseWriter, endpoint string, err error) {
	h.metrics.DecodeFailures.WithLabelValues(endpoint).Inc()
	h.log.Warn("Rejected document", "endpoint", endpoint, "err", err)
	if errors.Is(err, results.ErrMalformed) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "Invalid document", http.StatusBadRequest)
}

// store writes item unless its key was seen before and tallies the outcome
// into resp
func (h *IngestHandler) store(item results.LogItem, document []byte, resp *protocol.IngestResponse) error {
	key := item.Key()
	if h.seen.Contains(key) {
		h.duplicate(item, resp)
		return nil
	}

	id, inserted, err := h.db.InsertLogItem(item, document)
	if err != nil {
		return err
	}
	h.seen.Add(key, struct{}{})
	if !inserted {
		h.duplicate(item, resp)
		return nil
	}

	rows := len(item.Results.Added) + len(item.Results.Removed)
	h.metrics.Items.WithLabelValues(protocol.StatusStored).Inc()
	h.metrics.Rows.WithLabelValues(string(results.ActionAdded)).Add(float64(len(item.Results.Added)))
	h.metrics.Rows.WithLabelValues(string(results.ActionRemoved)).Add(float64(len(item.Results.Removed)))
	h.log.Debug("Stored item", "id", id, "identifier", item.Identifier, "query", item.Name,
		"epoch", item.Epoch, "counter", item.Counter, "rows", rows)

	resp.IDs = append(resp.IDs, id)
	resp.Stored++
	resp.Rows += rows
	return nil
}

func (h *IngestHandler) duplicate(item results.LogItem, resp *protocol.IngestResponse) {
	h.metrics.Items.WithLabelValues(protocol.StatusDuplicate).Inc()
	h.log.Info("Duplicate item", "identifier", item.Identifier, "query", item.Name,
		"epoch", item.Epoch, "counter", item.Counter)
	resp.Duplicates++
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
