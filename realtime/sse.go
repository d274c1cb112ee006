package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/r3elabs/logwatch/infrastructure/httputil"
	"github.com/r3elabs/logwatch/recordmodel"
)

// sseSink writes Server-Sent Events frames to one HTTP response, flushing
// after every write (§6: "event stream transport (SSE-style)"). Grounded on
// the pack's SSE connection pattern of one writer per client guarded by a
// mutex, closed when the request context is cancelled.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err != nil {
		payload, _ := json.Marshal(err.Error())
		fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", payload)
		s.flusher.Flush()
	}
}

// LogSearcher runs C3's best-effort initial snapshot search for a new log
// subscription.
type LogSearcher interface {
	Search(query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error)
}

// SubscribeLogsHandler returns an http.HandlerFunc for the real-time
// log-subscription endpoint (§6 "Real-time streams"). The snapshot search
// is best-effort: a failure still opens the stream with an empty
// initialData event (§4.10).
func (r *Registry) SubscribeLogsHandler(searcher LogSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		query := q.Get("query")
		isRegex := q.Get("isRegex") == "true"
		startTime, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		endTime, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)

		sink, err := newSSESink(w)
		if err != nil {
			httputil.WriteErrorResponse(w, req, http.StatusInternalServerError, "SVC_5003", err.Error(), nil)
			return
		}

		var snapshot []*recordmodel.LogRecord
		if searcher != nil {
			snapshot, _ = searcher.Search(query, isRegex, startTime, endTime)
		}

		handle := r.SubscribeLogs(query, isRegex, startTime, endTime, sink, snapshot)
		defer r.Unsubscribe(handle.ID)

		<-req.Context().Done()
	}
}

// SubscribeWidgetHandler returns an http.HandlerFunc for the real-time
// widget-subscription endpoint.
func (r *Registry) SubscribeWidgetHandler(widgets WidgetSource) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		dashboardID := q.Get("dashboardId")
		widgetID := q.Get("widgetId")

		sink, err := newSSESink(w)
		if err != nil {
			httputil.WriteErrorResponse(w, req, http.StatusInternalServerError, "SVC_5003", err.Error(), nil)
			return
		}

		var initial interface{}
		if widgets != nil {
			initial, _ = widgets.WidgetData(dashboardID, widgetID)
		}

		handle := r.SubscribeWidget(dashboardID, widgetID, sink, initial)
		defer r.Unsubscribe(handle.ID)

		<-req.Context().Done()
	}
}
