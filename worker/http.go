package worker

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jonwraymond/offlineworker/bgsync"
	"github.com/jonwraymond/offlineworker/interaction"
	"github.com/jonwraymond/offlineworker/observe"
)

const maxPushBytes = 64 << 10

// ServeHTTP proxies a page request through Fetch. A rejected fetch, which
// only API requests produce once activated, becomes 502 Bad Gateway.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := r.Clone(ctx)
	req.RequestURI = ""
	req.URL.Scheme = w.origin.Scheme
	req.URL.Host = w.origin.Host
	req.Host = w.origin.Host

	resp, err := w.Fetch(ctx, req)
	if err != nil {
		w.log.Warn(ctx, "request failed", observe.F("url", req.URL.String()), observe.Err(err))
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	h := rw.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	rw.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(rw, resp.Body)
}

// ControlHandler serves the event endpoints the platform would otherwise
// deliver to a browser worker:
//
//	POST /_worker/push          push message body
//	POST /_worker/click         interaction.Click JSON
//	POST /_worker/sync/{tag}    fire a sync tag now
//	POST /_worker/sync/{tag}/register
//	POST /_worker/online        connectivity returned
//	POST /_worker/clients       {"url": "..."} registers an open page
//	GET  /_worker/history       notification log
func (w *Worker) ControlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_worker/push", w.handlePush)
	mux.HandleFunc("POST /_worker/click", w.handleClick)
	mux.HandleFunc("POST /_worker/sync/{tag}", w.handleSync)
	mux.HandleFunc("POST /_worker/sync/{tag}/register", w.handleRegisterSync)
	mux.HandleFunc("POST /_worker/online", w.handleOnline)
	mux.HandleFunc("POST /_worker/clients", w.handleRegisterClient)
	mux.HandleFunc("GET /_worker/history", w.handleHistory)
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

func (w *Worker) handlePush(rw http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxPushBytes))
	if err != nil {
		writeError(rw, http.StatusRequestEntityTooLarge, err)
		return
	}
	outcome, err := w.Push(r.Context(), data)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]string{"outcome": string(outcome)})
}

type clickResponse struct {
	URL      string `json:"url,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Reused   bool   `json:"reused"`
	Opened   bool   `json:"opened"`
	Effect   string `json:"effect_error,omitempty"`
}

func (w *Worker) handleClick(rw http.ResponseWriter, r *http.Request) {
	var c interaction.Click
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	res, err := w.Click(r.Context(), c)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	out := clickResponse{URL: res.URL, ClientID: res.ClientID, Reused: res.Reused, Opened: res.Opened}
	if res.EffectErr != nil {
		out.Effect = res.EffectErr.Error()
	}
	writeJSON(rw, http.StatusOK, out)
}

type syncResponse struct {
	Tag       string            `json:"tag"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func toSyncResponse(rep bgsync.Report) syncResponse {
	out := syncResponse{Tag: string(rep.Tag), Succeeded: rep.Succeeded}
	if len(rep.Failed) > 0 {
		out.Failed = make(map[string]string, len(rep.Failed))
		for path, err := range rep.Failed {
			out.Failed[path] = err.Error()
		}
	}
	return out
}

func (w *Worker) handleSync(rw http.ResponseWriter, r *http.Request) {
	rep, err := w.Sync(r.Context(), bgsync.Tag(r.PathValue("tag")))
	if errors.Is(err, bgsync.ErrUnknownTag) {
		writeError(rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, toSyncResponse(rep))
}

func (w *Worker) handleRegisterSync(rw http.ResponseWriter, r *http.Request) {
	if err := w.RegisterSync(bgsync.Tag(r.PathValue("tag"))); err != nil {
		writeError(rw, http.StatusNotFound, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Worker) handleOnline(rw http.ResponseWriter, r *http.Request) {
	reports := w.Online(r.Context())
	out := make([]syncResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toSyncResponse(rep))
	}
	writeJSON(rw, http.StatusOK, out)
}

func (w *Worker) handleRegisterClient(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(rw, http.StatusBadRequest, errors.New("worker: url is required"))
		return
	}
	writeJSON(rw, http.StatusCreated, w.clients.Register(body.URL))
}

func (w *Worker) handleHistory(rw http.ResponseWriter, r *http.Request) {
	records, err := w.History().List(r.Context())
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, records)
}
