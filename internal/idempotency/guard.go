// Package idempotency deduplicates mutating requests by a caller-supplied
// Idempotency-Key. The first request claims the key atomically (SETNX),
// executes once, and its response is stored and replayed verbatim to
// retries within the TTL. Requests without a key pass through untouched.
//
// Responses are cached whenever the status is < 500: successes and
// business errors alike, so a retry with the same key does not re-attempt
// a known-bad operation. 5xx outcomes clear the claim instead, so the
// caller's retry can succeed once infrastructure recovers. The cache is
// advisory; the ledgers stay authoritative.
package idempotency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
)

// Header carries the caller-supplied key.
const Header = "Idempotency-Key"

const (
	statePending = "PENDING"
	stateDone    = "DONE"
)

type record struct {
	State       string          `json:"state"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Guard is the middleware. TTL defaults to redisx.TTLIdempotency.
type Guard struct {
	Cache Cache
	TTL   time.Duration
}

func (g *Guard) ttl() time.Duration {
	if g.TTL > 0 {
		return g.TTL
	}
	return redisx.TTLIdempotency
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Middleware wraps a handler with the guard.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(Header)
		if !mutating(r.Method) || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		cacheKey := fmt.Sprintf(redisx.KeyIdempotency, r.Method, r.URL.Path, key)

		if b, ok, err := g.Cache.Get(ctx, cacheKey); err != nil {
			// cache down: execute anyway, the ledgers are authoritative
			log.Printf("idempotency get %s: %v", cacheKey, err)
			next.ServeHTTP(w, r)
			return
		} else if ok {
			g.answerFromRecord(w, b)
			return
		}

		claimed, err := g.Cache.SetNX(ctx, cacheKey,
			mustJSON(record{State: statePending}), redisx.TTLIdempotencyPending)
		if err != nil {
			log.Printf("idempotency claim %s: %v", cacheKey, err)
			next.ServeHTTP(w, r)
			return
		}
		if !claimed {
			// lost the race to a concurrent request with the same key
			b, ok, _ := g.Cache.Get(ctx, cacheKey)
			if ok {
				g.answerFromRecord(w, b)
				return
			}
			conflict(w)
			return
		}

		rec := &recorder{header: http.Header{}, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status < http.StatusInternalServerError {
			stored := record{
				State:       stateDone,
				Status:      rec.status,
				ContentType: rec.header.Get("Content-Type"),
			}
			if b := rec.body.Bytes(); len(b) > 0 {
				stored.Body = json.RawMessage(b)
			}
			if err := g.Cache.Set(ctx, cacheKey, mustJSON(stored), g.ttl()); err != nil {
				log.Printf("idempotency store %s: %v", cacheKey, err)
			}
		} else if err := g.Cache.Del(ctx, cacheKey); err != nil {
			log.Printf("idempotency clear %s: %v", cacheKey, err)
		}

		rec.flush(w)
	})
}

func (g *Guard) answerFromRecord(w http.ResponseWriter, b []byte) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil || rec.State != stateDone {
		// first request still executing
		conflict(w)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

func conflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"code":"DUPLICATE_REQUEST","error":"request with this idempotency key is already in flight"}`))
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// recorder buffers the downstream response so it can be stored before it
// is sent.
type recorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(b []byte) (int, error) { return r.body.Write(b) }

func (r *recorder) flush(w http.ResponseWriter) {
	for k, vs := range r.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
