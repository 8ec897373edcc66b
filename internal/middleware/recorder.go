package middleware

import (
	"bytes"
	"net/http"
)

// statusRecorder remembers the status and size of a response, and
// optionally a copy of its body.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	size        int64
	body        *bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter, keepBody bool) *statusRecorder {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if keepBody {
		rec.body = &bytes.Buffer{}
	}
	return rec
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += int64(n)
	if r.body != nil {
		r.body.Write(b[:n])
	}
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
