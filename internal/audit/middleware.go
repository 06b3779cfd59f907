package audit

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"audittrail/pkg/requestcontext"
)

// captureLimit bounds how much of each body is buffered for derivation.
// Larger bodies keep an accurate byte count but only a prefix of the data.
const captureLimit = 64 << 10

// Middleware establishes the audit RequestContext around each dispatched
// request and invokes the best-effort deriver after the handler finished.
// This is the only place the deriver is called from.
type Middleware struct {
	deriver *Deriver
	logger  *slog.Logger
}

// NewMiddleware creates the dispatch-boundary audit middleware.
func NewMiddleware(deriver *Deriver, logger *slog.Logger) *Middleware {
	return &Middleware{deriver: deriver, logger: logger}
}

// Establish creates the request's audit scope, captures request/response
// bodies and response status, runs the handler, and finally hands the
// outcome to the deriver. It must run after the request-id, metadata and
// auth middlewares so the scope sees correlation id, client metadata and the
// caller identity.
func (m *Middleware) Establish(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rc := &RequestContext{
			CorrelationID: requestcontext.RequestID(ctx),
			PackName:      packFromPath(r.URL.Path),
			Method:        r.Method,
			Path:          r.URL.Path,
			ActorID:       requestcontext.SubjectID(ctx),
			ActorName:     requestcontext.Email(ctx),
			SessionID:     requestcontext.SessionID(ctx),
			IPAddress:     requestcontext.ClientIP(ctx),
			UserAgent:     requestcontext.UserAgent(ctx),
		}
		if rc.ActorID != "" {
			rc.ActorType = ActorUser
		}
		ctx = WithRequestContext(ctx, rc)

		reqBody := newCaptureBuffer(captureLimit)
		if r.Body != nil {
			r.Body = teeBody{Reader: io.TeeReader(r.Body, reqBody), closer: r.Body}
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK, body: newCaptureBuffer(captureLimit)}

		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		duration := time.Since(start)

		m.deriver.DeriveAndWrite(ctx, RequestOutcome{
			Status:       rec.status,
			Duration:     duration,
			RequestBody:  reqBody.captured(),
			ResponseBody: rec.body.captured(),
		})
	})
}

// packFromPath returns the first path segment after the API namespace; it
// identifies the pack (module) the request targets.
func packFromPath(path string) string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) > 0 && segments[0] == apiNamespace {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// captureBuffer keeps a bounded prefix of everything written to it while
// counting the full size.
type captureBuffer struct {
	limit int
	data  []byte
	size  int
}

func newCaptureBuffer(limit int) *captureBuffer {
	return &captureBuffer{limit: limit}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.size += n
	if room := b.limit - len(b.data); room > 0 {
		if n > room {
			p = p[:room]
		}
		b.data = append(b.data, p...)
	}
	return n, nil
}

func (b *captureBuffer) captured() CapturedBody {
	return CapturedBody{Data: b.data, Size: b.size}
}

// teeBody routes reads through the capture buffer while preserving the
// original body's Close.
type teeBody struct {
	io.Reader
	closer io.Closer
}

func (t teeBody) Close() error {
	return t.closer.Close()
}

// recordingWriter captures the response status and a bounded copy of the
// response body for derivation.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        *captureBuffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(p) //nolint:errcheck // capture buffer cannot fail
	return w.ResponseWriter.Write(p)
}

// Flush lets streaming handlers keep working through the recorder.
func (w *recordingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
