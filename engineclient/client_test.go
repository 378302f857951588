package engineclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/catalogue"
	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetry(fastRetry())}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func sampleDoc() *flowstore.FlowDocument {
	return &flowstore.FlowDocument{
		Name: "etl",
		Nodes: []flowstore.NodeDoc{
			{ID: "a", InstructionID: "read", X: 10, Y: 20, Params: map[string]any{"path": "in.csv"}},
			{ID: "b", InstructionID: "write", X: 200, Y: 20, Params: map[string]any{}},
		},
		Edges: []flowstore.EdgeDoc{{ID: "e1", Source: "a", Target: "b", SourcePort: "right", TargetPort: "left"}},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    []Option
		wantErr bool
	}{
		{name: "http url", url: "http://localhost:8000"},
		{name: "trailing slash", url: "https://engine.example.com/"},
		{name: "missing scheme", url: "localhost:8000", wantErr: true},
		{name: "ftp scheme", url: "ftp://engine", wantErr: true},
		{name: "no host", url: "http://", wantErr: true},
		{name: "bad timeout", url: "http://localhost", opts: []Option{WithTimeout(0)}, wantErr: true},
		{name: "bad rate", url: "http://localhost", opts: []Option{WithRateLimit(0, 1)}, wantErr: true},
		{name: "nil http client", url: "http://localhost", opts: []Option{WithHTTPClient(nil)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.url, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
		})
	}
}

func TestExecute_ResponseMapping(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		body        string
		wantValErr  bool
		wantIssues  int
		wantSuccess bool
		wantPending bool
		wantMessage string
		wantTime    float64
	}{
		{
			name:        "success envelope",
			code:        200,
			body:        `{"success":true,"data":{"result":[{"rows":3}],"execution_time":1.25},"message":"done"}`,
			wantSuccess: true,
			wantMessage: "done",
			wantTime:    1.25,
		},
		{
			name:       "refused before execution",
			code:       200,
			body:       `{"success":false,"data":null,"message":"flow can only have one start node"}`,
			wantValErr: true,
		},
		{
			name:       "refused with issue list",
			code:       200,
			body:       `{"success":false,"data":null,"message":"invalid flow","errors":[{"code":"isolated_node","message":"node c is isolated","node_id":"c"}]}`,
			wantValErr: true,
			wantIssues: 1,
		},
		{
			name:        "execution failure keeps engine message",
			code:        200,
			body:        `{"success":false,"data":{"result":null,"execution_time":0.4},"message":"column 'x' not found"}`,
			wantMessage: "column 'x' not found",
			wantTime:    0.4,
		},
		{
			name:        "accepted and still running",
			code:        200,
			body:        `{"success":true,"data":{"status":"running","flow_id":"srv-1"},"message":"started"}`,
			wantSuccess: true,
			wantPending: true,
			wantMessage: "started",
		},
		{
			name:        "bare result",
			code:        200,
			body:        `[{"node":"a","ok":true}]`,
			wantSuccess: true,
		},
		{
			name:       "http 400 detail",
			code:       400,
			body:       `{"detail":"node b references an unknown instruction"}`,
			wantValErr: true,
		},
		{
			name:       "http 422 detail list",
			code:       422,
			body:       `{"detail":[{"loc":["body","nodes"],"msg":"field required","type":"missing"}]}`,
			wantValErr: true,
			wantIssues: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/data-process/execute", r.URL.Path)
				writeJSON(w, tt.code, tt.body)
			}))

			res, err := c.Execute(context.Background(), sampleDoc())
			if tt.wantValErr {
				require.Error(t, err)
				var verr *flowengine.ValidationError
				require.True(t, stderrors.As(err, &verr), "got %T", err)
				assert.Len(t, verr.Issues, tt.wantIssues)
				assert.ErrorIs(t, err, errors.ErrServerValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantPending, res.Pending)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.InDelta(t, tt.wantTime, res.ExecutionTime, 1e-9)
		})
	}
}

func TestExecute_SendsCanonicalDocument(t *testing.T) {
	var got flowstore.FlowDocument
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 200, `{"success":true,"data":{"result":null,"execution_time":0},"message":"ok"}`)
	}))

	_, err := c.Execute(context.Background(), sampleDoc())
	require.NoError(t, err)
	assert.Equal(t, flowstore.SchemaVersion, got.SchemaVersion)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "in.csv", got.Nodes[0].Params["path"])
	require.Len(t, got.Edges, 1)
	assert.Equal(t, "right", got.Edges[0].SourcePort)
}

func TestExecute_PendingFallsBackToDocumentID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"success":true,"data":{"status":"running"},"message":"started"}`)
	}))
	doc := sampleDoc()
	doc.ID = "flow-9"

	res, err := c.Execute(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, "flow-9", res.FlowID)
}

func TestExecute_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, 503, `{"detail":"engine busy"}`)
	}))

	_, err := c.Execute(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, 502, `{"detail":"bad gateway"}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"message":"ok","data":{"flow_id":"f1","status":"completed","status_text":"done"}}`)
	}))

	report, err := c.Status(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, flowengine.RunCompleted, report.Status)
	assert.Equal(t, "done", report.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_DoesNotRetryInvalid(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, 404, `{"detail":"flow not found"}`)
	}))

	_, err := c.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFlowNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatus_ParsesEngineStates(t *testing.T) {
	tests := map[string]flowengine.RunStatus{
		"idle":       flowengine.RunIdle,
		"running":    flowengine.RunRunning,
		"completed":  flowengine.RunCompleted,
		"failed":     flowengine.RunFailed,
		"terminated": flowengine.RunTerminated,
	}
	for status, want := range tests {
		t.Run(status, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/data-process/execute/status/flow 1", r.URL.Path)
				writeJSON(w, 200, `{"success":true,"message":"ok","data":{"flow_id":"flow 1","status":"`+status+`"}}`)
			}))
			report, err := c.Status(context.Background(), "flow 1")
			require.NoError(t, err)
			assert.Equal(t, want, report.Status)
		})
	}
}

func TestTerminate(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data-process/execute/terminate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 200, `{"success":true,"message":"sent","data":{"flow_id":"f1","terminate_status":"requested"}}`)
	}))

	require.NoError(t, c.Terminate(context.Background(), "f1"))
	assert.Equal(t, map[string]string{"flow_id": "f1"}, body)

	err := c.Terminate(context.Background(), "")
	assert.True(t, errors.IsInvalid(err))
}

func TestTerminate_EnvelopeFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"success":false,"data":null,"message":"no such run"}`)
	}))
	err := c.Terminate(context.Background(), "f1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such run")
	assert.True(t, errors.IsInvalid(err))
}

// flowServer is an in-memory stand-in for the engine's flow endpoints.
type flowServer struct {
	mu    sync.Mutex
	flows map[string]json.RawMessage
	next  int
}

func (s *flowServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/data-process/save":
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, 400, `{"detail":"bad body"}`)
			return
		}
		id, _ := doc["id"].(string)
		if id == "" {
			s.next++
			id = "srv-" + string(rune('0'+s.next))
			doc["id"] = id
		}
		doc["created_at"] = "2024-05-01T10:00:00.123456"
		doc["updated_at"] = "2024-05-0" + string(rune('0'+len(s.flows)+1)) + " 10:00:00"
		raw, _ := json.Marshal(doc)
		s.flows[id] = raw
		writeJSON(w, 200, `{"id":"`+id+`","message":"saved","success":true}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/data-process/list":
		items := make([]json.RawMessage, 0, len(s.flows))
		for _, raw := range s.flows {
			items = append(items, raw)
		}
		data, _ := json.Marshal(items)
		writeJSON(w, 200, string(data))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/data-process/"):
		raw, ok := s.flows[strings.TrimPrefix(r.URL.Path, "/api/data-process/")]
		if !ok {
			writeJSON(w, 404, `{"detail":"flow not found"}`)
			return
		}
		writeJSON(w, 200, string(raw))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/data-process/flows/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/data-process/flows/")
		if _, ok := s.flows[id]; !ok {
			writeJSON(w, 404, `{"detail":"flow not found"}`)
			return
		}
		delete(s.flows, id)
		writeJSON(w, 200, `{"message":"deleted"}`)
	default:
		writeJSON(w, 405, `{"detail":"method not allowed"}`)
	}
}

func TestFlowStorage(t *testing.T) {
	srv := &flowServer{flows: map[string]json.RawMessage{}}
	c := newTestClient(t, srv)
	ctx := context.Background()

	doc := sampleDoc()
	id, err := c.Save(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)
	assert.Equal(t, id, doc.ID)

	loaded, err := c.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "etl", loaded.Name)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "in.csv", loaded.Nodes[0].Params["path"])
	assert.Equal(t, "e1", loaded.Edges[0].ID)

	second := sampleDoc()
	second.Name = "report"
	_, err = c.Save(ctx, second)
	require.NoError(t, err)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "report", list[0].Name, "most recently updated first")
	assert.Equal(t, 2, list[0].NodeCount)
	assert.Equal(t, 2024, list[0].CreatedAt.Year())

	require.NoError(t, c.Delete(ctx, id))
	err = c.Delete(ctx, id)
	assert.ErrorIs(t, err, errors.ErrFlowNotFound)
	_, err = c.Load(ctx, id)
	assert.ErrorIs(t, err, errors.ErrFlowNotFound)
}

func TestSave_RejectsInvalidDocument(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, `{"id":"x","success":true}`)
	}))

	doc := sampleDoc()
	doc.Edges = append(doc.Edges, flowstore.EdgeDoc{ID: "loop", Source: "a", Target: "a"})
	_, err := c.Save(context.Background(), doc)
	assert.ErrorIs(t, err, errors.ErrSelfLoop)
	assert.Equal(t, int32(0), calls.Load())
}

func TestLoad_MigratesLegacyFiles(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"id":"old","name":"legacy","nodes":[{"id":"a","instructionId":"read","x":0,"y":0,
			"params":{"input":[{"fileName":"a.csv","fileSize":12}]}}],"edges":null}`)
	}))

	doc, err := c.Load(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, flowstore.SchemaVersion, doc.SchemaVersion)
	input, ok := doc.Nodes[0].Params["input"].(map[string]any)
	require.True(t, ok, "legacy file array becomes a files object")
	assert.Len(t, input["files"], 1)
}

func TestInstructions(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "categorised envelope",
			body: `{"success":true,"message":"ok","data":{"categories":[
				{"id":"io","name":"IO","items":[{"id":"read","name":"Read","params":[]}]},
				{"id":"tx","name":"Transform","instructions":[{"id":"filter","name":"Filter","params":[]}]}]}}`,
			want: []string{"read", "filter"},
		},
		{
			name: "bare list",
			body: `[{"id":"read","name":"Read","category":"io","params":[]}]`,
			want: []string{"read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/instructions", r.URL.Path)
				writeJSON(w, 200, tt.body)
			}))
			items, err := c.Instructions(context.Background())
			require.NoError(t, err)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestCatalogueSource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"success":true,"message":"ok","data":{"categories":[
			{"id":"io","name":"IO","items":[{"id":"read","name":"Read","params":[{"name":"path","type":"file","required":true}]}]}]}}`)
	}))

	cat, err := catalogue.New(c.CatalogueSource())
	require.NoError(t, err)
	require.NoError(t, cat.Load(context.Background()))
	inst, ok := cat.Lookup("read")
	require.True(t, ok)
	assert.Equal(t, catalogue.TypeFile, inst.Params[0].Type)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data-process/execution-history/f1", r.URL.Path)
		writeJSON(w, 200, `{"success":true,"message":"ok","data":[{"status":"completed"},{"status":"failed"}]}`)
	}))
	entries, err := c.History(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "failed", entries[1]["status"])
}

func TestWithTLSConfig(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"success":true,"message":"ok","data":[]}`)
	}))
	t.Cleanup(srv.Close)

	t.Run("untrusted certificate", func(t *testing.T) {
		c, err := New(srv.URL, WithRetry(retry.Config{MaxAttempts: 1}))
		require.NoError(t, err)
		_, err = c.History(context.Background(), "f1")
		assert.Error(t, err)
	})

	t.Run("trusted via root pool", func(t *testing.T) {
		pool := x509.NewCertPool()
		pool.AddCert(srv.Certificate())
		c, err := New(srv.URL, WithTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), WithTimeout(time.Second))
		require.NoError(t, err)
		entries, err := c.History(context.Background(), "f1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithRetry(retry.Config{MaxAttempts: 1}))
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"success":true,"message":"ok","data":{"status":"idle"}}`)
	}), WithMetrics(registry))

	_, err := c.Status(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues("status", "2xx")))
}

func TestMetrics_CountsFailedAttempts(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var unavailable atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if unavailable.Load() {
			writeJSON(w, 503, `{"detail":"busy"}`)
			return
		}
		writeJSON(w, 404, `{"detail":"flow not found"}`)
	}), WithMetrics(registry))
	errs := registry.CoreMetrics().ErrorsTotal

	_, err := c.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("engineclient", "invalid")))

	unavailable.Store(true)
	_, err = c.Status(context.Background(), "f1")
	require.Error(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(errs.WithLabelValues("engineclient", "transient")),
		"every retried attempt is counted")
}
