package nerservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillchecker/medlabel/internal/domain/medication"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/prometheus"
	"github.com/pillchecker/medlabel/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []Option{WithBackoff(20*time.Millisecond, 80*time.Millisecond)}
	c, err := NewClient(server.URL, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func entitiesJSON() string {
	return `{"entities": [
		{"text": "Ibuprofen", "label": "CHEMICAL", "score": 0.95,
		 "cui": "C0020740", "canonical_name": "Ibuprofen",
		 "aliases": ["Advil", "Motrin"], "definition": "An NSAID."},
		{"text": "pain", "label": "DISEASE", "score": 0.81,
		 "cui": "C0030193", "canonical_name": "Pain"},
		{"text": "tablet", "label": "DOSAGE_FORM", "score": 0.5}
	]}`
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))

	_, err = NewClient("ftp://ner.local")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))

	c, err := NewClient("http://ner.local/")
	require.NoError(t, err)
	assert.Equal(t, "http://ner.local", c.baseURL)
}

func TestExtractEntities_Success(t *testing.T) {
	var gotBody extractRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract_entities", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(entitiesJSON()))
	})

	entities, err := c.ExtractEntities(context.Background(), "Ibuprofen for pain")
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen for pain", gotBody.Text)

	require.Len(t, entities, 3)
	assert.Equal(t, medication.RawEntity{
		Text:            "Ibuprofen",
		Label:           medication.LabelChemical,
		Score:           0.95,
		KnowledgeBaseID: "C0020740",
		CanonicalName:   "Ibuprofen",
		Aliases:         []string{"Advil", "Motrin"},
		Definition:      "An NSAID.",
	}, entities[0])
	assert.Equal(t, medication.LabelDisease, entities[1].Label)
	// Labels outside the supported set collapse to OTHER.
	assert.Equal(t, medication.LabelOther, entities[2].Label)
}

func TestExtractEntities_EmptyTextSkipsNetwork(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"entities": []}`))
	})

	for _, text := range []string{"", "   ", "\t\n "} {
		entities, err := c.ExtractEntities(context.Background(), text)
		require.NoError(t, err)
		assert.Empty(t, entities)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestExtractEntities_RetriesTransientThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n <= 2 {
			http.Error(w, "downstream overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(entitiesJSON()))
	})

	entities, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.NoError(t, err)
	assert.Len(t, entities, 3)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	// The second attempt is issued no earlier than the first backoff delay;
	// jitter only ever lengthens the wait.
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestExtractEntities_CountsRetries(t *testing.T) {
	m := prometheus.NewPipelineMetrics("testns")
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			http.Error(w, "downstream overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(entitiesJSON()))
	}, WithMetrics(m))

	_, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var retries float64
	for _, fam := range families {
		if fam.GetName() == "testns_ner_retries_total" {
			retries = fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, retries)
}

func TestExtractEntities_ExhaustsRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNERUnavailable))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestExtractEntities_RejectedFailsFast(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	})

	_, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNERRejected))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestExtractEntities_AttemptTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"entities": []}`))
	}, WithAttemptTimeout(25*time.Millisecond), WithMaxAttempts(1))

	_, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNERTimeout))
}

func TestExtractEntities_CancellationStopsRetries(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}, WithBackoff(5*time.Second, 10*time.Second))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.ExtractEntities(ctx, "Ibuprofen")
	require.Error(t, err)
	// Cancelled during the first backoff: exactly one attempt, no 5s wait.
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), time.Second)
}

func TestExtractEntities_BadResponseBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.ExtractEntities(context.Background(), "Ibuprofen")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNERBadResponse))
}

func TestHealth(t *testing.T) {
	healthy := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if healthy {
			w.Write([]byte(`{"status": "ok"}`))
			return
		}
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	assert.NoError(t, c.Health(context.Background()))

	healthy = false
	err := c.Health(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeNERUnavailable))
}

func TestFindHelpers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(entitiesJSON()))
	})

	chems, err := c.FindChemicals(context.Background(), "Ibuprofen for pain")
	require.NoError(t, err)
	require.Len(t, chems, 1)
	assert.Equal(t, "Ibuprofen", chems[0].Text)

	diseases, err := c.FindDiseases(context.Background(), "Ibuprofen for pain")
	require.NoError(t, err)
	require.Len(t, diseases, 1)
	assert.Equal(t, "pain", diseases[0].Text)

	names, err := c.FindActiveIngredients(context.Background(), "Ibuprofen for pain")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ibuprofen"}, names)
}

func TestBackoffDelay_CapAndOrdering(t *testing.T) {
	c, err := NewClient("http://ner.local", WithBackoff(2*time.Second, 10*time.Second))
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		d := c.backoffDelay(i)
		base := 2 * time.Second * time.Duration(1<<uint(i-1))
		if base > 10*time.Second {
			base = 10 * time.Second
		}
		assert.GreaterOrEqual(t, d, base, "retry %d", i)
		assert.LessOrEqual(t, d, base+base/4+time.Nanosecond, "retry %d", i)
	}
}
