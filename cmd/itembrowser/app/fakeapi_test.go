package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/stacklok/itembrowser/internal/items"
)

const fakePageSize = 2

// fakeItemsAPI serves the items API from memory with offset cursors
type fakeItemsAPI struct {
	mu      sync.Mutex
	records []items.Record
	server  *httptest.Server
}

func newFakeItemsAPI(t *testing.T, names ...string) *fakeItemsAPI {
	t.Helper()
	api := &fakeItemsAPI{}
	for _, name := range names {
		api.records = append(api.records, items.Record{ID: uuid.New(), Name: name, Group: items.GroupPrimary})
	}
	api.server = httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeItemsAPI) URL() string {
	return a.server.URL
}

func (a *fakeItemsAPI) snapshot() []items.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]items.Record(nil), a.records...)
}

func (a *fakeItemsAPI) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, items.DefaultItemsPath)
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			a.list(w, r)
		case http.MethodPost:
			a.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := uuid.Parse(strings.TrimSuffix(rest, "/"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	idx := a.indexOf(id)
	if idx < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.records[idx])
	case http.MethodPatch:
		var in items.Input
		_ = json.NewDecoder(r.Body).Decode(&in)
		a.records[idx].Name, a.records[idx].Group = in.Name, in.Group
		writeJSON(w, http.StatusOK, a.records[idx])
	case http.MethodDelete:
		a.records = append(a.records[:idx], a.records[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *fakeItemsAPI) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var matched []items.Record
	for _, rec := range a.records {
		if s := q.Get("search"); s != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(s)) {
			continue
		}
		if g := q.Get("group"); g != "" && rec.Group != g {
			continue
		}
		matched = append(matched, rec)
	}

	offset, _ := strconv.Atoi(q.Get("cursor"))
	offset = min(max(offset, 0), len(matched))
	end := min(offset+fakePageSize, len(matched))

	link := func(off int) *string {
		lq := r.URL.Query()
		lq.Set("cursor", strconv.Itoa(off))
		s := a.server.URL + items.DefaultItemsPath + "?" + lq.Encode()
		return &s
	}

	body := map[string]any{"results": matched[offset:end], "next": nil, "previous": nil}
	if end < len(matched) {
		body["next"] = link(end)
	}
	if offset > 0 {
		body["previous"] = link(max(offset-fakePageSize, 0))
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *fakeItemsAPI) create(w http.ResponseWriter, r *http.Request) {
	var in items.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field is required."}})
		return
	}
	rec := items.Record{ID: uuid.New(), Name: in.Name, Group: in.Group}
	a.records = append([]items.Record{rec}, a.records...)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *fakeItemsAPI) indexOf(id uuid.UUID) int {
	for i, rec := range a.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
