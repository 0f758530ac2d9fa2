// ABOUTME: Generic CRUD routes for owned entity collections
// ABOUTME: Every operation runs through the ownership-scoped store variants

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ikailo/agentry/internal/auth"
	"github.com/ikailo/agentry/internal/entity"
	"github.com/ikailo/agentry/internal/store"
)

// ownedRecord is the constraint for API-exposed entity types.
type ownedRecord interface {
	entity.Record
	entity.Owned
}

// registerResource installs the collection and item routes for one owned
// entity type at /api/<path> and /api/<path>/{id}.
func registerResource[T ownedRecord](mux *http.ServeMux, path string, st *store.Store[T], s *Server) {
	collection := "/api/" + path
	item := collection + "/"

	mux.HandleFunc(collection, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listResource(w, r, st, s)
		case http.MethodPost:
			createResource(w, r, st, s)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(item, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, item)
		if id == "" || strings.Contains(id, "/") {
			s.sendJSONError(w, http.StatusNotFound, "not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			getResource(w, r, st, s, id)
		case http.MethodPut:
			updateResource(w, r, st, s, id)
		case http.MethodDelete:
			deleteResource(w, r, st, s, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// listResource answers GET on the collection. An optional q parameter
// switches from full listing to substring search over the searchable
// fields.
func listResource[T ownedRecord](w http.ResponseWriter, r *http.Request, st *store.Store[T], s *Server) {
	personID, _ := auth.PersonID(r.Context())
	skip, take := pagination(r)

	var (
		records []T
		err     error
	)
	if term := r.URL.Query().Get("q"); term != "" {
		records, err = st.SearchOwned(r.Context(), st.SearchableFields(), term, personID, true, skip, take)
	} else {
		records, err = st.GetAllOwned(r.Context(), personID, true, skip, take)
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	if records == nil {
		records = []T{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func createResource[T ownedRecord](w http.ResponseWriter, r *http.Request, st *store.Store[T], s *Server) {
	personID, _ := auth.PersonID(r.Context())

	rec := st.NewRecord()
	if err := json.NewDecoder(r.Body).Decode(rec); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Ownership always comes from the token, never the body; id and
	// creation time are assigned by the store.
	rec.SetOwnerID(personID)
	rec.SetID("")
	rec.SetCreatedDate(time.Time{})

	created, err := st.Create(r.Context(), rec)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func getResource[T ownedRecord](w http.ResponseWriter, r *http.Request, st *store.Store[T], s *Server, id string) {
	personID, _ := auth.PersonID(r.Context())

	rec, err := st.GetOwnedByID(r.Context(), id, personID, true)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func updateResource[T ownedRecord](w http.ResponseWriter, r *http.Request, st *store.Store[T], s *Server, id string) {
	personID, _ := auth.PersonID(r.Context())

	// Updates are owner-only; shared public records stay read-only.
	if _, err := st.GetOwnedByID(r.Context(), id, personID, false); err != nil {
		s.storeError(w, err)
		return
	}

	rec := st.NewRecord()
	if err := json.NewDecoder(r.Body).Decode(rec); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec.SetID(id)

	updated, err := st.Update(r.Context(), rec)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func deleteResource[T ownedRecord](w http.ResponseWriter, r *http.Request, st *store.Store[T], s *Server, id string) {
	personID, _ := auth.PersonID(r.Context())

	if _, err := st.GetOwnedByID(r.Context(), id, personID, false); err != nil {
		s.storeError(w, err)
		return
	}

	existed, err := st.Delete(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !existed {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
