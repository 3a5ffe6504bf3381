package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/relves/landreg/pkg/registry"
	"github.com/relves/landreg/pkg/session"
)

// txResponse acknowledges an accepted submission. The hash is a receipt, not
// proof of execution; callers poll result/{tx} for the outcome.
type txResponse struct {
	TxHash string `json:"tx_hash"`
}

func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return registry.WrapError(registry.KindDecode, "malformed request body", err)
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, registry.NewError(registry.KindValidation, "id must be an unsigned integer")
	}
	return id, nil
}

// submit loads the caller's identity, builds a signed transaction with it,
// and hands it to the ledger. Construction failures abort before any
// submission is attempted.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, build func(id session.Identity) (*registry.Transaction, error)) {
	id, err := session.Load(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	tx, err := build(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	receipt, err := s.node.Submit(r.Context(), tx)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxHash: receipt.String()})
}

type registerRequest struct {
	Name string `json:"name"`
}

// handleRegister is the only write that creates a session instead of loading
// one: it mints a fresh identity, persists it in the response cookies, and
// submits the register transaction under it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}

	id, err := session.NewIdentity()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	tx, err := registry.NewRegister(id.Public, id.Secret, req.Name, registry.Timestamp())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	receipt, err := s.node.Submit(r.Context(), tx)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	session.Save(w, id)
	writeJSON(w, http.StatusOK, txResponse{TxHash: receipt.String()})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.queries.Result(r.Context(), r.PathValue("tx"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := s.queries.Owners(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	owner, err := s.queries.Owner(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := s.queries.Objects(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	obj, err := s.queries.Object(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

type createOwnerRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

func (s *Server) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.submit(w, r, func(id session.Identity) (*registry.Transaction, error) {
		return registry.NewCreateOwner(id.Public, id.Secret, req.Firstname, req.Lastname, registry.Timestamp())
	})
}

type createObjectRequest struct {
	Title   string              `json:"title"`
	Points  []registry.GeoPoint `json:"points"`
	OwnerID *uint64             `json:"owner_id"`
	Deleted *bool               `json:"deleted"`
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.OwnerID == nil {
		writeError(w, s.logger, registry.NewError(registry.KindValidation, "owner_id is required"))
		return
	}
	// The deleted flag is part of the request shape but not of the
	// transaction: creation always yields an active parcel.
	if req.Deleted == nil {
		writeError(w, s.logger, registry.NewError(registry.KindValidation, "deleted is required"))
		return
	}
	s.submit(w, r, func(id session.Identity) (*registry.Transaction, error) {
		return registry.NewCreateObject(id.Public, id.Secret, req.Title, req.Points, *req.OwnerID, registry.Timestamp())
	})
}

type transferObjectRequest struct {
	ID      *uint64 `json:"id"`
	OwnerID *uint64 `json:"owner_id"`
}

func (s *Server) handleTransferObject(w http.ResponseWriter, r *http.Request) {
	var req transferObjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.ID == nil || req.OwnerID == nil {
		writeError(w, s.logger, registry.NewError(registry.KindValidation, "id and owner_id are required"))
		return
	}
	s.submit(w, r, func(id session.Identity) (*registry.Transaction, error) {
		return registry.NewTransferObject(id.Public, id.Secret, *req.ID, *req.OwnerID, registry.Timestamp())
	})
}

func (s *Server) handleRemoveObject(w http.ResponseWriter, r *http.Request) {
	objectID, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.submit(w, r, func(id session.Identity) (*registry.Transaction, error) {
		return registry.NewRemoveObject(id.Public, id.Secret, objectID, registry.Timestamp())
	})
}

type restoreObjectRequest struct {
	ID *uint64 `json:"id"`
}

func (s *Server) handleRestoreObject(w http.ResponseWriter, r *http.Request) {
	var req restoreObjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.ID == nil {
		writeError(w, s.logger, registry.NewError(registry.KindValidation, "id is required"))
		return
	}
	s.submit(w, r, func(id session.Identity) (*registry.Transaction, error) {
		return registry.NewRestoreObject(id.Public, id.Secret, *req.ID, registry.Timestamp())
	})
}
