package http

import (
	"net/http"

	"fluxo/internal/core"
)

// transactionList is the GET body: the rows plus the range they were read for.
type transactionList struct {
	Range core.RangeState            `json:"range"`
	Items []core.TransactionDetails `json:"items"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, rs, err := ParseTransactionQuery(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rows, err := s.ledger.ListTransactions(r.Context(), q)
	if err != nil {
		writeFailure(w, r, "list_transactions", err)
		return
	}
	NewJSONResponse().Body(transactionList{Range: rs, Items: rows}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	row, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeFailure(w, r, "get_transaction", err)
		return
	}
	NewJSONResponse().Body(row).Write(w)
}

// Mutations refetch with the caller's range selector, so the list in the
// response is the one the caller is looking at.

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	q, _, err := ParseTransactionQuery(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in core.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Description = sanitizeInput(in.Description)

	m, err := s.ledger.CreateTransaction(r.Context(), in, q)
	if err != nil {
		writeFailure(w, r, "create_transaction", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(m).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	q, _, err := ParseTransactionQuery(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in core.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Description = sanitizeInput(in.Description)

	m, err := s.ledger.UpdateTransaction(r.Context(), id, in, q)
	if err != nil {
		writeFailure(w, r, "update_transaction", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	q, _, err := ParseTransactionQuery(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	m, err := s.ledger.DeleteTransaction(r.Context(), id, q)
	if err != nil {
		writeFailure(w, r, "delete_transaction", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}
