package http

import (
	"net/http"

	"fluxo/internal/core"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseType(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	cats, err := s.ledger.ListCategories(r.Context(), typ)
	if err != nil {
		writeFailure(w, r, "list_categories", err)
		return
	}
	NewJSONResponse().Body(map[string]any{"items": cats}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in core.CategoryInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Name = sanitizeInput(in.Name)

	m, err := s.ledger.CreateCategory(r.Context(), in)
	if err != nil {
		writeFailure(w, r, "create_category", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(m).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in core.CategoryInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Name = sanitizeInput(in.Name)

	m, err := s.ledger.UpdateCategory(r.Context(), id, in)
	if err != nil {
		writeFailure(w, r, "update_category", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	m, err := s.ledger.DeleteCategory(r.Context(), id)
	if err != nil {
		writeFailure(w, r, "delete_category", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.ledger.ListPaymentMethods(r.Context())
	if err != nil {
		writeFailure(w, r, "list_payment_methods", err)
		return
	}
	NewJSONResponse().Body(map[string]any{"items": methods}).Write(w)
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in core.PaymentMethodInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Name = sanitizeInput(in.Name)

	m, err := s.ledger.CreatePaymentMethod(r.Context(), in)
	if err != nil {
		writeFailure(w, r, "create_payment_method", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(m).Write(w)
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in core.PaymentMethodInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Name = sanitizeInput(in.Name)

	m, err := s.ledger.UpdatePaymentMethod(r.Context(), id, in)
	if err != nil {
		writeFailure(w, r, "update_payment_method", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	m, err := s.ledger.DeletePaymentMethod(r.Context(), id)
	if err != nil {
		writeFailure(w, r, "delete_payment_method", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}
