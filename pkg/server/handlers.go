package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]api.Category{"categories": s.ledger.Categories()})
}

type transactionRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.parseTimeout)
	defer cancel()

	res, err := s.parser.ParseContext(ctx, req.Text, req.Sender)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.parseTimeout)
	defer cancel()

	res, err := s.parser.CategorizeContext(ctx, req.Text, req.Sender)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type recordRequest struct {
	Phone  string `json:"phone"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// handleRecord parses a notification and stores it as an expense in one call.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.parseTimeout)
	res, err := s.parser.ParseContext(ctx, req.Text, req.Sender)
	cancel()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	e, err := s.ledger.AddParsed(r.Context(), req.Phone, res)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"status":  "success",
		"id":      e.ID,
		"parsed":  res,
		"message": "Expense added successfully!",
	})
}

type credentialsRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.ledger.Register(r.Context(), req.Phone, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]string{
		"status":  "success",
		"user_id": u.ID,
		"message": "Registration successful!",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.ledger.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "success",
		"user_id": u.ID,
		"message": "Login successful!",
	})
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone       string          `json:"phone"`
		Date        string          `json:"date"`
		Amount      decimal.Decimal `json:"amount"`
		Category    api.Category    `json:"category"`
		Subcategory string          `json:"subcategory"`
		Note        string          `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := s.ledger.AddExpense(r.Context(), ledger.NewExpense{
		Phone:       req.Phone,
		Date:        req.Date,
		Amount:      req.Amount,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Note:        req.Note,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]string{
		"status":  "success",
		"id":      e.ID,
		"message": "Expense added successfully!",
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expenses, err := s.ledger.ListExpenses(r.Context(), q.Get("phone"), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, expenses)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	totals, err := s.ledger.Summarize(r.Context(),
		q.Get("phone"), q.Get("start_date"), q.Get("end_date"), api.Category(q.Get("category")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, totals)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		ledger.ExpenseUpdate
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	changed, err := s.ledger.UpdateExpense(r.Context(), r.PathValue("id"), req.Phone, req.ExpenseUpdate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := map[string]any{"status": "success", "updated": 1, "message": "Expense updated successfully!"}
	if !changed {
		body["updated"] = 0
		body["message"] = "No changes made."
	}
	writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if err := s.ledger.DeleteExpense(r.Context(), r.PathValue("id"), phone); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "success",
		"deleted": 1,
		"message": "Expense deleted successfully!",
	})
}
