package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"prevision/internal/core"
)

const (
	defaultProjectionMonths = 3
	maxProjectionMonths     = 24
)

type sharingDTO struct {
	Mode         string   `json:"mode,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Counterparty string   `json:"counterparty,omitempty"`
}

type expenseDTO struct {
	ID              int64      `json:"id"`
	Day             int        `json:"day"`
	Label           string     `json:"label"`
	Amount          float64    `json:"amount"`
	AmountFormatted string     `json:"amount_formatted"`
	Category        string     `json:"category"`
	Sharing         sharingDTO `json:"sharing"`
	Received        bool       `json:"received"`
	Deducted        bool       `json:"deducted"`
}

type breakdownDTO struct {
	Year                       int     `json:"year"`
	Month                      int     `json:"month"`
	StartingBalance            float64 `json:"starting_balance"`
	FixedTotal                 float64 `json:"fixed_total"`
	VariableTotal              float64 `json:"variable_total"`
	ReimbursementsReceived     float64 `json:"reimbursements_received"`
	ReimbursementsPending      float64 `json:"reimbursements_pending"`
	ForecastBalance            float64 `json:"forecast_balance"`
	ForecastBalanceWithPending float64 `json:"forecast_balance_with_pending"`
}

func toExpenseDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID:              e.ID,
		Day:             e.Day,
		Label:           e.Label,
		Amount:          e.Amount,
		AmountFormatted: core.FormatAmount(e.Amount),
		Category:        string(e.Category),
		Sharing: sharingDTO{
			Mode:         string(e.Sharing.Mode),
			Value:        e.Sharing.Value,
			Counterparty: e.Sharing.Counterparty,
		},
		Received: e.Received,
		Deducted: e.Deducted,
	}
}

func toBreakdownDTO(b core.ForecastBreakdown) breakdownDTO {
	return breakdownDTO{
		Year:                       b.Year,
		Month:                      b.Month,
		StartingBalance:            b.StartingBalance,
		FixedTotal:                 b.FixedTotal,
		VariableTotal:              b.VariableTotal,
		ReimbursementsReceived:     b.ReimbursementsReceived,
		ReimbursementsPending:      b.ReimbursementsPending,
		ForecastBalance:            b.ForecastBalance,
		ForecastBalanceWithPending: b.ForecastBalanceWithPending,
	}
}

func decodeJSON(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

// yearMonth reads year and month from the query, defaulting to the
// current calendar month.
func yearMonth(r *http.Request) (int, int) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	return year, month
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createExpense(w, r)
	case http.MethodGet:
		s.listExpenses(w, r)
	case http.MethodDelete:
		s.deleteExpense(w, r)
	default:
		methodNotAllowed(w, "GET", "POST", "DELETE")
	}
}

type createExpenseRequest struct {
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Day      int        `json:"day"`
	Label    string     `json:"label"`
	Amount   string     `json:"amount"`
	Category string     `json:"category"`
	Sharing  sharingDTO `json:"sharing"`
	Received bool       `json:"received"`
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+req.Amount)
		return
	}

	expense := core.Expense{
		Day:      req.Day,
		Label:    strings.TrimSpace(req.Label),
		Amount:   amount,
		Category: core.Category(req.Category),
		Sharing: core.SharingPolicy{
			Mode:         core.SharingMode(req.Sharing.Mode),
			Value:        req.Sharing.Value,
			Counterparty: req.Sharing.Counterparty,
		},
		Received: req.Received,
	}

	userID := s.user(r)
	created, err := s.deps.Expenses.AddExpense(r.Context(), userID, req.Year, req.Month, expense)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(userID)
	writeJSON(w, http.StatusCreated, toExpenseDTO(created))
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	year, month := yearMonth(r)
	expenses, err := s.deps.Expenses.ListMonth(r.Context(), s.user(r), year, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]expenseDTO, len(expenses))
	for i, e := range expenses {
		out[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.deps.Expenses.DeleteExpense(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(s.user(r))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

type flagRequest struct {
	ID    int64 `json:"id"`
	Value bool  `json:"value"`
}

func (s *Server) handleExpenseReceived(w http.ResponseWriter, r *http.Request) {
	s.setExpenseFlag(w, r, s.deps.Expenses.MarkReceived)
}

func (s *Server) handleExpenseDeducted(w http.ResponseWriter, r *http.Request) {
	s.setExpenseFlag(w, r, s.deps.Expenses.MarkDeducted)
}

func (s *Server) setExpenseFlag(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64, value bool) error) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req flagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := apply(r.Context(), req.ID, req.Value); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(s.user(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "value": req.Value})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month := yearMonth(r)
	b, err := s.cachedForecast(r.Context(), s.user(r), year, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month := yearMonth(r)
	months := defaultProjectionMonths
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxProjectionMonths {
			writeError(w, http.StatusBadRequest, "months must be between 1 and "+strconv.Itoa(maxProjectionMonths))
			return
		}
		months = n
	}

	projection, err := s.deps.Forecasts.Projection(r.Context(), s.user(r), year, month, months)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]breakdownDTO, len(projection))
	for i, b := range projection {
		out[i] = toBreakdownDTO(b)
	}
	writeJSON(w, http.StatusOK, out)
}

type setBalanceRequest struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	StartingBalance float64 `json:"starting_balance"`
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req setBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidMonth.Error())
		return
	}

	userID := s.user(r)
	period, err := s.deps.Periods.SetStartingBalance(r.Context(), userID, req.Year, req.Month, req.StartingBalance)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":             period.Year,
		"month":            period.Month,
		"starting_balance": period.StartingBalance,
	})
}

type carryForwardRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleCarryForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req carryForwardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	userID := s.user(r)
	next, err := s.deps.Forecasts.CarryForward(r.Context(), userID, req.Year, req.Month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":             next.Year,
		"month":            next.Month,
		"starting_balance": next.StartingBalance,
	})
}

type templateDTO struct {
	ID         int64      `json:"id"`
	Label      string     `json:"label"`
	Amount     float64    `json:"amount"`
	Category   string     `json:"category"`
	DayOfMonth int        `json:"day_of_month"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date,omitempty"`
	Active     bool       `json:"active"`
	Sharing    sharingDTO `json:"sharing"`
}

type templateRequest struct {
	ID         int64      `json:"id,omitempty"`
	Label      string     `json:"label"`
	Amount     string     `json:"amount"`
	Category   string     `json:"category"`
	DayOfMonth int        `json:"day_of_month"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date,omitempty"`
	Active     *bool      `json:"active,omitempty"`
	Sharing    sharingDTO `json:"sharing"`
}

const templateDateLayout = "2006-01-02"

func toTemplateDTO(t core.RecurringTemplate) templateDTO {
	dto := templateDTO{
		ID:         t.ID,
		Label:      t.Label,
		Amount:     t.Amount,
		Category:   string(t.Category),
		DayOfMonth: t.DayOfMonth,
		StartDate:  t.StartDate.Format(templateDateLayout),
		Active:     t.Active,
		Sharing: sharingDTO{
			Mode:         string(t.Sharing.Mode),
			Value:        t.Sharing.Value,
			Counterparty: t.Sharing.Counterparty,
		},
	}
	if !t.EndDate.IsEmpty() {
		dto.EndDate = t.EndDate.Format(templateDateLayout)
	}
	return dto
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTemplates(w, r)
	case http.MethodPost:
		s.upsertTemplate(w, r)
	case http.MethodDelete:
		s.deactivateTemplate(w, r)
	default:
		methodNotAllowed(w, "GET", "POST", "DELETE")
	}
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Templates.ListTemplates(r.Context(), s.user(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]templateDTO, len(templates))
	for i, t := range templates {
		out[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) upsertTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+req.Amount)
		return
	}

	start, err := time.Parse(templateDateLayout, req.StartDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid start_date: want YYYY-MM-DD")
		return
	}
	var end core.Date
	if req.EndDate != "" {
		t, err := time.Parse(templateDateLayout, req.EndDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid end_date: want YYYY-MM-DD")
			return
		}
		end = core.Date{Time: t}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	tmpl := core.RecurringTemplate{
		ID:         req.ID,
		Label:      strings.TrimSpace(req.Label),
		Amount:     amount,
		Category:   core.Category(req.Category),
		DayOfMonth: req.DayOfMonth,
		StartDate:  core.Date{Time: start},
		EndDate:    end,
		Active:     active,
		Sharing: core.SharingPolicy{
			Mode:         core.SharingMode(req.Sharing.Mode),
			Value:        req.Sharing.Value,
			Counterparty: req.Sharing.Counterparty,
		},
	}
	if err := tmpl.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	userID := s.user(r)
	if tmpl.ID > 0 {
		if err := s.deps.Templates.UpdateTemplate(r.Context(), userID, tmpl); err != nil {
			writeDomainError(w, r, err)
			return
		}
		s.invalidateUser(userID)
		writeJSON(w, http.StatusOK, toTemplateDTO(tmpl))
		return
	}

	created, err := s.deps.Templates.CreateTemplate(r.Context(), userID, tmpl)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	writeJSON(w, http.StatusCreated, toTemplateDTO(created))
}

func (s *Server) deactivateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	userID := s.user(r)
	if err := s.deps.Templates.DeactivateTemplate(r.Context(), userID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateUser(userID)
	writeJSON(w, http.StatusOK, map[string]int64{"deactivated": id})
}

type setBudgetRequest struct {
	MonthlyLimit float64 `json:"monthly_limit"`
	Email        string  `json:"email"`
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req setBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !(req.MonthlyLimit > 0) {
		writeError(w, http.StatusUnprocessableEntity, "monthly_limit must be positive")
		return
	}

	if err := s.deps.Budgets.UpsertBudget(r.Context(), s.user(r), req.MonthlyLimit, req.Email); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monthly_limit": req.MonthlyLimit})
}

type setIncomeRequest struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req setIncomeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := s.deps.Incomes.SetIncome(r.Context(), s.user(r), req.Year, req.Month, req.Amount); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"year": req.Year, "month": req.Month})
	case http.MethodGet:
		year, month := yearMonth(r)
		amount, ok, err := s.deps.Incomes.GetIncome(r.Context(), s.user(r), year, month)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "no income recorded")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "amount": amount})
	default:
		methodNotAllowed(w, "GET", "POST")
	}
}

type affordabilityResponse struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	IncomeSet  bool    `json:"income_set"`
	Income     float64 `json:"income,omitempty"`
	FixedTotal float64 `json:"fixed_total"`
	// FixedShare is fixed spend over income; the classic debt-ratio view.
	FixedShare float64 `json:"fixed_share,omitempty"`

	Purchase *purchaseDTO `json:"purchase,omitempty"`
}

type purchaseDTO struct {
	Amount     float64 `json:"amount"`
	Horizon    int     `json:"horizon_months"`
	Affordable bool    `json:"affordable"`
	MinBalance float64 `json:"min_balance"`
}

// handleAffordability reports how much of the month's income is eaten by
// fixed costs, and optionally whether a one-off purchase fits within the
// projection horizon (amount and months query parameters).
func (s *Server) handleAffordability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month := yearMonth(r)
	userID := s.user(r)

	b, err := s.cachedForecast(r.Context(), userID, year, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := affordabilityResponse{
		Year:       year,
		Month:      month,
		FixedTotal: b.FixedTotal,
	}

	income, ok, err := s.deps.Incomes.GetIncome(r.Context(), userID, year, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.IncomeSet = ok
	if ok {
		resp.Income = income
		if income > 0 {
			resp.FixedShare = b.FixedTotal / income
		}
	}

	if v := strings.TrimSpace(r.URL.Query().Get("amount")); v != "" {
		amount, err := core.ParseAmount(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+v)
			return
		}
		horizon := defaultProjectionMonths
		if mv := strings.TrimSpace(r.URL.Query().Get("months")); mv != "" {
			n, err := strconv.Atoi(mv)
			if err != nil || n < 1 || n > maxProjectionMonths {
				writeError(w, http.StatusBadRequest, "months must be between 1 and "+strconv.Itoa(maxProjectionMonths))
				return
			}
			horizon = n
		}

		result, err := s.deps.Forecasts.Affordability(r.Context(), userID, year, month, amount, horizon)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		resp.Purchase = &purchaseDTO{
			Amount:     result.Amount,
			Horizon:    result.Horizon,
			Affordable: result.Affordable,
			MinBalance: result.MinBalance,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
