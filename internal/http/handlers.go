package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kasharian/internal/auth"
	"kasharian/internal/core"
	applog "kasharian/internal/log"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err, applog.OpLogin)
		return
	}

	username := p.Get("username")
	id, err := s.guard.Login(username, p.Get("password"))
	if err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).WarnContext(r.Context(),
			"Login failed", applog.FieldUser, username, applog.FieldClientIP, s.securityDetector.ExtractClientIP(r))
		writeError(w, r, err, applog.OpLogin)
		return
	}
	if err := s.guard.SetCookie(w, id); err != nil {
		writeError(w, r, err, applog.OpLogin)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).InfoContext(r.Context(),
		"Login succeeded", applog.FieldUser, id.Username)
	writeMessage(w, http.StatusOK, "ok")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.guard.ClearCookie(w)
	writeMessage(w, http.StatusOK, "ok")
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	day, err := s.ledger.GetOrCreateDay(ctx, s.ledger.Today())
	if err != nil {
		writeError(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, newTodayResponse(day))
}

func (s *Server) handleTodayIncome(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	amount, err := p.Amount("amount")
	if err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.ledger.RecordIncome(ctx, s.ledger.Today(), amount); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	writeMessage(w, http.StatusOK, "ok")
}

func (s *Server) handleTodayExpense(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err, applog.OpAppend)
		return
	}
	amount, err := p.Amount("amount")
	if err != nil {
		writeError(w, r, err, applog.OpAppend)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	_, err = s.ledger.RecordExpense(ctx, s.ledger.Today(), core.ExpenseInput{
		Amount:   amount,
		Category: p.Get("category"),
		Detail:   p.Get("detail"),
		Reason:   p.Get("reason"),
	})
	if err != nil {
		writeError(w, r, err, applog.OpAppend)
		return
	}
	writeMessage(w, http.StatusOK, "ok")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	days, err := s.aggregator.History(ctx, historyDays)
	if err != nil {
		writeError(w, r, err, applog.OpHistory)
		return
	}
	writeJSON(w, http.StatusOK, newDayResponses(days))
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = s.ledger.CurrentMonth()
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	summary, err := s.aggregator.Monthly(ctx, month)
	if err != nil {
		writeError(w, r, err, applog.OpMonthly)
		return
	}
	writeJSON(w, http.StatusOK, newMonthResponse(summary))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.ledger.Reset(ctx, id); err != nil {
		writeError(w, r, err, applog.OpReset)
		return
	}
	writeMessage(w, http.StatusOK, "ok")
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only when the row store answers a snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.ledger.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentStorage).WarnContext(r.Context(),
			"Readiness check failed", applog.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n", traceMetrics.TotalRequests)
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n", rateLimitMetrics.TotalHits)
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n", rateLimitMetrics.ClientCount)
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n", securityMetrics.SuspiciousRequests)
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
