package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"compliance-gate/internal/audit"
	"compliance-gate/internal/gate"
	"compliance-gate/internal/market"
	"compliance-gate/internal/rules"
)

func (s *Server) executorFor(c *gin.Context, strategy string) (*gate.Executor, bool) {
	exec, err := s.Registry.Get(strategy)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "STRATEGY_NOT_FOUND",
			"error": err.Error(),
		})
		return nil, false
	}
	return exec, true
}

func writeGateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gate.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "ORDER_NOT_FOUND",
			"error": err.Error(),
		})
	case errors.Is(err, gate.ErrOrderState):
		// The loser of a concurrent decision lands here; the client must
		// re-fetch the order.
		c.JSON(http.StatusConflict, gin.H{
			"code":  "ORDER_STATE_CONFLICT",
			"error": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
	}
}

// listStrategies returns the registered strategies with their rule summary.
func (s *Server) listStrategies(c *gin.Context) {
	var out []rules.Summary
	for _, name := range s.Registry.Strategies() {
		exec, err := s.Registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, exec.Engine().Summary())
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) getRuleSummary(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, exec.Engine().Summary())
}

func (s *Server) getPendingOrders(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}
	orders := exec.GetPendingOrders()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(orders),
		"orders": orders,
	})
}

// getOrders reads persisted order snapshots, optionally narrowed by state.
func (s *Server) getOrders(c *gin.Context) {
	strategy := c.Param("name")
	if _, ok := s.executorFor(c, strategy); !ok {
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	orders, err := s.DB.ListGateOrders(c.Request.Context(), strategy, c.Query("state"), limit)
	if err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(orders),
		"orders": orders,
	})
}

func (s *Server) getAuditLogs(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}

	f := audit.Filter{
		OrderID:   c.Query("order_id"),
		EventType: c.Query("event_type"),
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_SINCE",
				"error": "since must be RFC3339",
			})
			return
		}
		f.Since = ts
	}

	entries := exec.GetAuditLogs(f)
	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) getExecutionReport(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, exec.GenerateExecutionReport())
}

// submitSignal runs one signal through the gate and returns the resulting
// order in whatever state it reached.
func (s *Server) submitSignal(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}

	var req struct {
		Signal   market.Signal   `json:"signal"`
		Snapshot market.Snapshot `json:"snapshot"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if req.Signal.StockCode == "" || req.Signal.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_SIGNAL",
			"error": "signal requires stock_code and action",
		})
		return
	}
	if req.Signal.Timestamp.IsZero() {
		req.Signal.Timestamp = time.Now()
	}

	o, err := exec.ProcessSignal(c.Request.Context(), req.Signal, req.Snapshot)
	if err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) approveOrder(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("strategy"))
	if !ok {
		return
	}
	o, err := exec.ApproveOrder(c.Request.Context(), c.Param("id"), CurrentOperator(c))
	if err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) rejectOrder(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("strategy"))
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&req)
	if req.Reason == "" {
		req.Reason = "rejected by operator"
	}

	o, err := exec.RejectOrder(c.Request.Context(), c.Param("id"), req.Reason, CurrentOperator(c))
	if err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("strategy"))
	if !ok {
		return
	}
	o, err := exec.CancelOrder(c.Request.Context(), c.Param("id"), CurrentOperator(c))
	if err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) clearHalt(c *gin.Context) {
	exec, ok := s.executorFor(c, c.Param("name"))
	if !ok {
		return
	}
	if err := exec.ClearHalt(c.Request.Context(), CurrentOperator(c)); err != nil {
		writeGateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"halted": exec.Engine().Halted()})
}

// reloadRules re-reads the strategy's rule file and swaps the rule set in
// atomically. Signals in flight finish against the set they started with.
func (s *Server) reloadRules(c *gin.Context) {
	strategy := c.Param("name")
	exec, ok := s.executorFor(c, strategy)
	if !ok {
		return
	}

	path := filepath.Join(s.RulesDir, strategy+".yaml")
	rs, warnings, err := rules.LoadFile(path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "RULES_LOAD_FAILED",
			"error": err.Error(),
		})
		return
	}

	if err := exec.ReloadRules(c.Request.Context(), rs, CurrentOperator(c)); err != nil {
		writeGateError(c, err)
		return
	}

	warnTexts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		warnTexts = append(warnTexts, w.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":  exec.Engine().Summary(),
		"warnings": warnTexts,
	})
}
