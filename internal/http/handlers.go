package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
	"github.com/dhankosh/backend/internal/service"
)

// Services bundles the engine services the router exposes.
type Services struct {
	Valuation *service.ValuationService
	Snapshots *service.SnapshotService
	Tax       *service.TaxService
	Goals     *service.GoalService
}

// Router wires all handlers.
func Router(svcs Services, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(logger))

	r.GET("/investments/:id", func(c *gin.Context) {
		handleGetInvestment(c, svcs.Valuation)
	})
	r.POST("/investments/:id/sell", func(c *gin.Context) {
		handleSell(c, svcs.Valuation)
	})
	r.POST("/investments/:id/transactions", func(c *gin.Context) {
		handleCreateTransaction(c, svcs.Valuation)
	})
	r.GET("/portfolio/:ownerId", func(c *gin.Context) {
		handlePortfolio(c, svcs.Snapshots)
	})
	r.GET("/portfolio/:ownerId/xirr/:class", func(c *gin.Context) {
		handleTypeXIRR(c, svcs.Valuation)
	})
	r.POST("/snapshots/monthly", func(c *gin.Context) {
		handleMonthlySnapshots(c, svcs.Snapshots)
	})
	r.POST("/snapshots/networth", func(c *gin.Context) {
		handleNetWorthSnapshot(c, svcs.Snapshots)
	})
	r.POST("/snapshots/historical/:ownerId", func(c *gin.Context) {
		handleStartHistorical(c, svcs.Snapshots)
	})
	r.GET("/snapshots/historical/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, svcs.Snapshots.JobStatus())
	})
	r.GET("/tax/capital-gains/:ownerId", func(c *gin.Context) {
		handleCapitalGains(c, svcs.Tax)
	})
	r.POST("/goals/:id/investments", func(c *gin.Context) {
		handleAssignInvestment(c, svcs.Goals)
	})
	r.POST("/goals/:id/simulate", func(c *gin.Context) {
		handleSimulateGoal(c, svcs.Goals)
	})
	r.GET("/goals/:id/history", func(c *gin.Context) {
		handleGoalHistory(c, svcs.Goals)
	})
	return r
}

func handleGetInvestment(c *gin.Context, svc *service.ValuationService) {
	// Enrichment loads the investment itself; errors map below.
	inv, err := svc.GetEnriched(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"investment":          inv,
		"currentValueDisplay": displayINR(inv.CurrentValue),
	})
}

type sellRequest struct {
	Date  *time.Time `json:"date"`
	Units string     `json:"units" binding:"required"`
	Price string     `json:"price" binding:"required"`
	Fees  string     `json:"fees"`
}

func handleSell(c *gin.Context, svc *service.ValuationService) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	units, err := decimal.NewFromString(req.Units)
	if err != nil || !units.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "units must be a positive decimal string"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a positive decimal string"})
		return
	}
	fees := decimal.Zero
	if req.Fees != "" {
		if fees, err = decimal.NewFromString(req.Fees); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fees must be a decimal string"})
			return
		}
	}
	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	res, err := svc.ExecuteSell(c.Request.Context(), c.Param("id"), date, units, price, fees)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type transactionRequest struct {
	Type      string     `json:"type" binding:"required"`
	Date      *time.Time `json:"date"`
	Amount    string     `json:"amount" binding:"required"`
	Units     string     `json:"units"`
	UnitPrice string     `json:"unitPrice"`
	Fees      string     `json:"fees"`
	Notes     string     `json:"notes"`
}

func handleCreateTransaction(c *gin.Context, svc *service.ValuationService) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}
	tx := models.Transaction{
		InvestmentID: c.Param("id"),
		Type:         models.TransactionType(req.Type),
		Amount:       amount,
		Notes:        req.Notes,
	}
	if tx.Units, err = parseOptionalDecimal(req.Units); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "units must be a decimal string"})
		return
	}
	if tx.UnitPrice, err = parseOptionalDecimal(req.UnitPrice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unitPrice must be a decimal string"})
		return
	}
	if tx.Fees, err = parseOptionalDecimal(req.Fees); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fees must be a decimal string"})
		return
	}
	tx.Date = time.Now().UTC()
	if req.Date != nil {
		tx.Date = *req.Date
	}
	created, err := svc.RecordTransaction(c.Request.Context(), tx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func handlePortfolio(c *gin.Context, svc *service.SnapshotService) {
	snap, err := svc.LatestNetWorth(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot":         snap,
		"netWorthDisplay":  displayINR(snap.NetWorth),
		"totalInvestedINR": displayINR(snap.TotalInvested),
		"totalDebtINR":     displayINR(snap.TotalDebt),
	})
}

func handleTypeXIRR(c *gin.Context, svc *service.ValuationService) {
	class := models.AssetClass(c.Param("class"))
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown asset class"})
		return
	}
	rate, err := svc.CalculateTypeXIRR(c.Request.Context(), c.Param("ownerId"), class)
	if err != nil {
		respondError(c, err)
		return
	}
	if rate == nil {
		c.JSON(http.StatusOK, gin.H{"class": class, "xirr": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class": class,
		"xirr":  rate.Mul(decimal.NewFromInt(100)).Round(2).String(),
	})
}

type snapshotRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Month   string `json:"month" binding:"required"`
}

func handleMonthlySnapshots(c *gin.Context, svc *service.SnapshotService) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := svc.CalculateMonthlySnapshots(c.Request.Context(), req.OwnerID, req.Month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": req.Month, "snapshots": rows})
}

func handleNetWorthSnapshot(c *gin.Context, svc *service.SnapshotService) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := svc.CalculateNetWorthSnapshot(c.Request.Context(), req.OwnerID, req.Month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot":        snap,
		"netWorthDisplay": displayINR(snap.NetWorth),
	})
}

func handleStartHistorical(c *gin.Context, svc *service.SnapshotService) {
	if err := svc.StartHistoricalJob(c.Param("ownerId")); err != nil {
		if errors.Is(err, service.ErrJobRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func handleCapitalGains(c *gin.Context, svc *service.TaxService) {
	fyStart, err := time.Parse("2006-01-02", c.Query("fyStart"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fyStart must be YYYY-MM-DD"})
		return
	}
	fyEnd, err := time.Parse("2006-01-02", c.Query("fyEnd"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fyEnd must be YYYY-MM-DD"})
		return
	}
	summary, err := svc.CalculateCapitalGains(c.Request.Context(), c.Param("ownerId"), fyStart, fyEnd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":         summary,
		"totalTaxDisplay": displayINR(summary.TotalTax),
	})
}

type assignRequest struct {
	InvestmentID  string `json:"investmentId" binding:"required"`
	AllocationPct string `json:"allocationPct" binding:"required"`
}

func handleAssignInvestment(c *gin.Context, svc *service.GoalService) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pct, err := decimal.NewFromString(req.AllocationPct)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "allocationPct must be a decimal string"})
		return
	}
	gi, err := svc.AssignInvestment(c.Request.Context(), c.Param("id"), req.InvestmentID, pct)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gi)
}

type simulateRequest struct {
	MonthlySIP string `json:"monthlySip"`
	AnnualRate string `json:"annualRate"`
}

func handleSimulateGoal(c *gin.Context, svc *service.GoalService) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sip, err := parseOptionalDecimal(req.MonthlySIP)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "monthlySip must be a decimal string"})
		return
	}
	rate, err := parseOptionalDecimal(req.AnnualRate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "annualRate must be a decimal string"})
		return
	}
	sim, err := svc.SimulateGoal(c.Request.Context(), c.Param("id"), sip, rate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

func handleGoalHistory(c *gin.Context, svc *service.GoalService) {
	history, err := svc.GetGoalHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyAssigned):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrInvestmentNotFound),
		errors.Is(err, repository.ErrGoalNotFound),
		errors.Is(err, repository.ErrSnapshotNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// displayINR formats an amount for human consumption, e.g. "₹1,08,243.22".
func displayINR(amount decimal.Decimal) string {
	return money.New(amount.Round(2).Shift(2).IntPart(), money.INR).Display()
}

func logMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Info("request completed")
	}
}
