package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
	"github.com/atharvakonge/investment-ledger/internal/money"
)

// Handler serves the investment API over a ledger service.
type Handler struct {
	ledger *ledger.Service
	now    func() time.Time
}

// NewHandler creates the HTTP handlers for svc.
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{ledger: svc, now: time.Now}
}

type addInvestmentRequest struct {
	OpportunityID int64        `json:"opportunity_id"`
	Amount        money.Amount `json:"amount"`
}

type updateInvestmentRequest struct {
	InvestmentID int64        `json:"investment_id"`
	Amount       money.Amount `json:"amount"`
}

type withdrawRequest struct {
	InvestmentID     int64         `json:"investment_id"`
	WithdrawalAmount *money.Amount `json:"withdrawal_amount"`
	Amount           *money.Amount `json:"amount"`
	Reason           string        `json:"reason"`
}

type transferRequest struct {
	InvestmentID        int64        `json:"investment_id"`
	RecipientIdentifier string       `json:"recipient_identifier"`
	RecipientEmail      string       `json:"recipient_email"`
	Amount              money.Amount `json:"amount"`
	Note                string       `json:"note"`
}

type exitRequest struct {
	InvestmentID int64  `json:"investment_id"`
	Reason       string `json:"reason"`
}

type paymentRequest struct {
	PriceAmount   money.Amount `json:"price_amount"`
	PriceCurrency string       `json:"price_currency"`
	PayAmount     money.Amount `json:"pay_amount"`
	PayCurrency   string       `json:"pay_currency"`
	OrderID       string       `json:"order_id"`
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AddInvestment handles POST /investment/add
func (h *Handler) AddInvestment(c *gin.Context) {
	var req addInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.Subscribe(c.Request.Context(), ledger.SubscribeRequest{
		UserID:        userID(c),
		OpportunityID: req.OpportunityID,
		Amount:        req.Amount.Decimal(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":           "Investment added/updated successfully",
		"investment":        positionResponse(res, h.now()),
		"remaining_balance": money.Of(res.WalletBalance),
	})
}

// UpdateInvestment handles PUT /investment/update
func (h *Handler) UpdateInvestment(c *gin.Context) {
	var req updateInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.TopUp(c.Request.Context(), ledger.TopUpRequest{
		UserID:       userID(c),
		InvestmentID: req.InvestmentID,
		Amount:       req.Amount.Decimal(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Investment updated successfully",
		"investment":     positionResponse(res, h.now()),
		"wallet_balance": money.Of(res.WalletBalance),
	})
}

// WithdrawInvestment handles POST /investment/withdraw. The amount may be
// sent as withdrawal_amount or amount.
func (h *Handler) WithdrawInvestment(c *gin.Context) {
	var req withdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	amount := lo.CoalesceOrEmpty(req.WithdrawalAmount, req.Amount)
	if amount == nil {
		amount = new(money.Amount)
	}

	res, err := h.ledger.Withdraw(c.Request.Context(), ledger.WithdrawRequest{
		UserID:       userID(c),
		InvestmentID: req.InvestmentID,
		Amount:       amount.Decimal(),
		Reason:       req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":              "Withdrawal processed successfully",
		"withdrawn_amount":     money.Of(res.Withdrawn),
		"returned_to_wallet":   money.Of(res.Returned),
		"penalty":              money.Of(res.Penalty),
		"remaining_investment": money.Of(res.Remaining),
		"status":               res.Status,
		"wallet_balance":       money.Of(res.WalletBalance),
		"reason":               optionalText(req.Reason),
	})
}

// TransferInvestment handles POST /investment/transfer
func (h *Handler) TransferInvestment(c *gin.Context) {
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.Transfer(c.Request.Context(), ledger.TransferRequest{
		UserID:       userID(c),
		InvestmentID: req.InvestmentID,
		Recipient:    strings.TrimSpace(lo.CoalesceOrEmpty(req.RecipientIdentifier, req.RecipientEmail)),
		Amount:       req.Amount.Decimal(),
		Note:         req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Investment transferred successfully",
		"transfer": gin.H{
			"investment_id":        res.InvestmentID,
			"opportunity_id":       res.OpportunityID,
			"transferred_amount":   money.Of(res.Transferred),
			"remaining_amount":     money.Of(res.Remaining),
			"recipient_account_id": res.RecipientAccountID,
			"note":                 optionalText(req.Note),
		},
	})
}

// ExitInvestment handles POST /investment/exit
func (h *Handler) ExitInvestment(c *gin.Context) {
	var req exitRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.Exit(c.Request.Context(), ledger.ExitRequest{
		UserID:       userID(c),
		InvestmentID: req.InvestmentID,
		Reason:       req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":            "Investment exited successfully",
		"withdrawn_amount":   money.Of(res.Withdrawn),
		"returned_to_wallet": money.Of(res.Returned),
		"wallet_balance":     money.Of(res.WalletBalance),
		"status":             res.Status,
		"reason":             optionalText(req.Reason),
	})
}

// CreatePayment handles POST /payment. The wallet is credited at once; no
// payment network is involved.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req paymentRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.Deposit(c.Request.Context(), ledger.DepositRequest{
		UserID: userID(c),
		Amount: req.PriceAmount.Decimal(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment_id":     "pay_" + res.Reference,
		"order_id":       optionalText(req.OrderID),
		"price_amount":   money.Of(res.Amount),
		"price_currency": strings.ToLower(lo.CoalesceOrEmpty(req.PriceCurrency, "usd")),
		"pay_amount":     req.PayAmount,
		"pay_currency":   strings.ToLower(lo.CoalesceOrEmpty(req.PayCurrency, "btc")),
		"status":         "pending",
		"wallet_balance": money.Of(res.WalletBalance),
		"created_at":     res.CreatedAt,
	})
}

// GetProfile handles GET /profile
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.ledger.Profile(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// GetOpportunities handles GET /opportunities
func (h *Handler) GetOpportunities(c *gin.Context) {
	opps, err := h.ledger.Opportunities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(opps, func(o models.Opportunity, _ int) OpportunityResponse {
		return newOpportunityResponse(o)
	}))
}

// GetTransactions handles GET /transactions?limit=N
func (h *Handler) GetTransactions(c *gin.Context) {
	limit := ledger.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.ledger.History(c.Request.Context(), userID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": lo.Map(entries, newEntryResponse),
		"count":        len(entries),
	})
}
