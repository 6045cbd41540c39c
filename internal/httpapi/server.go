// Package httpapi exposes the service over HTTP: the provider callback
// endpoint speaking the encrypted wire protocol, and the player-facing
// launch and wallet routes behind JWT auth.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/internal/providerapi"
	"github.com/playnexus/slotbridge/internal/slot"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

// Server hosts the HTTP routes over the reconciliation engine.
type Server struct {
	config     Config
	store      slot.Store
	ledger     *wallet.Ledger
	launcher   *slot.Launcher
	reconciler *slot.Reconciler
	logger     *zap.Logger
	router     *gin.Engine
}

// NewServer wires the router. The caller owns the store and engine
// components; the server only routes to them.
func NewServer(config Config, store slot.Store, ledger *wallet.Ledger, launcher *slot.Launcher, reconciler *slot.Reconciler, logger *zap.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil || ledger == nil || launcher == nil || reconciler == nil {
		return nil, errors.New("httpapi: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{
		config:     config,
		store:      store,
		ledger:     ledger,
		launcher:   launcher,
		reconciler: reconciler,
		logger:     logger,
	}
	server.router = server.setupRouter()
	return server, nil
}

// Router exposes the handler, mainly for tests.
func (server *Server) Router() http.Handler {
	return server.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.config.ListenAddr,
		Handler: server.router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("httpapi listening", zap.String("addr", server.config.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/provider-callback/:provider_code/callback", server.handleCallback)

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(server.config.JWTSigningKey), server.config.JWTIssuer))
	api.POST("/games/:game_id/launch", server.handleLaunch)
	api.GET("/wallet", server.handleWallet)

	return router
}

// callbackResponse is the outer JSON shape of every callback answer. The
// payload string is encrypted with the provider's key.
type callbackResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"msg"`
	AgencyUID string `json:"agency_uid,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

// handleCallback speaks the provider protocol: every outcome, including
// domain failures, answers HTTP 200 with a protocol code. Transport-level
// garbage is the only 4xx.
func (server *Server) handleCallback(ctx *gin.Context) {
	providerCode := ctx.Param("provider_code")
	var envelope payload.Envelope
	if err := ctx.ShouldBindJSON(&envelope); err != nil {
		ctx.JSON(http.StatusBadRequest, callbackResponse{
			Code:    int(providerapi.CodePayloadFormat),
			Message: providerapi.CodePayloadFormat.Message(),
		})
		return
	}

	answer, err := server.reconciler.HandleCallback(ctx.Request.Context(), providerCode, envelope)
	if err != nil {
		code := callbackCode(err)
		if code == providerapi.CodeSystemError {
			server.logger.Error("callback processing failed",
				zap.String("provider", providerCode),
				zap.Error(err))
		} else {
			server.logger.Warn("callback declined",
				zap.String("provider", providerCode),
				zap.Int("code", int(code)),
				zap.Error(err))
		}
		ctx.JSON(http.StatusOK, callbackResponse{Code: int(code), Message: code.Message()})
		return
	}
	ctx.JSON(http.StatusOK, callbackResponse{
		Code:      int(providerapi.CodeOK),
		Message:   providerapi.CodeOK.Message(),
		AgencyUID: answer.AgencyUID,
		Timestamp: answer.Timestamp,
		Payload:   answer.Payload,
	})
}

// callbackCode maps typed domain errors onto the protocol code table.
func callbackCode(err error) providerapi.Code {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return providerapi.CodeInsufficientFunds
	case errors.Is(err, slot.ErrStaleRequest), errors.Is(err, slot.ErrNonceConsumed):
		return providerapi.CodeStaleRequest
	case errors.Is(err, slot.ErrUnknownPlayer), errors.Is(err, wallet.ErrWalletNotFound):
		return providerapi.CodeUnknownPlayer
	case errors.Is(err, slot.ErrSessionNotFound):
		return providerapi.CodeSessionNotFound
	case errors.Is(err, slot.ErrGameNotFound):
		return providerapi.CodeGameNotFound
	case errors.Is(err, slot.ErrAuthentication),
		errors.Is(err, slot.ErrProviderNotFound),
		errors.Is(err, slot.ErrProviderInactive):
		return providerapi.CodeAgencyNotFound
	case errors.Is(err, payload.ErrPayloadFormat),
		errors.Is(err, payload.ErrInvalidEnvelope),
		errors.Is(err, slot.ErrInvalidEvent):
		return providerapi.CodePayloadFormat
	}
	return providerapi.CodeSystemError
}

type launchRequestBody struct {
	Demo bool `json:"demo"`
}

// handleLaunch starts a remote game for the authenticated player. Launch
// failures answer a deliberately generic message so remote outage details
// never leak to players; insufficient funds stays precise.
func (server *Server) handleLaunch(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	gameID, err := parseInt64Param(ctx, "game_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_game_id", "game id must be numeric"))
		return
	}
	var body launchRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}

	result, err := server.launcher.Launch(ctx.Request.Context(), userID, gameID, body.Demo)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			ctx.JSON(http.StatusConflict, errorResponse("insufficient_funds", "insufficient funds"))
		case errors.Is(err, slot.ErrGameNotFound):
			ctx.JSON(http.StatusNotFound, errorResponse("game_not_found", "unknown game"))
		default:
			server.logger.Warn("launch failed",
				zap.Int64("user_id", userID.Int64()),
				zap.Int64("game_id", gameID),
				zap.Error(err))
			ctx.JSON(http.StatusServiceUnavailable, errorResponse("game_unavailable", "game temporarily unavailable"))
		}
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"launch_url":    result.LaunchURL,
		"session_token": result.Session.Token,
		"expires_at":    result.Session.ExpiresAtUnixUTC,
	})
}

func (server *Server) handleWallet(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	balance, err := server.ledger.Balance(ctx.Request.Context(), server.store, userID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse("wallet_not_found", "no wallet for user"))
			return
		}
		server.logger.Error("wallet fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("wallet_error", "wallet unavailable"))
		return
	}
	transactions, err := server.store.ListTransactions(ctx.Request.Context(), userID, 0, walletHistoryLimit)
	if err != nil {
		server.logger.Error("transaction list failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("wallet_error", "wallet unavailable"))
		return
	}

	history := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		history = append(history, transactionPayload{
			TransactionID:  transaction.TransactionID,
			Type:           transaction.Type.String(),
			Amount:         transaction.Amount.StringFixed(2),
			BalanceAfter:   transaction.BalanceAfter.StringFixed(2),
			Reference:      transaction.Reference,
			CreatedUnixUTC: transaction.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance": balancePayload{
			Real:   balance.Real.StringFixed(2),
			Bonus:  balance.Bonus.StringFixed(2),
			Locked: balance.Locked.StringFixed(2),
		},
		"transactions": history,
	})
}

type balancePayload struct {
	Real   string `json:"real"`
	Bonus  string `json:"bonus"`
	Locked string `json:"locked"`
}

type transactionPayload struct {
	TransactionID  string `json:"transaction_id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	BalanceAfter   string `json:"balance_after"`
	Reference      string `json:"reference"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func parseInt64Param(ctx *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(ctx.Param(name), 10, 64)
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
