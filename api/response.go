package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gavel/auction"
	"gavel/chain"
	"gavel/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

func respondOK(w http.ResponseWriter, r *http.Request, response any) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// The client is gone, nothing to do about it.
		_ = err
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error, fallbackCode int, logger log.Logger) {
	code, trueError := classifyError(err, fallbackCode)

	if trueError {
		level.Error(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	} else {
		level.Debug(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error:      err.Error(),
		StatusCode: code,
		StatusText: http.StatusText(code),
	})
}

// classifyError maps service errors to HTTP status codes, and reports whether
// the error is a genuine fault worth logging at error level, or an expected
// consequence of client state.
func classifyError(err error, fallback int) (int, bool) {
	switch {
	case err == nil:
		return http.StatusOK, false
	case errors.Is(err, auction.ErrInvalidConfig):
		return http.StatusBadRequest, false
	case errors.Is(err, auction.ErrAuctionNotActive):
		return http.StatusTooEarly, false
	case errors.Is(err, auction.ErrAuctionNotConcluded):
		return http.StatusTooEarly, false
	case errors.Is(err, auction.ErrBidTooLow):
		return http.StatusConflict, false
	case errors.Is(err, auction.ErrAlreadyCanceled):
		return http.StatusConflict, false
	case errors.Is(err, auction.ErrNothingToWithdraw):
		return http.StatusConflict, false
	case errors.Is(err, auction.ErrOwnerCannotBid):
		return http.StatusForbidden, false
	case errors.Is(err, auction.ErrNotOwner):
		return http.StatusForbidden, false
	case errors.Is(err, chain.ErrNoDeposit):
		return http.StatusPaymentRequired, false
	case errors.Is(err, chain.ErrTransferFailed):
		return http.StatusBadGateway, true
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, false
	default:
		return fallback, true
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
}
