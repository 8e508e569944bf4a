package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"gavel/auction"
	"gavel/chain"
	"gavel/store"

	"github.com/go-kit/log"
)

func TestGetBestMediaType(t *testing.T) {
	for i, testcase := range []struct {
		inputValues       []string
		prioritizedValues []string
		wantValue         string
	}{
		{nil, nil, ""},
		{nil, []string{"text/plain"}, ""},
		{[]string{}, []string{"text/plain"}, ""},
		{[]string{"application/json"}, []string{}, "application/json"},
		{[]string{"application/json"}, []string{"text/plain"}, "application/json"},
		{[]string{"application/json; charset=utf-8"}, []string{"text/plain"}, "application/json"},
		{[]string{"application/json; charset=utf-8"}, []string{"application/json"}, "application/json"},
		{[]string{"text/plain", "application/json; charset=utf-8"}, []string{"application/json"}, "application/json"},
		{[]string{"text/plain", "application/json; charset=utf-8"}, []string{"application/json; charset=utf-16"}, "application/json"},
	} {
		t.Run(strconv.Itoa(i+1), func(t *testing.T) {
			logger := log.NewNopLogger()
			want := testcase.wantValue
			have := getBestMediaType(logger, testcase.inputValues, testcase.prioritizedValues...)
			if want != have {
				t.Errorf("%v, %v: want %q, have %q", testcase.inputValues, testcase.prioritizedValues, want, have)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	for _, testcase := range []struct {
		err      error
		wantCode int
		wantTrue bool
	}{
		{nil, http.StatusOK, false},
		{auction.ErrInvalidConfig, http.StatusBadRequest, false},
		{auction.ErrAuctionNotActive, http.StatusTooEarly, false},
		{auction.ErrAuctionNotConcluded, http.StatusTooEarly, false},
		{auction.ErrBidTooLow, http.StatusConflict, false},
		{auction.ErrAlreadyCanceled, http.StatusConflict, false},
		{auction.ErrNothingToWithdraw, http.StatusConflict, false},
		{auction.ErrOwnerCannotBid, http.StatusForbidden, false},
		{auction.ErrNotOwner, http.StatusForbidden, false},
		{chain.ErrNoDeposit, http.StatusPaymentRequired, false},
		{chain.ErrTransferFailed, http.StatusBadGateway, true},
		{store.ErrNotFound, http.StatusNotFound, false},
		{errors.New("something else"), http.StatusInternalServerError, true},
		{fmt.Errorf("wrapped: %w", auction.ErrBidTooLow), http.StatusConflict, false},
	} {
		t.Run(fmt.Sprintf("%v", testcase.err), func(t *testing.T) {
			code, trueError := classifyError(testcase.err, http.StatusInternalServerError)
			if want, have := testcase.wantCode, code; want != have {
				t.Errorf("code: want %d, have %d", want, have)
			}
			if want, have := testcase.wantTrue, trueError; want != have {
				t.Errorf("true error: want %v, have %v", want, have)
			}
		})
	}
}
