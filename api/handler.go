package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gavel/auction"
	"gavel/debug"
	"gavel/metadata"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrNoOwner       = errors.New("no owner address")
	ErrNoBidder      = errors.New("no bidder address")
	ErrNoCaller      = errors.New("no caller address")
	ErrNoMetadataRef = errors.New("no metadata ref")
)

type Handler struct {
	router   *mux.Router
	service  auction.Service
	resolver metadata.Resolver
	logger   log.Logger
}

func NewHandler(service auction.Service, resolver metadata.Resolver, logger log.Logger) *Handler {
	s := &Handler{
		router:   mux.NewRouter(),
		service:  service,
		resolver: resolver,
		logger:   logger,
	}

	s.router.Methods("GET").Path("/-/ping").HandlerFunc(s.handleGetPing)
	s.router.Methods("GET").Path("/-/panic").HandlerFunc(s.handleGetPanic)

	s.router.Methods("POST").Path("/v0/auctions").HandlerFunc(s.handlePostAuction)
	s.router.Methods("GET").Path("/v0/auctions").HandlerFunc(s.handleListAuctions)
	s.router.Methods("GET").Path("/v0/auctions/{id}").HandlerFunc(s.handleGetAuction)
	s.router.Methods("POST").Path("/v0/auctions/{id}/bids").HandlerFunc(s.handlePostBid)
	s.router.Methods("POST").Path("/v0/auctions/{id}/cancel").HandlerFunc(s.handlePostCancel)
	s.router.Methods("POST").Path("/v0/auctions/{id}/withdrawals").HandlerFunc(s.handlePostWithdrawal)
	s.router.Methods("GET").Path("/v0/auctions/{id}/events").HandlerFunc(s.handleGetEvents)
	s.router.Methods("GET").Path("/v0/auctions/{id}/escrows/{bidder}").HandlerFunc(s.handleGetEscrow)
	s.router.Methods("GET").Path("/v0/auctions/{id}/metadata").HandlerFunc(s.handleGetMetadata)

	s.router.Use(
		corsHeadersMiddleware,
		gunzipRequestMiddleware,
		debug.LoggingMiddleware(s.logger),
		debug.MetricsMiddleware,
		panicRecoveryMiddleware(s.logger), // should be after observability middlewares
		// the handler executes here
	)

	return s
}

func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

//
//
//

func (s *Handler) handleGetPing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.service.Ping(ctx); err != nil {
		respondError(w, r, fmt.Errorf("ping: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	height, err := s.service.LatestHeight(ctx)
	if err != nil {
		respondError(w, r, fmt.Errorf("get latest height: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, struct {
		ChainID      string `json:"chain_id"`
		LatestHeight int64  `json:"latest_height"`
	}{
		ChainID:      s.service.ChainID(),
		LatestHeight: height,
	})
}

func (s *Handler) handleGetPanic(w http.ResponseWriter, r *http.Request) {
	panic("requested panic")
}

//
//
//

type auctionResponse struct {
	ID                string `json:"id"`
	ChainID           string `json:"chain_id"`
	Owner             string `json:"owner"`
	BidIncrement      int64  `json:"bid_increment"`
	StartBlock        int64  `json:"start_block"`
	EndBlock          int64  `json:"end_block"`
	MetadataRef       string `json:"metadata_ref,omitempty"`
	Phase             string `json:"phase"`
	HighestBidder     string `json:"highest_bidder,omitempty"`
	HighestBindingBid int64  `json:"highest_binding_bid"`
	OwnerHasWithdrawn bool   `json:"owner_has_withdrawn"`
	CreatedAt         string `json:"created_at"`
}

func (s *Handler) renderAuction(a *auction.Auction, height int64) auctionResponse {
	return auctionResponse{
		ID:                a.ID.String(),
		ChainID:           s.service.ChainID(),
		Owner:             a.Owner,
		BidIncrement:      a.BidIncrement,
		StartBlock:        a.StartBlock,
		EndBlock:          a.EndBlock,
		MetadataRef:       a.MetadataRef,
		Phase:             string(auction.PhaseAt(height, a)),
		HighestBidder:     a.HighestBidder,
		HighestBindingBid: a.HighestBindingBid,
		OwnerHasWithdrawn: a.OwnerHasWithdrawn,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

//
//
//

type createAuctionRequest struct {
	Owner        string `json:"owner"`
	BidIncrement int64  `json:"bid_increment"`
	StartBlock   int64  `json:"start_block"`
	EndBlock     int64  `json:"end_block"`
	MetadataRef  string `json:"metadata_ref"`
}

func (req *createAuctionRequest) validate() error {
	var merr multiError
	merr.addIf(req.Owner == "", ErrNoOwner)
	merr.addIf(req.BidIncrement <= 0, fmt.Errorf("invalid bid increment"))
	merr.addIf(req.StartBlock <= 0, fmt.Errorf("invalid start block"))
	merr.addIf(req.EndBlock <= 0, fmt.Errorf("invalid end block"))
	return merr.yield()
}

// parseCreateAuctionRequest accepts JSON bodies, form posts, and query
// parameters, because auctions get created from browsers as well as from
// proper API clients.
func parseCreateAuctionRequest(ctx context.Context, r *http.Request, logger log.Logger) (createAuctionRequest, error) {
	var req createAuctionRequest

	readBodyJSON := func() error {
		return json.NewDecoder(r.Body).Decode(&req)
	}

	parseValues := func(values url.Values) error {
		if owner := values.Get("owner"); owner != "" {
			req.Owner = owner
		}
		if ref := values.Get("metadata_ref"); ref != "" {
			req.MetadataRef = ref
		}
		for _, field := range []struct {
			key string
			dst *int64
		}{
			{"bid_increment", &req.BidIncrement},
			{"start_block", &req.StartBlock},
			{"end_block", &req.EndBlock},
		} {
			if n, err := strconv.ParseInt(values.Get(field.key), 10, 64); err == nil {
				*field.dst = n
			}
		}
		return nil
	}

	readURLQuery := func() error {
		values, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			return fmt.Errorf("parse query data: %w", err)
		}
		return parseValues(values)
	}

	readFormData := func() error {
		body, err := io.ReadAll(io.LimitReader(r.Body, 10*1024))
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return fmt.Errorf("parse form data: %w", err)
		}
		return parseValues(values)
	}

	var (
		requestTypes = r.Header.Values("content-type")
		acceptTypes  = []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"}
		bestType     = getBestMediaType(logger, requestTypes, acceptTypes...)
	)

	switch {
	case bestType == "application/json":
		if err := readBodyJSON(); err != nil {
			return req, fmt.Errorf("decode JSON create request: %w", err)
		}

	case bestType == "application/x-www-form-urlencoded":
		if err := readFormData(); err != nil {
			return req, fmt.Errorf("decode form create request: %w", err)
		}

	default:
		if err := readBodyJSON(); err != nil {
			level.Debug(logger).Log("msg", "JSON parse failed", "err", err)
		}
		if err := readFormData(); err != nil {
			level.Debug(logger).Log("msg", "form parse failed", "err", err)
		}
		if err := readURLQuery(); err != nil {
			level.Debug(logger).Log("msg", "query parse failed", "err", err)
		}
	}

	if err := req.validate(); err != nil {
		return req, fmt.Errorf("request invalid: %w", err)
	}

	return req, nil
}

func (s *Handler) handlePostAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := parseCreateAuctionRequest(ctx, r, s.logger)
	if err != nil {
		respondError(w, r, fmt.Errorf("parse create request: %w", err), http.StatusBadRequest, s.logger)
		return
	}

	a, err := s.service.CreateAuction(ctx, req.Owner, req.BidIncrement, req.StartBlock, req.EndBlock, req.MetadataRef)
	if err != nil {
		respondError(w, r, fmt.Errorf("create auction: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	height, err := s.service.LatestHeight(ctx)
	if err != nil {
		respondError(w, r, fmt.Errorf("get latest height: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, s.renderAuction(a, height))
}

func (s *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctions, err := s.service.ListAuctions(ctx)
	if err != nil {
		respondError(w, r, fmt.Errorf("list auctions: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	height, err := s.service.LatestHeight(ctx)
	if err != nil {
		respondError(w, r, fmt.Errorf("get latest height: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	resp := struct {
		Auctions []auctionResponse `json:"auctions"`
	}{
		Auctions: []auctionResponse{},
	}
	for _, a := range auctions {
		resp.Auctions = append(resp.Auctions, s.renderAuction(a, height))
	}

	respondOK(w, r, resp)
}

func (s *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	a, err := s.service.Auction(ctx, id)
	if err != nil {
		respondError(w, r, fmt.Errorf("get auction %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	height, err := s.service.LatestHeight(ctx)
	if err != nil {
		respondError(w, r, fmt.Errorf("get latest height: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, s.renderAuction(a, height))
}

//
//
//

type bidRequest struct {
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
	DepositTx []byte `json:"deposit_tx"`
}

func (req *bidRequest) validate() error {
	var merr multiError
	merr.addIf(req.Bidder == "", ErrNoBidder)
	merr.addIf(req.Amount <= 0, fmt.Errorf("invalid amount"))
	return merr.yield()
}

type bidResponse struct {
	AuctionID         string `json:"auction_id"`
	Bidder            string `json:"bidder"`
	Amount            int64  `json:"amount"`
	HighestBidder     string `json:"highest_bidder"`
	HighestBindingBid int64  `json:"highest_binding_bid"`
}

func (s *Handler) handlePostBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode bid request: %w", err), http.StatusBadRequest, s.logger)
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, r, fmt.Errorf("request invalid: %w", err), http.StatusBadRequest, s.logger)
		return
	}

	event, err := s.service.PlaceBid(ctx, id, req.Bidder, req.Amount, req.DepositTx)
	if err != nil {
		respondError(w, r, fmt.Errorf("bid on %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, bidResponse{
		AuctionID:         id,
		Bidder:            req.Bidder,
		Amount:            req.Amount,
		HighestBidder:     event.HighestBidder,
		HighestBindingBid: event.HighestBindingBid,
	})
}

//
//
//

type cancelRequest struct {
	Caller string `json:"caller"`
}

func (s *Handler) handlePostCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode cancel request: %w", err), http.StatusBadRequest, s.logger)
		return
	}

	if req.Caller == "" {
		respondError(w, r, fmt.Errorf("request invalid: %w", ErrNoCaller), http.StatusBadRequest, s.logger)
		return
	}

	if err := s.service.Cancel(ctx, id, req.Caller); err != nil {
		respondError(w, r, fmt.Errorf("cancel %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, struct {
		Result string `json:"result"`
	}{
		Result: "canceled",
	})
}

//
//
//

type withdrawalRequest struct {
	Caller string `json:"caller"`
}

type withdrawalResponse struct {
	AuctionID string `json:"auction_id"`
	Caller    string `json:"caller"`
	Amount    int64  `json:"amount"`
}

func (s *Handler) handlePostWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode withdrawal request: %w", err), http.StatusBadRequest, s.logger)
		return
	}

	if req.Caller == "" {
		respondError(w, r, fmt.Errorf("request invalid: %w", ErrNoCaller), http.StatusBadRequest, s.logger)
		return
	}

	event, err := s.service.Withdraw(ctx, id, req.Caller)
	if err != nil {
		respondError(w, r, fmt.Errorf("withdraw from %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, withdrawalResponse{
		AuctionID: id,
		Caller:    req.Caller,
		Amount:    event.Amount,
	})
}

//
//
//

type eventResponse struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	Actor             string `json:"actor"`
	Amount            int64  `json:"amount,omitempty"`
	HighestBidder     string `json:"highest_bidder,omitempty"`
	HighestBindingBid int64  `json:"highest_binding_bid,omitempty"`
	AuctionCount      int64  `json:"auction_count,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func (s *Handler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	events, err := s.service.Events(ctx, id)
	if err != nil {
		respondError(w, r, fmt.Errorf("events for %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	resp := struct {
		AuctionID string          `json:"auction_id"`
		Events    []eventResponse `json:"events"`
	}{
		AuctionID: id,
		Events:    []eventResponse{},
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse{
			ID:                e.ID.String(),
			Kind:              string(e.Kind),
			Actor:             e.Actor,
			Amount:            e.Amount,
			HighestBidder:     e.HighestBidder,
			HighestBindingBid: e.HighestBindingBid,
			AuctionCount:      e.AuctionCount,
			CreatedAt:         e.CreatedAt.Format(time.RFC3339),
		})
	}

	respondOK(w, r, resp)
}

//
//
//

func (s *Handler) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		id     = mux.Vars(r)["id"]
		bidder = mux.Vars(r)["bidder"]
	)

	balance, err := s.service.EscrowBalance(ctx, id, bidder)
	if err != nil {
		respondError(w, r, fmt.Errorf("escrow for %s/%s: %w", id, bidder, err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, struct {
		AuctionID string `json:"auction_id"`
		Bidder    string `json:"bidder"`
		Balance   int64  `json:"balance"`
	}{
		AuctionID: id,
		Bidder:    bidder,
		Balance:   balance,
	})
}

//
//
//

func (s *Handler) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	a, err := s.service.Auction(ctx, id)
	if err != nil {
		respondError(w, r, fmt.Errorf("get auction %s: %w", id, err), http.StatusInternalServerError, s.logger)
		return
	}

	if a.MetadataRef == "" {
		respondError(w, r, fmt.Errorf("auction %s: %w", id, ErrNoMetadataRef), http.StatusNotFound, s.logger)
		return
	}

	if s.resolver == nil {
		respondError(w, r, fmt.Errorf("no metadata resolver configured"), http.StatusNotImplemented, s.logger)
		return
	}

	doc, err := s.resolver.Resolve(ctx, a.MetadataRef)
	if err != nil {
		respondError(w, r, fmt.Errorf("resolve metadata %s: %w", a.MetadataRef, err), http.StatusBadGateway, s.logger)
		return
	}

	respondOK(w, r, doc)
}

//
//
//

func getBestMediaType(logger log.Logger, inputValues []string, prioritizedValues ...string) string {
	if len(inputValues) <= 0 {
		return ""
	}

	index := map[string]struct{}{}
	slice := []string{}
	for _, v := range inputValues {
		mediaType, _, err := mime.ParseMediaType(v)
		if err != nil {
			level.Debug(logger).Log("msg", "bad request content-type", "value", v, "err", err)
			continue
		}
		index[mediaType] = struct{}{}
		slice = append(slice, mediaType)
	}

	for _, v := range prioritizedValues {
		mediaType, _, err := mime.ParseMediaType(v)
		if err != nil {
			level.Error(logger).Log("msg", "programmer error: invalid content type", "value", v)
			continue
		}
		if _, ok := index[mediaType]; ok {
			return mediaType
		}
	}

	if len(slice) <= 0 {
		return ""
	}

	return slice[0]
}

type multiError struct {
	merr *multierror.Error
}

func (m *multiError) addIf(b bool, err error) {
	if !b {
		return
	}

	if m.merr == nil {
		m.merr = &multierror.Error{ErrorFormat: joinErrorStrings}
	}

	m.merr = multierror.Append(m.merr, err)
}

func (m *multiError) yield() error {
	if m.merr == nil {
		return nil
	}

	return m.merr.ErrorOrNil()
}

func joinErrorStrings(errs []error) string {
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "; ")
}
