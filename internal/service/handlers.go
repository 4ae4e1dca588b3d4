package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/farm"
	"github.com/atmx/yield-farm/internal/model"
	"github.com/atmx/yield-farm/internal/store"
	"github.com/atmx/yield-farm/internal/token"
)

// Request headers carrying the caller identity.
const (
	HeaderCaller    = "X-Caller"    // 0x-prefixed address
	HeaderSignature = "X-Signature" // 0x-prefixed 65-byte signature over keccak256(body)
)

const maxBodyBytes = 1 << 20

var errDevModeDisabled = errors.New("dev mode disabled")

// --- Request/Response types ---

// InitPoolRequest is the JSON body for pool creation.
type InitPoolRequest struct {
	Admin             *common.Address `json:"admin,omitempty"` // defaults to the caller
	TokenMint         common.Address  `json:"token_mint"`
	RewardCoefficient uint64          `json:"reward_coefficient"`
	MaxDepositPerUser uint64          `json:"max_deposit_per_user"`
	TotalMaxLiquidity uint64          `json:"total_max_liquidity"`
	AdvanceBaseline   bool            `json:"advance_baseline"`
}

// StakeRequest is the JSON body for POST /pools/{poolID}/stake.
type StakeRequest struct {
	Amount        uint64          `json:"amount"`
	AutoCompound  bool            `json:"auto_compound"`
	LockupSeconds *uint64         `json:"lockup_seconds,omitempty"`
	MintAuthority *common.Address `json:"mint_authority,omitempty"` // defaults to the farm mint authority
}

// WithdrawRequest is the JSON body for POST /pools/{poolID}/withdraw.
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// FundRequest is the JSON body for POST /dev/fund.
type FundRequest struct {
	Owner  common.Address `json:"owner"`
	Mint   common.Address `json:"mint"`
	Amount uint64         `json:"amount"`
}

// StakeResponse is returned from a successful stake.
type StakeResponse struct {
	EventID  string            `json:"event_id"`
	Reward   uint64            `json:"reward"`
	Position model.Position    `json:"position"`
	Pool     model.PoolSummary `json:"pool"`
}

// WithdrawResponse is returned from a successful withdrawal.
type WithdrawResponse struct {
	EventID  string            `json:"event_id"`
	Amount   uint64            `json:"amount"`
	Fee      uint64            `json:"fee"`
	Net      uint64            `json:"net"`
	Position model.Position    `json:"position"`
	Pool     model.PoolSummary `json:"pool"`
}

// Quote is a reward preview.
type Quote struct {
	TimeMultiplier   uint64          `json:"time_multiplier"`
	AmountMultiplier uint64          `json:"amount_multiplier"`
	Boost            decimal.Decimal `json:"boost"` // combined multiplier, 1.00 = none
	Reward           uint64          `json:"reward"`
}

// Routes registers the pool API on r. Mount it under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Get("/pools", s.ListPools)
	r.Post("/pools", s.CreatePool)
	r.Route("/pools/{poolID}", func(r chi.Router) {
		r.Get("/", s.GetPool)
		r.Get("/events", s.GetEvents)
		r.Get("/positions", s.ListPositions)
		r.Get("/positions/{user}", s.GetPosition)
		r.Post("/stake", s.HandleStake)
		r.Post("/withdraw", s.HandleWithdraw)
		r.Post("/pause", s.HandleTogglePause)
	})
	r.Get("/reward/quote", s.GetQuote)
	r.Post("/dev/fund", s.HandleFund)
}

// --- HTTP Handlers ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req InitPoolRequest
	caller, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}
	if req.TokenMint == (common.Address{}) {
		writeError(w, "token_mint is required", http.StatusBadRequest)
		return
	}

	admin := caller
	if req.Admin != nil {
		admin = *req.Admin
	}

	pool, err := s.InitializePool(r.Context(), farm.InitParams{
		Admin:             admin,
		TokenMint:         req.TokenMint,
		RewardCoefficient: req.RewardCoefficient,
		MaxDepositPerUser: req.MaxDepositPerUser,
		TotalMaxLiquidity: req.TotalMaxLiquidity,
		AdvanceBaseline:   req.AdvanceBaseline,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(*pool))
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	out := make([]model.PoolSummary, 0, len(pools))
	for _, p := range pools {
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	pool, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(*pool))
}

// ListPositions handles GET /api/v1/pools/{poolID}/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		writeErr(w, err)
		return
	}
	positions, err := s.store.ListPositions(ctx, poolID)
	if err != nil {
		writeError(w, "failed to list positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /api/v1/pools/{poolID}/positions/{user}
// A user who never staked gets an empty position.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	user, ok := addressParam(w, r, "user")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		writeErr(w, err)
		return
	}
	pos, err := s.store.GetPosition(ctx, poolID, user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetEvents handles GET /api/v1/pools/{poolID}/events
// Returns the pool's event log oldest first.
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		writeErr(w, err)
		return
	}
	events, err := s.store.GetEvents(ctx, poolID)
	if err != nil {
		writeError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleStake handles POST /api/v1/pools/{poolID}/stake
func (s *Service) HandleStake(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	var req StakeRequest
	caller, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}
	if req.Amount == 0 {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	auth := authority.Capability{Caller: caller, MintAuthority: authority.FarmMintAuthority()}
	if req.MintAuthority != nil {
		auth.MintAuthority = *req.MintAuthority
	}

	tr, err := s.Stake(r.Context(), poolID, auth, farm.StakeParams{
		Amount:       req.Amount,
		AutoCompound: req.AutoCompound,
		Lockup:       req.LockupSeconds,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StakeResponse{
		EventID:  tr.Event.ID,
		Reward:   tr.Reward,
		Position: tr.Position,
		Pool:     summarize(tr.Pool),
	})
}

// HandleWithdraw handles POST /api/v1/pools/{poolID}/withdraw
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	var req WithdrawRequest
	caller, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}
	if req.Amount == 0 {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	tr, err := s.Withdraw(r.Context(), poolID, caller, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WithdrawResponse{
		EventID:  tr.Event.ID,
		Amount:   req.Amount,
		Fee:      tr.Fee,
		Net:      tr.Net,
		Position: tr.Position,
		Pool:     summarize(tr.Pool),
	})
}

// HandleTogglePause handles POST /api/v1/pools/{poolID}/pause
// The body is ignored but still covered by the signature.
func (s *Service) HandleTogglePause(w http.ResponseWriter, r *http.Request) {
	poolID, ok := addressParam(w, r, "poolID")
	if !ok {
		return
	}
	caller, ok := s.decodeSigned(w, r, nil)
	if !ok {
		return
	}

	pool, err := s.TogglePause(r.Context(), poolID, caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(*pool))
}

// GetQuote handles GET /api/v1/reward/quote
//
// Query: amount, and either pool (uses its coefficient and baseline) or
// coefficient + last_update. stake_time defaults to now.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := parseUint(q.Get("amount"), true)
	if err != nil {
		writeError(w, "amount: "+err.Error(), http.StatusBadRequest)
		return
	}
	stakeTime := s.now().Unix()
	if v := q.Get("stake_time"); v != "" {
		if stakeTime, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, "stake_time must be an integer", http.StatusBadRequest)
			return
		}
	}

	var coefficient uint64
	var lastUpdate int64
	if raw := q.Get("pool"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, "pool must be a hex address", http.StatusBadRequest)
			return
		}
		pool, err := s.store.GetPool(r.Context(), common.HexToAddress(raw))
		if err != nil {
			writeErr(w, err)
			return
		}
		coefficient, lastUpdate = pool.RewardCoefficient, pool.LastUpdate
	} else {
		if coefficient, err = parseUint(q.Get("coefficient"), true); err != nil {
			writeError(w, "coefficient: "+err.Error(), http.StatusBadRequest)
			return
		}
		if v := q.Get("last_update"); v != "" {
			if lastUpdate, err = strconv.ParseInt(v, 10, 64); err != nil {
				writeError(w, "last_update must be an integer", http.StatusBadRequest)
				return
			}
		}
	}

	quote, err := s.Quote(amount, stakeTime, lastUpdate, coefficient)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// HandleFund handles POST /api/v1/dev/fund
func (s *Service) HandleFund(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		writeError(w, "not found", http.StatusNotFound)
		return
	}
	var req FundRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Owner == (common.Address{}) || req.Mint == (common.Address{}) || req.Amount == 0 {
		writeError(w, "owner, mint and a positive amount are required", http.StatusBadRequest)
		return
	}

	balance, err := s.Fund(r.Context(), req.Owner, req.Mint, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": authority.TokenAccount(req.Owner, req.Mint),
		"balance": balance,
	})
}

// --- helpers ---

// decodeSigned reads the body, authenticates the caller over the raw bytes
// and decodes the body into v (unless v is nil or the body is empty).
func (s *Service) decodeSigned(w http.ResponseWriter, r *http.Request, v any) (common.Address, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return common.Address{}, false
	}

	caller, err := s.authenticate(r, body)
	if err != nil {
		slog.Info("request authentication failed", "path", r.URL.Path, "err", err)
		writeErr(w, err)
		return common.Address{}, false
	}

	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return common.Address{}, false
		}
	}
	return caller, true
}

func (s *Service) authenticate(r *http.Request, body []byte) (common.Address, error) {
	raw := r.Header.Get(HeaderCaller)
	if !common.IsHexAddress(raw) {
		return common.Address{}, authority.ErrMissingCaller
	}
	caller := common.HexToAddress(raw)

	var sig []byte
	if h := r.Header.Get(HeaderSignature); h != "" {
		var err error
		if sig, err = hexutil.Decode(h); err != nil {
			return common.Address{}, authority.ErrBadSignature
		}
	}
	if err := s.verifier.Verify(caller, body, sig); err != nil {
		return common.Address{}, err
	}
	return caller, nil
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		writeError(w, name+" must be a hex address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseUint(v string, required bool) (uint64, error) {
	if v == "" {
		if required {
			return 0, errors.New("is required")
		}
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.New("must be an unsigned integer")
	}
	return n, nil
}

// summarize attaches derived ratios to a pool for API responses.
func summarize(p model.Pool) model.PoolSummary {
	util := decimal.Zero
	if p.TotalMaxLiquidity > 0 {
		util = units(p.TotalLiquidity).Div(units(p.TotalMaxLiquidity)).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return model.PoolSummary{Pool: p, Utilization: util}
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// percent converts a multiplier in hundredths (101) to a ratio (1.01).
func percent(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -2)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, authority.ErrMissingCaller), errors.Is(err, authority.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, farm.ErrUnauthorized),
		errors.Is(err, farm.ErrInvalidAuthority),
		errors.Is(err, token.ErrInvalidAuthority):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errDevModeDisabled):
		return http.StatusNotFound
	case errors.Is(err, farm.ErrArithmeticOverflow), errors.Is(err, token.ErrBalanceOverflow):
		return http.StatusInternalServerError
	case farm.IsRejection(err),
		errors.Is(err, store.ErrPoolExists),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrAccountConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with its mapped status. Unclassified errors are
// logged and reported as internal.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, farm.ErrArithmeticOverflow) {
		slog.Error("internal error", "err", err)
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
