package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/farm"
	"github.com/atmx/yield-farm/internal/model"
	"github.com/atmx/yield-farm/internal/service"
	"github.com/atmx/yield-farm/internal/store"
	"github.com/atmx/yield-farm/internal/token"
)

const day = 86400

var (
	genesis  = time.Unix(1_700_000_000, 0)
	admin    = common.HexToAddress("0xad")
	alice    = common.HexToAddress("0xa1")
	bob      = common.HexToAddress("0xb0")
	mint     = common.HexToAddress("0xa55e7")
	treasury = common.HexToAddress("0x7ea5")
)

type testEnv struct {
	svc    *service.Service
	st     store.Store
	bank   *token.MemoryBank
	router chi.Router
	now    time.Time
}

// failingStore fails every Commit while fail is set.
type failingStore struct {
	*store.MemoryStore
	fail bool
}

func (f *failingStore) Commit(ctx context.Context, p *model.Pool, pos *model.Position, ev *model.Event) error {
	if f.fail {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Commit(ctx, p, pos, ev)
}

// newTestEnv creates a test Service with in-memory store and bank, a
// fixed clock at genesis and dev funding enabled.
func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, store.NewMemoryStore(), authority.TrustingVerifier{})
}

func newTestEnvWith(t *testing.T, st store.Store, verifier authority.Verifier) *testEnv {
	t.Helper()
	bank := token.NewMemoryBank()
	bank.CreateMint(authority.FarmMint(), authority.FarmMintAuthority())

	env := &testEnv{st: st, bank: bank, now: genesis}
	env.svc = service.NewService(st, bank, farm.NewEngine(treasury, authority.FarmMint()), verifier, nil)
	env.svc.SetClock(func() time.Time { return env.now })
	env.svc.EnableDevMode()

	r := chi.NewRouter()
	r.Route("/api/v1", env.svc.Routes)
	env.router = r
	return env
}

func (e *testEnv) advance(seconds int64) {
	e.now = e.now.Add(time.Duration(seconds) * time.Second)
}

func (e *testEnv) do(t *testing.T, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if caller != (common.Address{}) {
		req.Header.Set(service.HeaderCaller, caller.Hex())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) balance(t *testing.T, acct common.Address) uint64 {
	t.Helper()
	b, err := e.bank.Balance(context.Background(), acct)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// seedPool creates a pool for mint administered by admin.
func seedPool(t *testing.T, e *testEnv, coefficient uint64) model.PoolSummary {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/pools", admin, service.InitPoolRequest{
		TokenMint:         mint,
		RewardCoefficient: coefficient,
		MaxDepositPerUser: 1000,
		TotalMaxLiquidity: 5000,
	})
	expectStatus(t, w, http.StatusCreated)
	return decode[model.PoolSummary](t, w)
}

func fund(t *testing.T, e *testEnv, owner common.Address, amount uint64) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/dev/fund", common.Address{}, service.FundRequest{
		Owner: owner, Mint: mint, Amount: amount,
	})
	expectStatus(t, w, http.StatusOK)
}

func poolPath(p model.PoolSummary, suffix string) string {
	return "/api/v1/pools/" + p.ID.Hex() + suffix
}

func u64(v uint64) *uint64 { return &v }

// --- Pool creation ---

func TestCreatePool(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)

	if pool.ID != authority.PoolAddress(mint) {
		t.Errorf("pool id should derive from mint, got %s", pool.ID.Hex())
	}
	if pool.Admin != admin {
		t.Errorf("admin should default to caller, got %s", pool.Admin.Hex())
	}
	if pool.FeeRate != 2 || pool.TotalLiquidity != 0 || pool.IsPaused {
		t.Errorf("unexpected initial pool %+v", pool.Pool)
	}
	if pool.LastUpdate != genesis.Unix() {
		t.Errorf("expected last_update %d, got %d", genesis.Unix(), pool.LastUpdate)
	}

	events := decode[[]model.Event](t, env.do(t, "GET", poolPath(pool, "/events"), common.Address{}, nil))
	if len(events) != 1 || events[0].Kind != model.EventPoolInitialized || events[0].Coefficient != 1 {
		t.Errorf("expected one pool_initialized event, got %+v", events)
	}
	if events[0].ID == "" {
		t.Error("event id should be set")
	}
}

func TestCreatePool_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	seedPool(t, env, 1)

	w := env.do(t, "POST", "/api/v1/pools", bob, service.InitPoolRequest{TokenMint: mint, RewardCoefficient: 9})
	expectStatus(t, w, http.StatusConflict)

	p, _ := env.st.GetPool(context.Background(), authority.PoolAddress(mint))
	if p.Admin != admin || p.RewardCoefficient != 1 {
		t.Errorf("duplicate init must not overwrite pool, got %+v", p)
	}
}

func TestCreatePool_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/pools", common.Address{}, service.InitPoolRequest{TokenMint: mint})
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, "POST", "/api/v1/pools", admin, service.InitPoolRequest{})
	expectStatus(t, w, http.StatusBadRequest)
}

// --- Stake ---

func TestStake_MintsRewardAndMovesDeposit(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)
	env.advance(day)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 500})
	expectStatus(t, w, http.StatusOK)
	resp := decode[service.StakeResponse](t, w)

	// 500 * 101 * 100 * 1 / 10000
	if resp.Reward != 505 {
		t.Errorf("expected reward 505, got %d", resp.Reward)
	}
	if resp.Position.Amount != 500 || resp.Position.StakeTime != env.now.Unix() {
		t.Errorf("unexpected position %+v", resp.Position)
	}
	if resp.Pool.TotalLiquidity != 500 || resp.Pool.TotalRewardsDistributed != 505 {
		t.Errorf("unexpected pool %+v", resp.Pool.Pool)
	}
	if resp.Pool.TopStaker != alice || resp.Pool.TopStakerAmount != 500 {
		t.Errorf("alice should be top staker, got %s/%d", resp.Pool.TopStaker.Hex(), resp.Pool.TopStakerAmount)
	}
	if !resp.Pool.Utilization.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected utilization 10, got %s", resp.Pool.Utilization)
	}

	if got := env.balance(t, pool.Vault); got != 500 {
		t.Errorf("vault should hold 500, got %d", got)
	}
	if got := env.balance(t, authority.TokenAccount(alice, mint)); got != 500 {
		t.Errorf("alice should keep 500 tokens, got %d", got)
	}
	if got := env.balance(t, authority.TokenAccount(alice, authority.FarmMint())); got != 505 {
		t.Errorf("alice should hold 505 farm tokens, got %d", got)
	}

	events := decode[[]model.Event](t, env.do(t, "GET", poolPath(pool, "/events"), common.Address{}, nil))
	if len(events) != 2 || events[1].Kind != model.EventStaked || events[1].Reward != 505 || events[1].User != alice {
		t.Errorf("expected staked event, got %+v", events)
	}
}

func TestStake_AutoCompound(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 2)
	fund(t, env, alice, 1000)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 400, AutoCompound: true})
	expectStatus(t, w, http.StatusOK)
	resp := decode[service.StakeResponse](t, w)

	// 400 * 100 * 100 * 2 / 10000 = 800, added to the position only.
	if resp.Reward != 800 || resp.Position.Amount != 1200 {
		t.Errorf("expected reward 800 and position 1200, got %d and %d", resp.Reward, resp.Position.Amount)
	}
	if resp.Pool.TotalLiquidity != 400 || resp.Pool.TotalCompounded != 800 {
		t.Errorf("liquidity should exclude the compounded reward, got %d / %d",
			resp.Pool.TotalLiquidity, resp.Pool.TotalCompounded)
	}
	if supply := env.bank.Supply(authority.FarmMint()); supply != 0 {
		t.Errorf("compounding must not mint, supply %d", supply)
	}
}

func TestStake_InvalidMintAuthority(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)

	bogus := common.HexToAddress("0xbad")
	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100, MintAuthority: &bogus})
	expectStatus(t, w, http.StatusForbidden)

	pos, _ := env.st.GetPosition(context.Background(), pool.ID, alice)
	if pos.Amount != 0 {
		t.Errorf("rejected stake must not change position, got %d", pos.Amount)
	}
	if got := env.balance(t, authority.TokenAccount(alice, mint)); got != 1000 {
		t.Errorf("rejected stake must not move tokens, got %d", got)
	}

	// Compounding never mints, so the authority is not consulted.
	w = env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100, AutoCompound: true, MintAuthority: &bogus})
	expectStatus(t, w, http.StatusOK)
}

func TestStake_Validation(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 0})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, "POST", "/api/v1/pools/not-an-address/stake", alice, service.StakeRequest{Amount: 1})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, "POST", "/api/v1/pools/"+bob.Hex()+"/stake", alice, service.StakeRequest{Amount: 1})
	expectStatus(t, w, http.StatusNotFound)
}

func TestStake_UnfundedUserLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100})
	expectStatus(t, w, http.StatusConflict)

	p, _ := env.st.GetPool(context.Background(), pool.ID)
	if p.TotalLiquidity != 0 || p.TotalRewardsDistributed != 0 {
		t.Errorf("pool must be untouched, got %+v", p)
	}
	events, _ := env.st.GetEvents(context.Background(), pool.ID)
	if len(events) != 1 {
		t.Errorf("no staked event expected, got %d events", len(events))
	}
	if supply := env.bank.Supply(authority.FarmMint()); supply != 0 {
		t.Errorf("no reward may be minted, supply %d", supply)
	}
}

func TestStake_Limits(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 2000)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 1001})
	expectStatus(t, w, http.StatusConflict)
	if got := decode[map[string]string](t, w)["error"]; got != farm.ErrUserDepositLimitExceeded.Error() {
		t.Errorf("unexpected error %q", got)
	}

	// Exactly at the per-user cap is allowed.
	w = env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 1000})
	expectStatus(t, w, http.StatusOK)

	// Fill the pool to its cap with other users, then overflow it.
	for _, u := range []string{"0xc1", "0xc2", "0xc3", "0xc4"} {
		user := common.HexToAddress(u)
		fund(t, env, user, 1000)
		w = env.do(t, "POST", poolPath(pool, "/stake"), user, service.StakeRequest{Amount: 1000})
		expectStatus(t, w, http.StatusOK)
	}
	fund(t, env, bob, 10)
	w = env.do(t, "POST", poolPath(pool, "/stake"), bob, service.StakeRequest{Amount: 1})
	expectStatus(t, w, http.StatusConflict)
	if got := decode[map[string]string](t, w)["error"]; got != farm.ErrPoolLiquidityExceeded.Error() {
		t.Errorf("unexpected error %q", got)
	}

	p, _ := env.st.GetPool(context.Background(), pool.ID)
	if p.TotalLiquidity != 5000 {
		t.Errorf("pool should sit at its cap, got %d", p.TotalLiquidity)
	}
}

func TestStake_AdvanceBaseline(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/v1/pools", admin, service.InitPoolRequest{
		TokenMint:         mint,
		RewardCoefficient: 1,
		MaxDepositPerUser: 1000,
		TotalMaxLiquidity: 5000,
		AdvanceBaseline:   true,
	})
	expectStatus(t, w, http.StatusCreated)
	pool := decode[model.PoolSummary](t, w)
	fund(t, env, alice, 1000)

	env.advance(2 * day)
	first := decode[service.StakeResponse](t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}))
	// 100 * 102 * 100 / 10000
	if first.Reward != 102 || first.Pool.LastUpdate != env.now.Unix() {
		t.Errorf("expected reward 102 and moved baseline, got %d / %d", first.Reward, first.Pool.LastUpdate)
	}

	second := decode[service.StakeResponse](t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}))
	// Baseline moved to now, so only the amount counts: 200 * 100 * 100 / 10000
	if second.Reward != 200 {
		t.Errorf("expected reward 200 after baseline reset, got %d", second.Reward)
	}
}

// --- Withdraw ---

func TestWithdraw_FeeToTreasury(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 500}), http.StatusOK)

	w := env.do(t, "POST", poolPath(pool, "/withdraw"), alice, service.WithdrawRequest{Amount: 300})
	expectStatus(t, w, http.StatusOK)
	resp := decode[service.WithdrawResponse](t, w)

	if resp.Fee != 6 || resp.Net != 294 {
		t.Errorf("expected fee 6 / net 294, got %d / %d", resp.Fee, resp.Net)
	}
	if resp.Position.Amount != 200 || resp.Pool.TotalLiquidity != 200 || resp.Pool.TotalFeesCollected != 6 {
		t.Errorf("unexpected records: position %d, pool %+v", resp.Position.Amount, resp.Pool.Pool)
	}

	if got := env.balance(t, authority.TokenAccount(treasury, mint)); got != 6 {
		t.Errorf("treasury should hold 6, got %d", got)
	}
	if got := env.balance(t, authority.TokenAccount(alice, mint)); got != 794 {
		t.Errorf("alice should hold 500 + 294, got %d", got)
	}
	if got := env.balance(t, pool.Vault); got != 200 {
		t.Errorf("vault should hold 200, got %d", got)
	}

	events, _ := env.st.GetEvents(context.Background(), pool.ID)
	last := events[len(events)-1]
	if last.Kind != model.EventWithdrawn || last.Amount != 300 || last.Fee != 6 {
		t.Errorf("unexpected withdrawn event %+v", last)
	}
}

func TestWithdraw_Lockup(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)

	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100, LockupSeconds: u64(3600)})
	expectStatus(t, w, http.StatusOK)
	if got := decode[service.StakeResponse](t, w).Position.UnlockTime; got != genesis.Unix()+3600 {
		t.Errorf("expected unlock at %d, got %d", genesis.Unix()+3600, got)
	}

	env.advance(10)
	w = env.do(t, "POST", poolPath(pool, "/withdraw"), alice, service.WithdrawRequest{Amount: 50})
	expectStatus(t, w, http.StatusConflict)

	env.advance(3590)
	w = env.do(t, "POST", poolPath(pool, "/withdraw"), alice, service.WithdrawRequest{Amount: 50})
	expectStatus(t, w, http.StatusOK)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}), http.StatusOK)

	w := env.do(t, "POST", poolPath(pool, "/withdraw"), alice, service.WithdrawRequest{Amount: 101})
	expectStatus(t, w, http.StatusConflict)

	// Bob never staked.
	w = env.do(t, "POST", poolPath(pool, "/withdraw"), bob, service.WithdrawRequest{Amount: 1})
	expectStatus(t, w, http.StatusConflict)
}

// --- Pause ---

func TestTogglePause(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}), http.StatusOK)

	w := env.do(t, "POST", poolPath(pool, "/pause"), bob, nil)
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, "POST", poolPath(pool, "/pause"), admin, nil)
	expectStatus(t, w, http.StatusOK)
	if !decode[model.PoolSummary](t, w).IsPaused {
		t.Fatal("pool should be paused")
	}

	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/withdraw"), alice, service.WithdrawRequest{Amount: 10}), http.StatusConflict)

	w = env.do(t, "POST", poolPath(pool, "/pause"), admin, nil)
	expectStatus(t, w, http.StatusOK)
	if decode[model.PoolSummary](t, w).IsPaused {
		t.Fatal("pool should be resumed")
	}
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}), http.StatusOK)

	events, _ := env.st.GetEvents(context.Background(), pool.ID)
	if len(events) != 3 {
		t.Errorf("pause must not emit events, got %d", len(events))
	}
}

// --- Atomicity ---

func TestStake_RevertsTokensWhenPersistFails(t *testing.T) {
	fs := &failingStore{MemoryStore: store.NewMemoryStore()}
	env := newTestEnvWith(t, fs, authority.TrustingVerifier{})
	pool := seedPool(t, env, 1)
	fund(t, env, alice, 1000)

	fs.fail = true
	w := env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 500})
	expectStatus(t, w, http.StatusInternalServerError)

	if got := env.balance(t, authority.TokenAccount(alice, mint)); got != 1000 {
		t.Errorf("deposit should be refunded, alice has %d", got)
	}
	if got := env.balance(t, pool.Vault); got != 0 {
		t.Errorf("vault should be empty, got %d", got)
	}
	if supply := env.bank.Supply(authority.FarmMint()); supply != 0 {
		t.Errorf("reward mint should be burned back, supply %d", supply)
	}

	fs.fail = false
	p, _ := env.st.GetPool(context.Background(), pool.ID)
	if p.TotalLiquidity != 0 {
		t.Errorf("pool must be untouched, got %d", p.TotalLiquidity)
	}
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 500}), http.StatusOK)
}

// --- Signed requests ---

func TestSignedRequests(t *testing.T) {
	env := newTestEnvWith(t, store.NewMemoryStore(), authority.SignatureVerifier{})

	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	caller := crypto.PubkeyToAddress(key.PublicKey)

	body, _ := json.Marshal(service.InitPoolRequest{TokenMint: mint, RewardCoefficient: 1, MaxDepositPerUser: 10, TotalMaxLiquidity: 10})
	send := func(claimed common.Address, sig []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/pools", bytes.NewReader(body))
		req.Header.Set(service.HeaderCaller, claimed.Hex())
		if sig != nil {
			req.Header.Set(service.HeaderSignature, hexutil.Encode(sig))
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	expectStatus(t, send(caller, nil), http.StatusUnauthorized)

	forged, _ := authority.Sign(other, body)
	expectStatus(t, send(caller, forged), http.StatusUnauthorized)

	sig, _ := authority.Sign(key, body)
	w := send(caller, sig)
	expectStatus(t, w, http.StatusCreated)
	if got := decode[model.PoolSummary](t, w).Admin; got != caller {
		t.Errorf("admin should be the signer, got %s", got.Hex())
	}
}

// --- Queries ---

func TestGetPosition(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 1)

	w := env.do(t, "GET", poolPath(pool, "/positions/"+alice.Hex()), common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	pos := decode[model.Position](t, w)
	if pos.Amount != 0 || pos.Owner != alice || pos.Pool != pool.ID {
		t.Errorf("expected empty position, got %+v", pos)
	}

	w = env.do(t, "GET", "/api/v1/pools/"+bob.Hex()+"/positions/"+alice.Hex(), common.Address{}, nil)
	expectStatus(t, w, http.StatusNotFound)

	fund(t, env, alice, 100)
	expectStatus(t, env.do(t, "POST", poolPath(pool, "/stake"), alice, service.StakeRequest{Amount: 100}), http.StatusOK)
	positions := decode[[]model.Position](t, env.do(t, "GET", poolPath(pool, "/positions"), common.Address{}, nil))
	if len(positions) != 1 || positions[0].Amount != 100 {
		t.Errorf("expected alice's position, got %+v", positions)
	}
}

func TestListPools(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/v1/pools", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]model.PoolSummary](t, w); len(got) != 0 {
		t.Errorf("expected no pools, got %d", len(got))
	}

	seedPool(t, env, 1)
	if got := decode[[]model.PoolSummary](t, env.do(t, "GET", "/api/v1/pools", common.Address{}, nil)); len(got) != 1 {
		t.Errorf("expected one pool, got %d", len(got))
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/reward/quote?amount=10000&coefficient=1&stake_time=86400&last_update=0", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	q := decode[service.Quote](t, w)
	if q.TimeMultiplier != 101 || q.AmountMultiplier != 110 {
		t.Errorf("expected multipliers 101/110, got %d/%d", q.TimeMultiplier, q.AmountMultiplier)
	}
	if q.Reward != 11110 {
		t.Errorf("expected reward 11110, got %d", q.Reward)
	}
	if !q.Boost.Equal(decimal.RequireFromString("1.111")) {
		t.Errorf("expected boost 1.111, got %s", q.Boost)
	}

	maxU := strconv.FormatUint(math.MaxUint64, 10)
	w = env.do(t, "GET", "/api/v1/reward/quote?amount="+maxU+"&coefficient="+maxU, common.Address{}, nil)
	expectStatus(t, w, http.StatusInternalServerError)

	w = env.do(t, "GET", "/api/v1/reward/quote?coefficient=1", common.Address{}, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestQuote_AgainstPool(t *testing.T) {
	env := newTestEnv(t)
	pool := seedPool(t, env, 3)
	env.advance(2 * day)

	w := env.do(t, "GET", "/api/v1/reward/quote?amount=100&pool="+pool.ID.Hex(), common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	// 100 * 102 * 100 * 3 / 10000
	if got := decode[service.Quote](t, w).Reward; got != 306 {
		t.Errorf("expected 306, got %d", got)
	}
}

func TestDevFund_DisabledByDefault(t *testing.T) {
	bank := token.NewMemoryBank()
	svc := service.NewService(store.NewMemoryStore(), bank, farm.NewEngine(treasury, authority.FarmMint()), authority.TrustingVerifier{}, nil)
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	body, _ := json.Marshal(service.FundRequest{Owner: alice, Mint: mint, Amount: 10})
	req := httptest.NewRequest("POST", "/api/v1/dev/fund", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusNotFound)
}
