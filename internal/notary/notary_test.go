package notary_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/starnotary/internal/block"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"github.com/jmerrifield20/starnotary/internal/challenge"
	"github.com/jmerrifield20/starnotary/internal/notary"
	"github.com/jmerrifield20/starnotary/pkg/signature"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Helpers ────────────────────────────────────────────────────────────────

type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingMetrics struct {
	mu          sync.Mutex
	submissions map[string]int
	appends     int
	skips       int
}

func (m *countingMetrics) RecordSubmission(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[result]++
}

func (m *countingMetrics) RecordAppend(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
}

func (m *countingMetrics) RecordDecodeSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips++
}

type fixture struct {
	svc     *notary.Service
	chain   *chain.Chain
	clock   *simClock
	metrics *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &simClock{t: time.Unix(1_700_000_000, 0)}
	c := chain.New(chain.NewMemoryBackend(), chain.WithClock(clk.Now))
	iss := challenge.NewIssuer(challenge.WithClock(clk.Now))
	v, err := signature.NewVerifier()
	if err != nil {
		t.Fatal(err)
	}
	m := &countingMetrics{submissions: make(map[string]int)}
	svc, err := notary.New(ctx, c, iss, v,
		notary.WithLogger(zap.NewNop()),
		notary.WithMetrics(m),
		notary.WithDecodeWorkers(3),
	)
	if err != nil {
		t.Fatalf("notary.New: %v", err)
	}
	return &fixture{svc: svc, chain: c, clock: clk, metrics: m}
}

func newKey(t *testing.T) *signature.PrivateKey {
	t.Helper()
	k, err := signature.GenerateKey(signature.SchemeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func star(story string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{
		"ra":    "16h 29m 1.0s",
		"dec":   "-26° 29' 24.9",
		"story": story,
	})
	return b
}

// notarize runs the full challenge → sign → submit flow.
func (f *fixture) notarize(t *testing.T, key *signature.PrivateKey, s json.RawMessage) *block.Record {
	t.Helper()
	ch, err := f.svc.RequestChallenge(key.Address())
	if err != nil {
		t.Fatal(err)
	}
	sig, err := key.Sign([]byte(ch.Token))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, s)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return rec
}

func (f *fixture) height(t *testing.T) int {
	t.Helper()
	h, err := f.svc.Height(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestNew_seedsGenesis(t *testing.T) {
	f := newFixture(t)
	if h := f.height(t); h != 0 {
		t.Fatalf("expected height 0, got %d", h)
	}

	g, err := f.svc.GetByHeight(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.svc.Decode(g)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Genesis {
		t.Errorf("genesis payload: got %+v", p)
	}
}

func TestSubmit_commitsLinkedRecord(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	tipBefore, _ := f.svc.Tip(ctx)

	rec := f.notarize(t, key, star("first"))

	if rec.Height != 1 {
		t.Errorf("Height: got %d, want 1", rec.Height)
	}
	if rec.PreviousHash != tipBefore {
		t.Errorf("PreviousHash: got %q, want %q", rec.PreviousHash, tipBefore)
	}
	if h := f.height(t); h != 1 {
		t.Errorf("height after submit: got %d, want 1", h)
	}

	p, err := f.svc.Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner != key.Address() {
		t.Errorf("Owner: got %q, want %q", p.Owner, key.Address())
	}
	if f.metrics.submissions[notary.ResultCommitted] != 1 {
		t.Errorf("committed submissions: %v", f.metrics.submissions)
	}
}

func TestSubmit_schnorrKey(t *testing.T) {
	f := newFixture(t)
	key, err := signature.GenerateKey(signature.SchemeSchnorr)
	if err != nil {
		t.Fatal(err)
	}
	f.notarize(t, key, star("schnorr"))
	if h := f.height(t); h != 1 {
		t.Errorf("height: got %d, want 1", h)
	}
}

func TestSubmit_invalidSignature(t *testing.T) {
	f := newFixture(t)
	alice := newKey(t)
	bob := newKey(t)

	ch, _ := f.svc.RequestChallenge(alice.Address())
	sig, _ := bob.Sign([]byte(ch.Token))

	_, err := f.svc.Submit(ctx, alice.Address(), ch.Token, sig, star("stolen"))
	if !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if h := f.height(t); h != 0 {
		t.Errorf("height changed to %d", h)
	}
	if f.metrics.submissions[notary.ResultInvalidSignature] != 1 {
		t.Errorf("metrics: %v", f.metrics.submissions)
	}
}

func TestSubmit_malformedSignature(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	ch, _ := f.svc.RequestChallenge(key.Address())

	_, err := f.svc.Submit(ctx, key.Address(), ch.Token, "not-a-signature", star("x"))
	if !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSubmit_signatureOverOtherMessage(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	ch, _ := f.svc.RequestChallenge(key.Address())
	sig, _ := key.Sign([]byte("something else"))

	if _, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, star("x")); !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSubmit_expiredChallenge(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	ch, _ := f.svc.RequestChallenge(key.Address())
	sig, _ := key.Sign([]byte(ch.Token))

	f.clock.Advance(301 * time.Second)

	_, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, star("late"))
	if !errors.Is(err, notary.ErrExpiredChallenge) {
		t.Fatalf("expected ErrExpiredChallenge, got %v", err)
	}
	if h := f.height(t); h != 0 {
		t.Errorf("height changed to %d", h)
	}
}

func TestSubmit_withinWindow(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	ch, _ := f.svc.RequestChallenge(key.Address())
	sig, _ := key.Sign([]byte(ch.Token))

	f.clock.Advance(300 * time.Second)

	if _, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, star("just in time")); err != nil {
		t.Fatalf("Submit at the window edge: %v", err)
	}
}

func TestSubmit_challengeForOtherIdentity(t *testing.T) {
	f := newFixture(t)
	alice := newKey(t)
	bob := newKey(t)

	ch, _ := f.svc.RequestChallenge(bob.Address())
	sig, _ := alice.Sign([]byte(ch.Token))

	_, err := f.svc.Submit(ctx, alice.Address(), ch.Token, sig, star("x"))
	if !errors.Is(err, notary.ErrInvalidChallenge) {
		t.Fatalf("expected ErrInvalidChallenge, got %v", err)
	}
	if !errors.Is(err, notary.ErrInvalidSignature) {
		t.Errorf("identity mismatch should also match ErrInvalidSignature, got %v", err)
	}
	if f.metrics.submissions[notary.ResultInvalidChallenge] != 1 {
		t.Errorf("metrics: %v", f.metrics.submissions)
	}
}

func TestSubmit_futureDatedToken(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)

	token, err := challenge.TextCodec{}.Encode(challenge.Token{Identity: key.Address(), IssuedAt: 99_999_999_999})
	if err != nil {
		t.Fatal(err)
	}
	sig, _ := key.Sign([]byte(token))

	if _, err := f.svc.Submit(ctx, key.Address(), token, sig, star("forever")); !errors.Is(err, notary.ErrInvalidChallenge) {
		t.Fatalf("expected ErrInvalidChallenge, got %v", err)
	}
	f.clock.Advance(100 * 24 * time.Hour)
	if _, err := f.svc.Submit(ctx, key.Address(), token, sig, star("forever")); !errors.Is(err, notary.ErrInvalidChallenge) {
		t.Fatalf("after 100 days: expected ErrInvalidChallenge, got %v", err)
	}
	if h := f.height(t); h != 0 {
		t.Errorf("height changed to %d", h)
	}
}

func TestSubmit_malformedToken(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	sig, _ := key.Sign([]byte("garbage"))

	if _, err := f.svc.Submit(ctx, key.Address(), "garbage", sig, star("x")); !errors.Is(err, notary.ErrInvalidChallenge) {
		t.Fatalf("expected ErrInvalidChallenge, got %v", err)
	}
}

func TestSubmit_invalidStar(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)

	for _, s := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`{`)} {
		ch, _ := f.svc.RequestChallenge(key.Address())
		sig, _ := key.Sign([]byte(ch.Token))
		if _, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, s); !errors.Is(err, notary.ErrInvalidStar) {
			t.Errorf("star %q: expected ErrInvalidStar, got %v", s, err)
		}
	}
	if h := f.height(t); h != 0 {
		t.Errorf("height changed to %d", h)
	}
}

func TestSubmit_concurrent(t *testing.T) {
	f := newFixture(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := signature.GenerateKey(signature.SchemeEd25519)
			if err != nil {
				errs <- err
				return
			}
			ch, err := f.svc.RequestChallenge(key.Address())
			if err != nil {
				errs <- err
				return
			}
			sig, _ := key.Sign([]byte(ch.Token))
			if _, err := f.svc.Submit(ctx, key.Address(), ch.Token, sig, star("concurrent")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent submit: %v", err)
	}

	if h := f.height(t); h != n {
		t.Errorf("height: got %d, want %d", h, n)
	}
	v, err := f.svc.ValidateChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 0 {
		t.Errorf("chain invalid after concurrent submits: %v", v)
	}
}

func TestValidateChain_afterSubmits(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	for i := 0; i < 3; i++ {
		f.notarize(t, key, star("s"))
	}
	v, err := f.svc.ValidateChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
}

func TestGetByHash(t *testing.T) {
	f := newFixture(t)
	rec := f.notarize(t, newKey(t), star("by hash"))

	got, err := f.svc.GetByHash(ctx, rec.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Height != rec.Height {
		t.Errorf("Height: got %d, want %d", got.Height, rec.Height)
	}

	if _, err := f.svc.GetByHash(ctx, "0000"); !errors.Is(err, notary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByHeight_notFound(t *testing.T) {
	f := newFixture(t)
	for _, h := range []int{-1, 1, 42} {
		if _, err := f.svc.GetByHeight(ctx, h); !errors.Is(err, notary.ErrNotFound) {
			t.Errorf("GetByHeight(%d): expected ErrNotFound, got %v", h, err)
		}
	}
}

func TestGetStarsByIdentity_ownerScopedInOrder(t *testing.T) {
	f := newFixture(t)
	a := newKey(t)
	b := newKey(t)

	f.notarize(t, a, star("a-1"))
	f.notarize(t, b, star("b-1"))
	f.notarize(t, a, star("a-2"))

	stars, err := f.svc.GetStarsByIdentity(ctx, a.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 2 {
		t.Fatalf("expected 2 stars, got %d", len(stars))
	}
	for i, want := range []string{"a-1", "a-2"} {
		var fields map[string]string
		if err := json.Unmarshal(stars[i].Star, &fields); err != nil {
			t.Fatal(err)
		}
		if fields["story"] != want {
			t.Errorf("star %d: got %q, want %q", i, fields["story"], want)
		}
		if stars[i].Owner != a.Address() {
			t.Errorf("star %d owner: got %q", i, stars[i].Owner)
		}
	}
}

func TestGetStarsByIdentity_unknownIdentity(t *testing.T) {
	f := newFixture(t)
	f.notarize(t, newKey(t), star("x"))

	stars, err := f.svc.GetStarsByIdentity(ctx, "0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if stars == nil || len(stars) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", stars)
	}
}

func TestGetStarsByIdentity_skipsUndecodable(t *testing.T) {
	f := newFixture(t)
	a := newKey(t)

	f.notarize(t, a, star("before"))
	if _, err := f.chain.Append(ctx, block.New([]byte("not a payload"))); err != nil {
		t.Fatal(err)
	}
	f.notarize(t, a, star("after"))

	stars, err := f.svc.GetStarsByIdentity(ctx, a.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 2 {
		t.Fatalf("expected 2 stars around the undecodable record, got %d", len(stars))
	}
	if f.metrics.skips != 1 {
		t.Errorf("decode skips: got %d, want 1", f.metrics.skips)
	}
}

func TestGetStarsByIdentity_manyRecords(t *testing.T) {
	f := newFixture(t)
	a := newKey(t)
	b := newKey(t)
	for i := 0; i < 25; i++ {
		k := a
		if i%2 == 1 {
			k = b
		}
		f.notarize(t, k, star("s"))
	}

	stars, err := f.svc.GetStarsByIdentity(ctx, a.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 13 {
		t.Errorf("expected 13 stars for a, got %d", len(stars))
	}
}

func TestGetStarsByIdentity_cancelledContext(t *testing.T) {
	f := newFixture(t)
	f.notarize(t, newKey(t), star("x"))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := f.svc.GetStarsByIdentity(cctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRequestChallenge(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)

	ch, err := f.svc.RequestChallenge(key.Address())
	if err != nil {
		t.Fatal(err)
	}
	if ch.Identity != key.Address() {
		t.Errorf("Identity: got %q", ch.Identity)
	}
	if got := ch.ExpiresAt.Sub(ch.IssuedAt); got != 300*time.Second {
		t.Errorf("window: got %v, want 300s", got)
	}

	if _, err := f.svc.RequestChallenge(""); err == nil {
		t.Error("expected error for empty identity")
	}
}
