package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/jurisdiction"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/tax"
	"paystub/internal/domain/theme"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/apperr"
)

type oneKey struct{}

func (oneKey) CurrentKeyID() string { return "k1" }

func (oneKey) WithKey(id string, fn func([]byte) error) error {
	if id != "k1" {
		return integrity.ErrUnknownKey
	}
	return fn(bytes.Repeat([]byte{7}, 32))
}

func sealed(t *testing.T, notes int) (payroll.PayRecord, integrity.Record) {
	t.Helper()
	catalogue, err := jurisdiction.Default()
	require.NoError(t, err)
	in := payroll.PayPeriodInput{
		Company:       payroll.Company{Name: "Café Norte Holdings", Address: "100 Main St\nSacramento, CA 95814"},
		Employee:      payroll.Employee{ID: "E-100", Name: "Renée Alvarez", Address: "22 Oak Ave", State: "CA", SSNLast4: "1234"},
		Jurisdiction:  "US-CA",
		Filing:        tax.FilingProfile{Status: tax.Single, Frequency: tax.Biweekly},
		PeriodStart:   payroll.NewDate(2025, time.March, 1),
		PeriodEnd:     payroll.NewDate(2025, time.March, 14),
		PayDate:       payroll.NewDate(2025, time.March, 14),
		HourlyRate:    decimal.RequireFromString("42.125"),
		RegularHours:  decimal.RequireFromString("80"),
		OvertimeHours: decimal.RequireFromString("4.5"),
		Bonus:         25000,
		CheckNumber:   "004512",
		Deductions: []payroll.DeductionElection{
			{Code: "401k", Description: "401(k)", Amount: 15000, Treatment: payroll.TreatmentRetirement},
			{Code: "dental", Description: "Dental", Amount: 1800, Treatment: payroll.TreatmentSection125},
			{Code: "union", Description: "Union Dues", Amount: 2500},
		},
		Benefits: []string{"PTO balance: 46.5 hours", "Sick leave balance: 12 hours"},
	}
	for i := 0; i < notes; i++ {
		in.Notes = append(in.Notes, "Direct deposit to account ending 6789, reference line "+strings.Repeat("x", i%20))
	}
	record, _, err := payroll.NewService(tax.NewEngine(catalogue)).Generate(in, ytd.Snapshot{})
	require.NoError(t, err)
	rec, err := integrity.NewSealer(oneKey{}, nil, "Acme Payroll Services").Seal(record)
	require.NoError(t, err)
	return record, rec
}

func job(t *testing.T, notes int, key string) Job {
	t.Helper()
	record, rec := sealed(t, notes)
	def, err := theme.Lookup(key)
	require.NoError(t, err)
	return Job{Record: record, Verification: rec, Theme: def, Payload: integrity.PayloadFor(rec, "https://verify.example.com")}
}

func TestLayoutValidate(t *testing.T) {
	require.NoError(t, DefaultLayout().Validate())

	bad := DefaultLayout()
	bad.PageSize = "Tabloid"
	bad.QRSize = 5
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedTemplate))
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Tabloid")

	_, err = NewPDFEngine(bad)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestQRRoundTrip(t *testing.T) {
	_, rec := sealed(t, 0)
	payload := integrity.PayloadFor(rec, "https://verify.example.com/v").String()
	img, err := QRImage(payload, 300)
	require.NoError(t, err)
	got, err := DecodeQR(img)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	parsed, err := integrity.ParsePayload(got)
	require.NoError(t, err)
	assert.True(t, parsed.Matches(rec))
}

func TestPDFEngineRender(t *testing.T) {
	eng, err := NewPDFEngine(DefaultLayout())
	require.NoError(t, err)
	j := job(t, 1, "cherry_soda")

	doc, err := eng.Render(context.Background(), j)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))
	require.NoError(t, api.Validate(bytes.NewReader(doc), nil))
	assert.Equal(t, 1, eng.Renders())

	stamp, err := Inspect(doc, "")
	require.NoError(t, err)
	assert.Equal(t, j.Verification.ID, stamp.ID)
	assert.Equal(t, j.Verification.Fingerprint, stamp.Fingerprint)
	assert.Equal(t, j.Verification.Seal, stamp.Seal)
	assert.Equal(t, "k1", stamp.KeyID)
	assert.True(t, j.Verification.IssuedAt.Equal(stamp.IssuedAt))
	assert.Equal(t, "Acme Payroll Services", stamp.Issuer)
	assert.Equal(t, j.Payload.String(), stamp.Payload)
	assert.Equal(t, 1, stamp.Pages)

	require.NoError(t, eng.Close())
	_, err = eng.Render(context.Background(), j)
	assert.True(t, apperr.Retryable(err))
}

func TestPDFEngineLongRecordPaginates(t *testing.T) {
	eng, err := NewPDFEngine(DefaultLayout())
	require.NoError(t, err)
	doc, err := eng.Render(context.Background(), job(t, 90, "sylveon"))
	require.NoError(t, err)

	pages, err := api.PageCount(bytes.NewReader(doc), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pages, 2)
	require.NoError(t, api.Validate(bytes.NewReader(doc), nil))
}

func TestInspectRejectsUnstampedDocument(t *testing.T) {
	eng, err := NewPDFEngine(DefaultLayout())
	require.NoError(t, err)
	j := job(t, 0, "anxiety")
	j.Verification.Seal = ""
	doc, err := eng.Render(context.Background(), j)
	require.NoError(t, err)

	_, err = Inspect(doc, "")
	assert.True(t, errors.Is(err, ErrNoStamp))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = Inspect([]byte("not a pdf"), "")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestProtector(t *testing.T) {
	assert.Nil(t, NewProtector(""))

	eng, err := NewPDFEngine(DefaultLayout())
	require.NoError(t, err)
	j := job(t, 0, "tuesdays")
	doc, err := eng.Render(context.Background(), j)
	require.NoError(t, err)

	locked, err := NewProtector("owner-secret").Protect(doc)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(locked, []byte("/Encrypt")))
	require.NoError(t, api.Validate(bytes.NewReader(locked), model.NewAESConfiguration("", "owner-secret", 256)))

	stamp, err := Inspect(locked, "owner-secret")
	require.NoError(t, err)
	assert.Equal(t, j.Verification.ID, stamp.ID)
}

func newTestRenderer(t *testing.T, size int, obs Observer) *Renderer {
	t.Helper()
	pool, err := NewPool(PDFFactory(DefaultLayout()), PoolConfig{Size: size})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return NewRenderer(pool, WithLookupHint("https://verify.example.com"), WithObserver(obs))
}

func TestRendererRejectsInput(t *testing.T) {
	r := newTestRenderer(t, 1, nil)
	record, rec := sealed(t, 0)

	_, err := r.Render(context.Background(), record, rec, "no_such_theme")
	assert.True(t, errors.Is(err, theme.ErrUnknownTheme))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = r.Render(context.Background(), record, integrity.Record{}, "anxiety")
	assert.True(t, errors.Is(err, ErrUnsealed))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestRenderAllThemes(t *testing.T) {
	r := newTestRenderer(t, 4, nil)
	record, rec := sealed(t, 1)
	keys := theme.Keys()

	results := r.RenderAll(context.Background(), record, rec, keys)
	require.Len(t, results, len(keys))
	var payload string
	for i, res := range results {
		require.NoError(t, res.Err, res.Theme)
		assert.Equal(t, keys[i], res.Theme)
		stamp, err := Inspect(res.Document, "")
		require.NoError(t, err, res.Theme)
		assert.Equal(t, rec.ID, stamp.ID, res.Theme)
		if payload == "" {
			payload = stamp.Payload
		}
		assert.Equal(t, payload, stamp.Payload, res.Theme)
	}
	assert.LessOrEqual(t, r.Pool().Stats().Created, int64(4))

	// the printed code, not only the metadata, is identical across themes
	want := integrity.PayloadFor(rec, "https://verify.example.com").String()
	for _, res := range []Result{results[0], results[len(results)-1]} {
		assert.Contains(t, scanCodes(t, res.Document), want, res.Theme)
	}
}

// scanCodes extracts the images embedded in doc and returns every QR
// symbol that decodes.
func scanCodes(t *testing.T, doc []byte) []string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, doc, 0o600))
	out := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, api.ExtractImagesFile(path, out, nil, model.NewDefaultConfiguration()))

	files, err := os.ReadDir(out)
	require.NoError(t, err)
	var codes []string
	for _, file := range files {
		f, err := os.Open(filepath.Join(out, file.Name()))
		require.NoError(t, err)
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			continue
		}
		if text, err := DecodeQR(img); err == nil {
			codes = append(codes, text)
		}
	}
	require.NotEmpty(t, codes, "no scannable code in document")
	return codes
}

// fakeEngine delegates to paint so tests can crash or stall engines.
type fakeEngine struct {
	paint  func(ctx context.Context, job Job) ([]byte, error)
	closed *atomic.Int64
}

func (f fakeEngine) Render(ctx context.Context, job Job) ([]byte, error) {
	return f.paint(ctx, job)
}

func (f fakeEngine) Close() error {
	f.closed.Add(1)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts map[string]int
}

func (o *recordingObserver) ObserveRender(key string, _ time.Duration, attempts int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = map[string]int{}
	}
	o.attempts[key] = attempts
}

func fakeRenderer(t *testing.T, cfg PoolConfig, obs Observer, paint func(n int64, ctx context.Context, job Job) ([]byte, error)) (*Renderer, *atomic.Int64) {
	t.Helper()
	var created, closed atomic.Int64
	pool, err := NewPool(func() (Engine, error) {
		n := created.Add(1)
		return fakeEngine{closed: &closed, paint: func(ctx context.Context, job Job) ([]byte, error) {
			return paint(n, ctx, job)
		}}, nil
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return NewRenderer(pool, WithObserver(obs)), &closed
}

func TestRendererRetriesCrashOnFreshEngine(t *testing.T) {
	obs := &recordingObserver{}
	r, closed := fakeRenderer(t, PoolConfig{Size: 2}, obs, func(n int64, _ context.Context, _ Job) ([]byte, error) {
		if n == 1 {
			panic("engine segfault")
		}
		return []byte("%PDF-ok"), nil
	})
	record, rec := sealed(t, 0)

	doc, err := r.Render(context.Background(), record, rec, "anxiety")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-ok", string(doc))
	assert.Equal(t, 2, obs.attempts["anxiety"])
	assert.Equal(t, int64(1), closed.Load())
	assert.Equal(t, int64(1), r.Pool().Stats().Discarded)
}

func TestRendererTimeoutFailsAfterOneRetry(t *testing.T) {
	obs := &recordingObserver{}
	var calls atomic.Int64
	r, _ := fakeRenderer(t, PoolConfig{Size: 1, RenderTimeout: 20 * time.Millisecond, AcquireTimeout: time.Second}, obs,
		func(_ int64, ctx context.Context, _ Job) ([]byte, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	record, rec := sealed(t, 0)

	_, err := r.Render(context.Background(), record, rec, "anxiety")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineTimeout))
	assert.True(t, errors.Is(err, apperr.ErrRenderTransient))
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 2, obs.attempts["anxiety"])
}

func TestRenderAllIsolatesFailures(t *testing.T) {
	r, _ := fakeRenderer(t, PoolConfig{Size: 3}, nil, func(_ int64, _ context.Context, job Job) ([]byte, error) {
		if job.Theme.Key == "cherry_soda" {
			panic("bad engine")
		}
		return []byte(job.Theme.Key), nil
	})
	record, rec := sealed(t, 0)
	keys := []string{"anxiety", "cherry_soda", "sylveon", "unknown_theme"}

	results := r.RenderAll(context.Background(), record, rec, keys)
	require.Len(t, results, 4)
	assert.True(t, results[0].OK())
	assert.Equal(t, "anxiety", string(results[0].Document))
	assert.True(t, errors.Is(results[1].Err, ErrEngineCrashed))
	assert.Equal(t, apperr.KindRenderTransient, apperr.KindOf(results[1].Err))
	assert.True(t, results[2].OK())
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(results[3].Err))
}

func TestPoolAcquireTimeout(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	pool, err := NewPool(func() (Engine, error) {
		var closed atomic.Int64
		return fakeEngine{closed: &closed, paint: func(context.Context, Job) ([]byte, error) {
			close(started)
			<-release
			return nil, nil
		}}, nil
	}, PoolConfig{Size: 1, AcquireTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := pool.Do(context.Background(), false, func(ctx context.Context, e Engine) ([]byte, error) {
			return e.Render(ctx, Job{})
		})
		done <- err
	}()
	<-started

	_, err = pool.Do(context.Background(), false, func(context.Context, Engine) ([]byte, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrPoolExhausted))
	assert.True(t, apperr.Retryable(err))
	assert.Equal(t, 1, pool.Stats().Busy)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, pool.Close())
	_, err = pool.Do(context.Background(), false, func(context.Context, Engine) ([]byte, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestRenderAllStopsDispatchOnCancel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	r, _ := fakeRenderer(t, PoolConfig{Size: 1}, nil, func(_ int64, _ context.Context, job Job) ([]byte, error) {
		started <- struct{}{}
		<-release
		return []byte(job.Theme.Key), nil
	})
	record, rec := sealed(t, 0)
	keys := []string{"anxiety", "guidance", "blooming"}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []Result, 1)
	go func() { out <- r.RenderAll(ctx, record, rec, keys) }()
	<-started
	cancel()
	close(release)

	results := <-out
	require.True(t, results[0].OK(), "in-flight render completes")
	assert.Equal(t, "anxiety", string(results[0].Document))
	for _, res := range results[1:] {
		assert.True(t, errors.Is(res.Err, ErrNotDispatched), res.Theme)
		assert.True(t, errors.Is(res.Err, context.Canceled), res.Theme)
	}
	assert.Len(t, started, 0)
}

func TestNewPoolRejectsBadConfig(t *testing.T) {
	_, err := NewPool(nil, PoolConfig{Size: 1})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	_, err = NewPool(PDFFactory(DefaultLayout()), PoolConfig{})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestPoolWarm(t *testing.T) {
	pool, err := NewPool(PDFFactory(DefaultLayout()), PoolConfig{Size: 3})
	require.NoError(t, err)
	require.NoError(t, pool.Warm(5))
	stats := pool.Stats()
	assert.Equal(t, 3, stats.Idle)
	assert.Equal(t, int64(3), stats.Created)
}
