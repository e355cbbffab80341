package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tuitionflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// scriptedGenerator answers command parses with intent and drafts with a greeting
type scriptedGenerator struct {
	mu       sync.Mutex
	intent   string
	parseErr error
	draftErr error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cfg != nil {
		return g.intent, g.parseErr
	}
	if g.draftErr != nil {
		return "", g.draftErr
	}
	return "Namaste! " + strings.SplitN(prompt, "\n", 2)[0], nil
}

// fakeSheets records appends; ok decides the outcome
type fakeSheets struct {
	mu      sync.Mutex
	ok      bool
	appends []models.PaymentRecord
}

func (f *fakeSheets) Setup() SheetsSetup { return SheetsSetup{RedirectURI: "http://localhost/cb"} }
func (f *fakeSheets) AuthURL(models.SheetConfig) (string, error) {
	return "https://accounts.google.com/o/oauth2/auth?state=s", nil
}
func (f *fakeSheets) Exchange(context.Context, models.SheetConfig, string, string) error { return nil }
func (f *fakeSheets) Append(_ context.Context, _ models.SheetConfig, rec models.PaymentRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, rec)
	if !f.ok {
		return false, errors.New("sheets: 503 backend unavailable")
	}
	return true, nil
}

type fakeLine struct {
	pushed map[string]string
}

func (f *fakeLine) Enabled() bool { return true }
func (f *fakeLine) PushText(_ context.Context, userID, text string) error {
	f.pushed[userID] = text
	return nil
}

var kolkata = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestDashboard(t *testing.T, gen TextGenerator, sheets SheetSyncer, opts ...DashboardOption) *Dashboard {
	t.Helper()
	store, _ := newFileStore(t)
	require.NoError(t, store.Load(context.Background(), true))
	clock := WithClock(func() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, kolkata) })
	return NewDashboard(store, gen, sheets, kolkata, append([]DashboardOption{clock}, opts...)...)
}

func studentByName(t *testing.T, d *Dashboard, name string) models.Student {
	t.Helper()
	for _, s := range d.Students() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("student %s not found", name)
	return models.Student{}
}

func TestTodayUsesConfiguredTimezone(t *testing.T) {
	store, _ := newFileStore(t)
	// 20:00 UTC is already the next day in India
	d := NewDashboard(store, UnavailableGenerator{}, nil, kolkata,
		WithClock(func() time.Time { return time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC) }))
	assert.Equal(t, "2026-10-17", d.Today().String())
}

func TestCommandMarksPaidOnce(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"Anshu","newStatus":"PAID","confidence":0.95}`}
	d := newTestDashboard(t, gen, &fakeSheets{ok: true})
	ctx := context.Background()

	res, err := d.HandleCommand(ctx, "Anshu fee is clear")
	require.NoError(t, err)
	assert.Equal(t, CommandUpdate, res.Kind)
	require.NotNil(t, res.Student)
	assert.Equal(t, models.StatusPaid, res.Student.Status)
	require.NotNil(t, res.Student.LastPaymentDate)
	assert.Equal(t, "2026-10-16", res.Student.LastPaymentDate.String())

	require.NotNil(t, res.Record)
	assert.Equal(t, models.MethodAIAuto, res.Record.Method)
	assert.Equal(t, int64(2000), res.Record.Amount)

	require.NotNil(t, res.Queue)
	require.NotNil(t, res.Queue.Draft)
	assert.Equal(t, models.MessageReceipt, res.Queue.Draft.Type)
	assert.True(t, strings.HasSuffix(res.Queue.Draft.Text, AttributionSuffix))

	again, err := d.HandleCommand(ctx, "Anshu fee is clear")
	require.NoError(t, err)
	assert.Nil(t, again.Record)
	assert.Len(t, d.History(), 1, "a repeated PAID command adds no record")
}

func TestCommandUnknownStudentChangesNothing(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"anshu","newStatus":"PAID"}`}
	d := newTestDashboard(t, gen, nil)

	before := d.Students()
	res, err := d.HandleCommand(context.Background(), "anshu paid")
	require.NoError(t, err)
	assert.Equal(t, CommandNoMatch, res.Kind)
	assert.Equal(t, before, d.Students())
	assert.Empty(t, d.History())
}

func TestCommandExemptDraftsNothing(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"Anshu","newStatus":"EXEMPT"}`}
	d := newTestDashboard(t, gen, nil)

	res, err := d.HandleCommand(context.Background(), "crossmark Anshu")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExempt, res.Student.Status)
	assert.Nil(t, res.Queue)
	assert.Equal(t, QueueIdle, d.Queue().State)
}

func TestCommandParseFailureLeavesState(t *testing.T) {
	gen := &scriptedGenerator{parseErr: errors.New("API key not valid")}
	d := newTestDashboard(t, gen, nil)

	before := d.Students()
	_, err := d.HandleCommand(context.Background(), "Anshu paid")
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.True(t, IsUpstreamFailure(err))
	assert.Equal(t, before, d.Students())
}

func TestCommandRejectsEmptyText(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	_, err := d.HandleCommand(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRemindCommandWalksEveryDueStudent(t *testing.T) {
	line := &fakeLine{pushed: map[string]string{}}
	d := newTestDashboard(t, &scriptedGenerator{}, nil, WithLine(line))
	ctx := context.Background()

	_, err := d.RefreshStatuses(ctx)
	require.NoError(t, err)
	_, err = d.LinkLineUser(ctx, "+91 98765 43211", "U-aman")
	require.NoError(t, err)

	res, err := d.HandleCommand(ctx, "Send reminders to everyone")
	require.NoError(t, err)
	assert.Equal(t, CommandReminders, res.Kind)
	require.NotNil(t, res.Queue.Draft)
	assert.Equal(t, "Anshu", res.Queue.Draft.StudentName)
	assert.True(t, res.Queue.Queue.Batch)

	first, err := d.Send(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Link, "https://wa.me/919876543210?text="))
	assert.False(t, first.LineSent)
	require.NotNil(t, first.Next.Draft)
	assert.Equal(t, "Aman", first.Next.Draft.StudentName)
	assert.Equal(t, models.MessageWarning, first.Next.Draft.Type)

	second, err := d.Send(ctx)
	require.NoError(t, err)
	assert.True(t, second.LineSent)
	assert.Contains(t, line.pushed["U-aman"], AttributionSuffix)
	assert.Nil(t, second.Next.Draft)
	assert.Equal(t, QueueIdle, d.Queue().State)
}

func TestRemindWithNothingDue(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"Anshu","newStatus":"PAID"}`}
	d := newTestDashboard(t, gen, nil)
	ctx := context.Background()

	_, err := d.HandleCommand(ctx, "Anshu fee is clear")
	require.NoError(t, err)
	// Aman's seeded PAID status is stale until a refresh, so nobody is due yet
	res, err := d.HandleCommand(ctx, "remind all")
	require.NoError(t, err)
	assert.Nil(t, res.Queue.Draft)
	assert.Contains(t, res.Message, "No pending or overdue")
}

func TestSyncFailureKeepsRecordLocally(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"Anshu","newStatus":"PAID"}`}
	sheets := &fakeSheets{ok: false}
	d := newTestDashboard(t, gen, sheets)
	ctx := context.Background()

	_, err := d.SaveSheetConfig(ctx, "client.apps.googleusercontent.com", "sheet-123")
	require.NoError(t, err)
	_, err = d.CompleteSheetsAuth(ctx, "state", "code")
	require.NoError(t, err)
	require.True(t, d.SheetConfig().Ready())

	res, err := d.HandleCommand(ctx, "Anshu fee is clear")
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.False(t, res.Record.SyncedToSheet)
	assert.Len(t, sheets.appends, 1)

	history := d.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].SyncedToSheet)

	csvOut, err := BuildCSV(history)
	require.NoError(t, err)
	assert.Contains(t, string(csvOut), "2026-10-16,Anshu,2000,AI_AUTO")

	sheets.ok = true
	rec, err := d.RetrySync(ctx, history[0].ID)
	require.NoError(t, err)
	assert.True(t, rec.SyncedToSheet)
	assert.True(t, d.History()[0].SyncedToSheet)
}

func TestUnconfiguredSheetNeverAppends(t *testing.T) {
	gen := &scriptedGenerator{intent: `{"found":true,"studentName":"Anshu","newStatus":"PAID"}`}
	sheets := &fakeSheets{ok: true}
	d := newTestDashboard(t, gen, sheets)

	_, err := d.HandleCommand(context.Background(), "Anshu paid")
	require.NoError(t, err)
	assert.Empty(t, sheets.appends)

	_, err = d.RetrySync(context.Background(), d.History()[0].ID)
	assert.ErrorIs(t, err, ErrSheetNotConfigured)
	_, err = d.RetrySync(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateStudentManualPayment(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	ctx := context.Background()

	aman := studentByName(t, d, "Aman")
	_, err := d.RefreshStatuses(ctx)
	require.NoError(t, err)

	aman.Status = models.StatusPaid
	aman.LastPaymentDate = nil
	saved, rec, err := d.UpdateStudent(ctx, aman)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, saved.Status)
	require.NotNil(t, saved.LastPaymentDate)
	assert.Equal(t, "2026-10-16", saved.LastPaymentDate.String())
	require.NotNil(t, rec)
	assert.Equal(t, models.MethodManual, rec.Method)
	assert.Equal(t, int64(1500), rec.Amount)

	// editing the notes of a paid student records nothing new
	saved.Notes = "paid in cash"
	_, rec, err = d.UpdateStudent(ctx, saved)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Len(t, d.History(), 1)
}

func TestUpdateStudentRules(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	ctx := context.Background()

	riya := studentByName(t, d, "Riya")
	riya.MonthlyFee = 3000
	saved, _, err := d.UpdateStudent(ctx, riya)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExempt, saved.Status)

	anshu := studentByName(t, d, "Anshu")
	anshu.Status = models.StatusOverdue
	saved, _, err = d.UpdateStudent(ctx, anshu)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, saved.Status, "non-exempt statuses are derived")

	ghost := anshu
	ghost.ID = "ghost"
	_, _, err = d.UpdateStudent(ctx, ghost)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestCreateStudent(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	ctx := context.Background()

	s, err := d.CreateStudent(ctx, models.Student{
		Name:        "Kabir",
		ParentName:  "Mr. Rao",
		ParentPhone: "+91 98765 43213",
		JoiningDate: day("2026-09-01"),
		MonthlyFee:  1800,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "919876543213", s.ParentPhone)
	assert.Equal(t, models.StatusOverdue, s.Status)
	assert.Len(t, d.Students(), 4)

	_, err = d.CreateStudent(ctx, models.Student{Name: "NoPhone", JoiningDate: day("2026-09-01")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.CreateStudent(ctx, s)
	assert.ErrorIs(t, err, ErrValidation, "duplicate id")
}

func TestRefreshStatusesAndStats(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)

	changed, err := d.RefreshStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.StatusOverdue, studentByName(t, d, "Aman").Status)

	st := d.Stats()
	assert.Equal(t, int64(6000), st.ExpectedRevenue)
	assert.Equal(t, int64(0), st.CollectedRevenue)
	assert.Equal(t, 2, st.PendingCount)

	changed, err = d.RefreshStatuses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestDraftForSingleStudent(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	ctx := context.Background()

	res, err := d.DraftFor(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, res.Draft)
	assert.False(t, res.Queue.Batch)
	assert.Equal(t, 1, res.Queue.Remaining)

	_, err = d.DraftFor(ctx, "3")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.DraftFor(ctx, "nope")
	assert.ErrorIs(t, err, ErrStudentNotFound)

	_, err = d.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueIdle, d.Queue().State)
}

func TestDraftFailureReportsStudent(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{draftErr: errors.New("quota")}, nil)

	res, err := d.DraftFor(context.Background(), "1")
	require.NoError(t, err)
	assert.Nil(t, res.Draft)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Anshu", res.Failures[0].StudentName)
}

func TestSheetConfigLifecycle(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, &fakeSheets{})
	ctx := context.Background()

	_, err := d.SaveSheetConfig(ctx, "", "sheet")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.CompleteSheetsAuth(ctx, "s", "c")
	assert.ErrorIs(t, err, ErrSheetNotConfigured)

	_, err = d.SaveSheetConfig(ctx, "client-a", "sheet-1")
	require.NoError(t, err)
	cfg, err := d.CompleteSheetsAuth(ctx, "s", "c")
	require.NoError(t, err)
	assert.True(t, cfg.IsConnected)

	cfg, err = d.SaveSheetConfig(ctx, "client-a", "sheet-2")
	require.NoError(t, err)
	assert.True(t, cfg.IsConnected, "same client keeps the connection")

	cfg, err = d.SaveSheetConfig(ctx, "client-b", "sheet-2")
	require.NoError(t, err)
	assert.False(t, cfg.IsConnected, "new client needs fresh consent")

	cfg, err = d.DisconnectSheets(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.IsConnected)
}

func TestLinkLineUserUnknownPhone(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	_, err := d.LinkLineUser(context.Background(), "919999999999", "U1")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestUpdateStudentKeepsLineLink(t *testing.T) {
	d := newTestDashboard(t, &scriptedGenerator{}, nil)
	ctx := context.Background()

	anshu := studentByName(t, d, "Anshu")
	_, err := d.LinkLineUser(ctx, anshu.ParentPhone, "U123")
	require.NoError(t, err)

	// the edit form never carries the LINE user
	anshu.LineUserID = ""
	anshu.MonthlyFee = 2500
	saved, _, err := d.UpdateStudent(ctx, anshu)
	require.NoError(t, err)
	assert.Equal(t, "U123", saved.LineUserID)

	stored := studentByName(t, d, "Anshu")
	assert.Equal(t, "U123", stored.LineUserID)
	assert.Equal(t, int64(2500), stored.MonthlyFee)
}

// renamingGenerator edits the roster while a command is being parsed
type renamingGenerator struct {
	scriptedGenerator
	onParse func()
}

func (g *renamingGenerator) Generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if cfg != nil && g.onParse != nil {
		g.onParse()
	}
	return g.scriptedGenerator.Generate(ctx, prompt, cfg)
}

func TestCommandIgnoresStudentRenamedDuringParse(t *testing.T) {
	gen := &renamingGenerator{scriptedGenerator: scriptedGenerator{
		intent: `{"found":true,"studentName":"Anshu","newStatus":"PAID"}`,
	}}
	d := newTestDashboard(t, gen, nil)
	ctx := context.Background()

	gen.onParse = func() {
		s := studentByName(t, d, "Anshu")
		s.Name = "Anshu Kumar"
		_, _, err := d.UpdateStudent(ctx, s)
		require.NoError(t, err)
	}

	res, err := d.HandleCommand(ctx, "Anshu fee is clear")
	require.NoError(t, err)
	assert.Equal(t, CommandNoMatch, res.Kind)
	assert.NotEqual(t, models.StatusPaid, studentByName(t, d, "Anshu Kumar").Status)
	assert.Empty(t, d.History())
}

func TestCommandIgnoresNameMissingFromRoster(t *testing.T) {
	gen := &renamingGenerator{scriptedGenerator: scriptedGenerator{
		intent: `{"found":true,"studentName":"Kabir","newStatus":"PAID"}`,
	}}
	d := newTestDashboard(t, gen, nil)
	ctx := context.Background()

	gen.onParse = func() {
		_, err := d.CreateStudent(ctx, models.Student{
			Name:        "Kabir",
			ParentName:  "Mr. Rao",
			ParentPhone: "919876500000",
			JoiningDate: studentByName(t, d, "Anshu").JoiningDate,
			MonthlyFee:  1800,
		})
		require.NoError(t, err)
	}

	res, err := d.HandleCommand(ctx, "Kabir paid")
	require.NoError(t, err)
	assert.Equal(t, CommandNoMatch, res.Kind)
	assert.Empty(t, d.History())
}
