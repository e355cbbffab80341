package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuitionflow/models"
	"tuitionflow/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SheetSyncer is the spreadsheet side of the dashboard: the consent wizard and row appends.
type SheetSyncer interface {
	Setup() SheetsSetup
	AuthURL(cfg models.SheetConfig) (string, error)
	Exchange(ctx context.Context, cfg models.SheetConfig, state, code string) error
	Append(ctx context.Context, cfg models.SheetConfig, rec models.PaymentRecord) (bool, error)
}

// Command result kinds
const (
	CommandReminders = "reminders"
	CommandUpdate    = "update"
	CommandNoMatch   = "no_match"
)

// CommandResult reports what a free-text command did
type CommandResult struct {
	Kind    string                `json:"kind"`
	Message string                `json:"message,omitempty"`
	Intent  *models.CommandIntent `json:"intent,omitempty"`
	Student *models.Student       `json:"student,omitempty"`
	Record  *models.PaymentRecord `json:"record,omitempty"`
	Queue   *QueueResult          `json:"queue,omitempty"`
}

// SendResult is a confirmed draft plus where the queue went next
type SendResult struct {
	Sent     *models.GeneratedMessage `json:"sent"`
	Link     string                   `json:"link"`
	LineSent bool                     `json:"lineSent"`
	Next     *QueueResult             `json:"next"`
}

// Dashboard owns the state store and the reminder queue and coordinates
// every user-visible operation.
type Dashboard struct {
	store   *StateStore
	queue   *ReminderQueue
	drafter *DraftingClient
	sheets  SheetSyncer
	line    LinePusher
	now     func() time.Time
	loc     *time.Location
}

// DashboardOption customises a Dashboard at construction
type DashboardOption func(*Dashboard)

// WithClock replaces time.Now, for tests and replays.
func WithClock(now func() time.Time) DashboardOption {
	return func(d *Dashboard) { d.now = now }
}

// WithLine enables LINE delivery alongside the WhatsApp link.
func WithLine(line LinePusher) DashboardOption {
	return func(d *Dashboard) { d.line = line }
}

func NewDashboard(store *StateStore, gen TextGenerator, sheets SheetSyncer, loc *time.Location, opts ...DashboardOption) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	d := &Dashboard{
		store:  store,
		sheets: sheets,
		now:    time.Now,
		loc:    loc,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.drafter = NewDraftingClient(gen, d.Today)
	d.queue = NewReminderQueue(d.drafter.Message)
	return d
}

// Today is the current calendar date in the configured timezone.
func (d *Dashboard) Today() models.Date {
	return models.NewDate(d.now().In(d.loc))
}

func (d *Dashboard) Students() []models.Student {
	return d.store.Snapshot().Students
}

func (d *Dashboard) Student(id string) (models.Student, error) {
	st := d.store.Snapshot()
	if i := st.FindStudent(id); i >= 0 {
		return st.Students[i], nil
	}
	return models.Student{}, ErrStudentNotFound
}

// NextDueDate is bound to the dashboard's clock for serializers.
func (d *Dashboard) NextDueDate(s models.Student) models.Date {
	return NextDueDate(s, d.Today())
}

func (d *Dashboard) History() []models.PaymentRecord {
	return d.store.Snapshot().History
}

func (d *Dashboard) Stats() models.DashboardStats {
	return models.ComputeStats(d.store.Snapshot().Students)
}

func (d *Dashboard) Queue() QueueSnapshot {
	return d.queue.Snapshot()
}

// newRecord builds a ledger entry for a student who just became PAID.
func (d *Dashboard) newRecord(s models.Student, method models.PaymentMethod) models.PaymentRecord {
	return models.PaymentRecord{
		ID:          uuid.NewString(),
		StudentID:   s.ID,
		StudentName: s.Name,
		Amount:      s.MonthlyFee,
		Date:        d.Today(),
		Method:      method,
	}
}

// HandleCommand runs a free-text command: "remind ..." starts the batch
// reminder run, anything else is parsed into a student status change.
func (d *Dashboard) HandleCommand(ctx context.Context, text string) (*CommandResult, error) {
	text = utils.SanitizeString(text)
	if text == "" {
		return nil, fmt.Errorf("%w: command text is required", ErrValidation)
	}
	if d.queue.Busy() {
		return nil, ErrQueueBusy
	}
	d.queue.Cancel()

	if strings.Contains(strings.ToLower(text), "remind") {
		res, err := d.StartReminders(ctx)
		if err != nil {
			return nil, err
		}
		out := &CommandResult{Kind: CommandReminders, Queue: res}
		if res.Draft == nil && len(res.Failures) == 0 {
			out.Message = "Great news! No pending or overdue payments found."
		}
		return out, nil
	}

	// the model only ever sees this snapshot, so a match must come from it
	students := d.Students()
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.Name
	}
	intent, err := d.drafter.ParseCommand(ctx, text, names)
	if err != nil {
		log.WithFields(log.Fields{"command": text, "error": err.Error()}).Error("Command parsing failed")
		return nil, fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}

	out := &CommandResult{Kind: CommandNoMatch, Intent: intent}
	if !intent.Found || intent.StudentName == "" {
		return out, nil
	}
	targetID := ""
	for _, s := range students {
		if s.Name == intent.StudentName {
			targetID = s.ID
			break
		}
	}
	if targetID == "" {
		return out, nil
	}

	var updated models.Student
	var record *models.PaymentRecord
	matched := false
	err = d.store.Mutate(ctx, func(st *State) ([]string, error) {
		idx := st.FindStudent(targetID)
		if idx < 0 || st.Students[idx].Name != intent.StudentName {
			// removed or renamed while the command was being parsed
			return nil, nil
		}
		matched = true
		s := st.Students[idx]
		old := s.Status
		if intent.NewStatus != nil {
			s.Status = *intent.NewStatus
			if s.Status == models.StatusPaid {
				today := d.Today()
				s.LastPaymentDate = &today
			}
		}
		st.Students[idx] = s
		updated = s

		changed := []string{KeyStudents}
		if old != models.StatusPaid && s.Status == models.StatusPaid {
			rec := d.newRecord(s, models.MethodAIAuto)
			st.History = append([]models.PaymentRecord{rec}, st.History...)
			record = &rec
			changed = append(changed, KeyHistory)
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if !matched {
		return out, nil
	}

	out.Kind = CommandUpdate
	out.Student = &updated
	log.WithFields(log.Fields{
		"student": updated.Name,
		"status":  updated.Status,
		"payment": record != nil,
	}).Info("Command applied")

	if record != nil {
		synced := d.syncRecord(ctx, *record)
		out.Record = &synced
	}
	if updated.Status != models.StatusExempt {
		res, err := d.queue.Start(ctx, []models.Student{updated}, false)
		if err != nil {
			return nil, err
		}
		out.Queue = res
	}
	return out, nil
}

// StartReminders queues every PENDING or OVERDUE student in roster order.
func (d *Dashboard) StartReminders(ctx context.Context) (*QueueResult, error) {
	var due []models.Student
	for _, s := range d.Students() {
		if s.Status.NeedsReminder() {
			due = append(due, s)
		}
	}
	return d.queue.Start(ctx, due, true)
}

// DraftFor drafts a single message for one student, replacing any queue.
func (d *Dashboard) DraftFor(ctx context.Context, id string) (*QueueResult, error) {
	s, err := d.Student(id)
	if err != nil {
		return nil, err
	}
	if s.Status == models.StatusExempt {
		return nil, fmt.Errorf("%w: %s is exempt from messages", ErrValidation, s.Name)
	}
	return d.queue.Start(ctx, []models.Student{s}, false)
}

// Send confirms the current draft. The caller opens the returned deep link;
// LINE delivery, when configured, happens here and never blocks the queue.
func (d *Dashboard) Send(ctx context.Context) (*SendResult, error) {
	sent, next, err := d.queue.Send(ctx)
	if err != nil {
		return nil, err
	}
	out := &SendResult{Sent: sent, Link: WhatsAppLink(sent.TargetPhone, sent.Text), Next: next}

	if d.line != nil && d.line.Enabled() {
		if s, err := d.Student(sent.StudentID); err == nil && s.LineUserID != "" {
			if err := d.line.PushText(ctx, s.LineUserID, sent.Text); err != nil {
				log.WithFields(log.Fields{"student": s.Name, "error": err.Error()}).Warn("LINE delivery failed")
			} else {
				out.LineSent = true
			}
		}
	}
	return out, nil
}

func (d *Dashboard) Skip(ctx context.Context) (*QueueResult, error) {
	return d.queue.Skip(ctx)
}

func (d *Dashboard) Cancel() QueueSnapshot {
	return d.queue.Cancel()
}

func validateStudent(s *models.Student) error {
	s.Name = utils.SanitizeString(s.Name)
	s.ParentName = utils.SanitizeString(s.ParentName)
	s.ParentPhone = utils.NormalizePhone(s.ParentPhone)
	s.Notes = utils.SanitizeString(s.Notes)

	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case !utils.IsValidPhone(s.ParentPhone):
		return fmt.Errorf("%w: parent phone must be country code and number", ErrValidation)
	case s.JoiningDate.IsZero():
		return fmt.Errorf("%w: joining date is required", ErrValidation)
	case s.MonthlyFee < 0:
		return fmt.Errorf("%w: monthly fee cannot be negative", ErrValidation)
	}
	if s.Status == "" {
		s.Status = models.StatusPending
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, s.Status)
	}
	return nil
}

// settle applies the edit rules: EXEMPT is kept, everything else is derived,
// and marking PAID without a payment date records today.
func (d *Dashboard) settle(s models.Student) models.Student {
	requested := s.Status
	today := d.Today()
	if requested != models.StatusExempt {
		s.Status = DeriveStatus(s, today)
	}
	if requested == models.StatusPaid && s.LastPaymentDate == nil {
		s.LastPaymentDate = &today
		s.Status = models.StatusPaid
	}
	return s
}

// CreateStudent adds a student to the roster.
func (d *Dashboard) CreateStudent(ctx context.Context, s models.Student) (models.Student, error) {
	if err := validateStudent(&s); err != nil {
		return models.Student{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s = d.settle(s)

	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		if st.FindStudent(s.ID) >= 0 {
			return nil, fmt.Errorf("%w: student %s already exists", ErrValidation, s.ID)
		}
		st.Students = append(st.Students, s)
		return []string{KeyStudents}, nil
	})
	if err != nil {
		return models.Student{}, err
	}
	log.WithFields(log.Fields{"student_id": s.ID, "student": s.Name}).Info("Student added")
	return s, nil
}

// UpdateStudent saves an edited student. A transition into PAID records a
// MANUAL payment.
func (d *Dashboard) UpdateStudent(ctx context.Context, s models.Student) (models.Student, *models.PaymentRecord, error) {
	if err := validateStudent(&s); err != nil {
		return models.Student{}, nil, err
	}
	s = d.settle(s)

	var record *models.PaymentRecord
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		idx := st.FindStudent(s.ID)
		if idx < 0 {
			return nil, ErrStudentNotFound
		}
		old := st.Students[idx]
		// the LINE link is owned by the webhook, not the edit form
		if s.LineUserID == "" {
			s.LineUserID = old.LineUserID
		}
		st.Students[idx] = s

		changed := []string{KeyStudents}
		if old.Status != models.StatusPaid && s.Status == models.StatusPaid {
			rec := d.newRecord(s, models.MethodManual)
			st.History = append([]models.PaymentRecord{rec}, st.History...)
			record = &rec
			changed = append(changed, KeyHistory)
		}
		return changed, nil
	})
	if err != nil {
		return models.Student{}, nil, err
	}

	if record != nil {
		synced := d.syncRecord(ctx, *record)
		record = &synced
	}
	return s, record, nil
}

// ImportStudents appends parsed roster rows with derived statuses.
func (d *Dashboard) ImportStudents(ctx context.Context, students []models.Student) ([]models.Student, error) {
	if len(students) == 0 {
		return nil, nil
	}
	today := d.Today()
	added := make([]models.Student, len(students))
	for i, s := range students {
		s.Status = DeriveStatus(s, today)
		added[i] = s
	}
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		st.Students = append(st.Students, added...)
		return []string{KeyStudents}, nil
	})
	if err != nil {
		return nil, err
	}
	log.WithField("count", len(added)).Info("Roster imported")
	return added, nil
}

// RefreshStatuses re-derives every status and reports how many changed.
func (d *Dashboard) RefreshStatuses(ctx context.Context) (int, error) {
	changed := 0
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		st.Students, changed = RefreshAll(st.Students, d.Today())
		if changed == 0 {
			return nil, nil
		}
		return []string{KeyStudents}, nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		log.WithField("changed", changed).Info("Statuses refreshed")
	}
	return changed, nil
}

// LinkLineUser attaches a LINE user to every student whose parent phone matches.
func (d *Dashboard) LinkLineUser(ctx context.Context, phone, userID string) ([]string, error) {
	phone = utils.NormalizePhone(phone)
	if !utils.IsValidPhone(phone) || userID == "" {
		return nil, fmt.Errorf("%w: phone and LINE user are required", ErrValidation)
	}
	var names []string
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		for i := range st.Students {
			if st.Students[i].ParentPhone == phone {
				st.Students[i].LineUserID = userID
				names = append(names, st.Students[i].Name)
			}
		}
		if len(names) == 0 {
			return nil, nil
		}
		return []string{KeyStudents}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrStudentNotFound
	}
	return names, nil
}

// syncRecord tries to mirror a saved record to the sheet and flips its flag
// on success. Sheet failures are logged, never returned.
func (d *Dashboard) syncRecord(ctx context.Context, rec models.PaymentRecord) models.PaymentRecord {
	cfg := d.store.Snapshot().Sheet
	if !cfg.Ready() || d.sheets == nil {
		return rec
	}
	ok, err := d.sheets.Append(ctx, cfg, rec)
	if err != nil || !ok {
		fields := log.Fields{"record_id": rec.ID, "student": rec.StudentName}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.WithFields(fields).Warn("Payment not synced to sheet")
		return rec
	}

	err = d.store.Mutate(ctx, func(st *State) ([]string, error) {
		for i := range st.History {
			if st.History[i].ID == rec.ID {
				st.History[i].SyncedToSheet = true
				return []string{KeyHistory}, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithFields(log.Fields{"record_id": rec.ID, "error": err.Error()}).Error("Failed to mark record synced")
		return rec
	}
	rec.SyncedToSheet = true
	return rec
}

// RetrySync re-attempts the sheet append for one record.
func (d *Dashboard) RetrySync(ctx context.Context, id string) (models.PaymentRecord, error) {
	var rec *models.PaymentRecord
	for _, r := range d.History() {
		if r.ID == id {
			r := r
			rec = &r
			break
		}
	}
	if rec == nil {
		return models.PaymentRecord{}, ErrRecordNotFound
	}
	if rec.SyncedToSheet {
		return *rec, nil
	}
	cfg := d.store.Snapshot().Sheet
	if !cfg.Ready() {
		return *rec, ErrSheetNotConfigured
	}
	return d.syncRecord(ctx, *rec), nil
}

func (d *Dashboard) SheetConfig() models.SheetConfig {
	return d.store.Snapshot().Sheet
}

func (d *Dashboard) SheetsSetup() SheetsSetup {
	if d.sheets == nil {
		return SheetsSetup{}
	}
	return d.sheets.Setup()
}

// SaveSheetConfig stores the wizard's client and spreadsheet ids. Changing the
// client id drops the connection, since the stored token belongs to the old one.
func (d *Dashboard) SaveSheetConfig(ctx context.Context, clientID, spreadsheetID string) (models.SheetConfig, error) {
	clientID = strings.TrimSpace(clientID)
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if clientID == "" || spreadsheetID == "" {
		return models.SheetConfig{}, fmt.Errorf("%w: client id and spreadsheet id are required", ErrValidation)
	}

	var cfg models.SheetConfig
	var dropToken bool
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		connected := st.Sheet.IsConnected && st.Sheet.ClientID == clientID
		dropToken = st.Sheet.IsConnected && !connected
		st.Sheet = models.SheetConfig{ClientID: clientID, SpreadsheetID: spreadsheetID, IsConnected: connected}
		cfg = st.Sheet
		return []string{KeySheetConfig}, nil
	})
	if err != nil {
		return models.SheetConfig{}, err
	}
	if dropToken {
		if err := d.store.SaveSheetToken(ctx, nil); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (d *Dashboard) SheetsAuthURL() (string, error) {
	if d.sheets == nil {
		return "", ErrSheetNotConfigured
	}
	return d.sheets.AuthURL(d.SheetConfig())
}

// CompleteSheetsAuth finishes the consent redirect and marks the sheet connected.
func (d *Dashboard) CompleteSheetsAuth(ctx context.Context, state, code string) (models.SheetConfig, error) {
	cfg := d.SheetConfig()
	if cfg.ClientID == "" || d.sheets == nil {
		return cfg, ErrSheetNotConfigured
	}
	if err := d.sheets.Exchange(ctx, cfg, state, code); err != nil {
		return cfg, err
	}
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		st.Sheet.IsConnected = true
		cfg = st.Sheet
		return []string{KeySheetConfig}, nil
	})
	if err != nil {
		return cfg, err
	}
	log.WithField("spreadsheet_id", cfg.SpreadsheetID).Info("Google Sheets connected")
	return cfg, nil
}

// DisconnectSheets forgets the token; later payments stay local until reconnected.
func (d *Dashboard) DisconnectSheets(ctx context.Context) (models.SheetConfig, error) {
	if err := d.store.SaveSheetToken(ctx, nil); err != nil {
		return models.SheetConfig{}, err
	}
	var cfg models.SheetConfig
	err := d.store.Mutate(ctx, func(st *State) ([]string, error) {
		st.Sheet.IsConnected = false
		cfg = st.Sheet
		return []string{KeySheetConfig}, nil
	})
	return cfg, err
}

// IsUpstreamFailure reports whether err came from the language model rather
// than the caller's input.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrCommandFailed) || errors.Is(err, ErrDraftingUnavailable)
}
