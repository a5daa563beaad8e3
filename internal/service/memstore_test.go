package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// memDB is a tiny in-memory stand-in for the repositories used by the engine.
type memDB struct {
	mu          sync.Mutex
	seq         int
	slots       map[string]models.RecurringSlot
	holidays    map[string]models.Holiday
	students    map[string]models.StudentStatus
	enrollments map[string]models.Enrollment
	requests    map[string]models.RescheduleRequest
	credits     map[string]models.MakeupCredit
	usages      []models.CreditUsage
	absences    map[string]models.Absence
}

func newMemDB() *memDB {
	return &memDB{
		slots:       map[string]models.RecurringSlot{},
		holidays:    map[string]models.Holiday{},
		students:    map[string]models.StudentStatus{},
		enrollments: map[string]models.Enrollment{},
		requests:    map[string]models.RescheduleRequest{},
		credits:     map[string]models.MakeupCredit{},
		absences:    map[string]models.Absence{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) addSlot(id string, weekday int, start, end string, capacity int) models.RecurringSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	startAt, _ := models.ParseClockTime(start)
	endAt, _ := models.ParseClockTime(end)
	slot := models.RecurringSlot{
		ID:         id,
		Weekday:    weekday,
		StartTime:  startAt,
		EndTime:    endAt,
		TeacherID:  "teacher-1",
		Status:     models.SlotStatusActive,
		ModalityID: "pilates",
		Capacity:   capacity,
	}
	db.slots[id] = slot
	return slot
}

func (db *memDB) addWeekdaySlots(capacity int, weekdays ...int) {
	for _, wd := range weekdays {
		db.addSlot(fmt.Sprintf("slot-%d", wd), wd, "08:00", "09:00", capacity)
	}
}

func (db *memDB) addHoliday(date string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	d := models.MustParseDate(date)
	db.holidays[d.String()] = models.Holiday{Date: d, Description: "closed"}
}

func (db *memDB) enroll(studentID, slotID string) models.Enrollment {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.students[studentID]; !ok {
		db.students[studentID] = models.StudentStatusActive
	}
	e := models.Enrollment{ID: db.nextID("enr"), StudentID: studentID, SlotID: slotID, Active: true}
	db.enrollments[e.ID] = e
	return e
}

func (db *memDB) setStudentStatus(studentID string, status models.StudentStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.students[studentID] = status
}

func (db *memDB) addRequest(req models.RescheduleRequest) models.RescheduleRequest {
	db.mu.Lock()
	defer db.mu.Unlock()
	if req.ID == "" {
		req.ID = db.nextID("req")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC().Add(time.Duration(db.seq) * time.Millisecond)
	}
	db.requests[req.ID] = req
	return req
}

func (db *memDB) addCredit(credit models.MakeupCredit) models.MakeupCredit {
	db.mu.Lock()
	defer db.mu.Unlock()
	if credit.ID == "" {
		credit.ID = db.nextID("credit")
	}
	db.credits[credit.ID] = credit
	return credit
}

func (db *memDB) addAbsence(absence models.Absence) models.Absence {
	db.mu.Lock()
	defer db.mu.Unlock()
	if absence.ID == "" {
		absence.ID = db.nextID("absence")
	}
	if absence.Status == "" {
		absence.Status = models.AbsenceStatusRepayable
	}
	db.absences[absence.ID] = absence
	return absence
}

func (db *memDB) usagesFor(creditID string) []models.CreditUsage {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.CreditUsage
	for _, u := range db.usages {
		if u.CreditID == creditID {
			out = append(out, u)
		}
	}
	return out
}

func inRange(d, from, to models.Date) bool {
	return !d.Before(from) && !d.After(to)
}

// memSlots implements the slot readers.
type memSlots struct{ db *memDB }

func (r memSlots) ListActive(ctx context.Context, exec sqlx.ExtContext, weekday *int) ([]models.RecurringSlot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.RecurringSlot
	for _, s := range r.db.slots {
		if !s.Active() || (weekday != nil && s.Weekday != *weekday) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSlots) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memSlots) Deactivate(ctx context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.slots[id]
	if !ok || !s.Active() {
		return false, nil
	}
	s.Status = models.SlotStatusInactive
	r.db.slots[id] = s
	return true, nil
}

// memHolidays implements the holiday store.
type memHolidays struct{ db *memDB }

func (r memHolidays) ListInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.Holiday, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Holiday
	for _, h := range r.db.holidays {
		if inRange(h.Date, from, to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r memHolidays) Upsert(ctx context.Context, holiday models.Holiday) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.holidays[holiday.Date.String()] = holiday
	return nil
}

func (r memHolidays) Delete(ctx context.Context, date models.Date) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.holidays[date.String()]; !ok {
		return false, nil
	}
	delete(r.db.holidays, date.String())
	return true, nil
}

// memEnrollments implements the enrollment readers and store.
type memEnrollments struct{ db *memDB }

func (r memEnrollments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memEnrollments) ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range r.db.enrollments {
		slot, ok := r.db.slots[e.SlotID]
		if !e.Active || e.StudentID != studentID || !ok || !slot.Active() {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: e, Weekday: slot.Weekday, StartTime: slot.StartTime, EndTime: slot.EndTime})
	}
	return out, nil
}

func (r memEnrollments) CountSeatHolders(ctx context.Context, exec sqlx.ExtContext) (map[string]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := map[string]int{}
	for _, e := range r.db.enrollments {
		if e.Active && r.db.students[e.StudentID].OccupiesSeat() {
			counts[e.SlotID]++
		}
	}
	return counts, nil
}

func (r memEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	enrollment.ID = r.db.nextID("enr")
	enrollment.Active = true
	r.db.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r memEnrollments) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e := r.db.enrollments[id]
	e.Active = false
	r.db.enrollments[id] = e
	return nil
}

// memReschedules implements the reschedule readers and stores.
type memReschedules struct{ db *memDB }

func (r memReschedules) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

func (r memReschedules) FindOpenByOrigin(ctx context.Context, exec sqlx.ExtContext, studentID, originSlotID string, originDate models.Date, excludeID string) (*models.RescheduleRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, req := range r.db.requests {
		if req.ID == excludeID || !req.Status.Open() {
			continue
		}
		if req.StudentID == studentID && req.OriginSlotID == originSlotID && req.OriginDate.Equal(originDate) {
			found := req
			return &found, nil
		}
	}
	return nil, nil
}

func (r memReschedules) ListApprovedInWindow(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to models.Date) ([]models.RescheduleRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.RescheduleRequest
	for _, req := range r.db.requests {
		if req.Status != models.RescheduleStatusApproved {
			continue
		}
		if inRange(req.DestDate, from, to) || (req.StudentID == studentID && inRange(req.OriginDate, from, to)) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r memReschedules) LatestForAbsence(ctx context.Context, absence models.Absence) (*models.RescheduleRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var latest *models.RescheduleRequest
	for _, req := range r.db.requests {
		linked := req.AbsenceID != nil && *req.AbsenceID == absence.ID
		sameOrigin := req.StudentID == absence.StudentID && req.OriginSlotID == absence.SlotID && req.OriginDate.Equal(absence.Date)
		if !linked && !sameOrigin {
			continue
		}
		if latest == nil || req.CreatedAt.After(latest.CreatedAt) {
			found := req
			latest = &found
		}
	}
	return latest, nil
}

func (r memReschedules) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req.ID = r.db.nextID("req")
	req.CreatedAt = time.Now().UTC()
	r.db.requests[req.ID] = *req
	return nil
}

func (r memReschedules) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RescheduleStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req := r.db.requests[id]
	req.Status = status
	r.db.requests[id] = req
	return nil
}

func (r memReschedules) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.requests, id)
	return nil
}

// memCredits implements the credit stores and ledger reader.
type memCredits struct{ db *memDB }

func (r memCredits) FindByID(ctx context.Context, id string) (*models.MakeupCredit, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.credits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memCredits) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MakeupCredit, error) {
	return r.FindByID(ctx, id)
}

func (r memCredits) Create(ctx context.Context, credit *models.MakeupCredit) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	credit.ID = r.db.nextID("credit")
	r.db.credits[credit.ID] = *credit
	return nil
}

func (r memCredits) CreateUsage(ctx context.Context, exec sqlx.ExtContext, usage *models.CreditUsage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	usage.ID = r.db.nextID("usage")
	r.db.usages = append(r.db.usages, *usage)
	return nil
}

func (r memCredits) IncrementConsumed(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.db.credits[id]
	if c.QuantityConsumed >= c.QuantityGranted {
		return false, nil
	}
	c.QuantityConsumed++
	r.db.credits[id] = c
	return true, nil
}

func (r memCredits) ListUsagesInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.CreditUsage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.CreditUsage
	for _, u := range r.db.usages {
		if inRange(u.DestDate, from, to) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memCredits) DeleteWithUsages(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.usages[:0]
	for _, u := range r.db.usages {
		if u.CreditID != id {
			kept = append(kept, u)
		}
	}
	r.db.usages = kept
	if _, ok := r.db.credits[id]; !ok {
		return false, nil
	}
	delete(r.db.credits, id)
	return true, nil
}

// memAbsences implements the absence store.
type memAbsences struct{ db *memDB }

func (r memAbsences) FindByID(ctx context.Context, id string) (*models.Absence, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.absences[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r memAbsences) ListOpenSince(ctx context.Context, since models.Date) ([]models.Absence, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Absence
	for _, a := range r.db.absences {
		if a.Date.Before(since) {
			continue
		}
		if a.Status == models.AbsenceStatusRepayable || a.Status == models.AbsenceStatusRejectedRepayment {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAbsences) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AbsenceStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a := r.db.absences[id]
	if a.Status == models.AbsenceStatusExpired {
		return nil
	}
	a.Status = status
	r.db.absences[id] = a
	return nil
}

// serialTx runs units of work one at a time, mirroring the advisory locks.
type serialTx struct {
	mu    sync.Mutex
	locks [][]string
}

func (t *serialTx) InTx(ctx context.Context, lockKeys []string, fn func(exec sqlx.ExtContext) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locks = append(t.locks, append([]string(nil), lockKeys...))
	return fn(nil)
}

// recordingCache captures invalidations and stores values in memory.
type recordingCache struct {
	mu          sync.Mutex
	values      map[string]models.Date
	patterns    []string
	gets, hits  int
	invalidates int
	generation  uint64
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[string]models.Date{}}
}

func (c *recordingCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	*(dest.(*models.Date)) = v
	return true, nil
}

func (c *recordingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(models.Date)
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
	c.generation++
	c.patterns = append(c.patterns, pattern)
	c.values = map[string]models.Date{}
	return nil
}

func (c *recordingCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// engine wires every service over one memDB.
type engine struct {
	db           *memDB
	tx           *serialTx
	cache        *recordingCache
	availability *AvailabilityService
	deadlines    *DeadlineService
	booking      *BookingService
	reschedules  *RescheduleService
	credits      *CreditService
	absences     *AbsenceService
	enrollments  *EnrollmentService
}

func newEngine(db *memDB) *engine {
	tx := &serialTx{}
	cache := newRecordingCache()
	availability := NewAvailabilityService(AvailabilityReaders{
		Slots:       memSlots{db},
		Holidays:    memHolidays{db},
		Enrollments: memEnrollments{db},
		Reschedules: memReschedules{db},
		Usages:      memCredits{db},
	}, OccupancyPolicy{ZeroCapacityUnlimited: true}, 120, nil)
	deadlines := NewDeadlineService(availability, memAbsences{db}, memCredits{db}, nil, nil, DeadlineConfig{HorizonDays: 120}, nil)
	booking := NewBookingService(BookingDeps{
		Tx:          tx,
		Slots:       memSlots{db},
		Enrollments: memEnrollments{db},
		Reschedules: memReschedules{db},
		Credits:     memCredits{db},
		Absences:    memAbsences{db},
		Snapshots:   availability,
		Deadlines:   deadlines,
		Cache:       cache,
	}, nil, nil)
	return &engine{
		db:           db,
		tx:           tx,
		cache:        cache,
		availability: availability,
		deadlines:    deadlines,
		booking:      booking,
		reschedules:  NewRescheduleService(tx, memReschedules{db}, booking, memAbsences{db}, deadlines, cache, nil),
		credits:      NewCreditService(tx, memCredits{db}, cache, nil, nil),
		absences:     NewAbsenceService(memAbsences{db}, memReschedules{db}, deadlines, nil, 180, nil),
		enrollments:  NewEnrollmentService(tx, memEnrollments{db}, memSlots{db}, availability, 120, cache, nil, nil),
	}
}

var staffActor = models.Actor{UserID: "staff-1", Role: models.RoleStaff}

func studentActor(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleStudent}
}

func day(raw string) models.Date { return models.MustParseDate(raw) }
