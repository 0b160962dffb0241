package compactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gexpipe/db"
	"gexpipe/utils"
)

func istMinute(hour, minute int) time.Time {
	return time.Date(2026, 8, 27, hour, minute, 0, 0, utils.IST())
}

func minuteRow(strike float64, minute, fetched time.Time) db.MinuteSnapshot {
	return db.MinuteSnapshot{
		Timestamp:  fetched,
		ISTMinute:  minute,
		Instrument: "NIFTY",
		Expiry:     time.Date(2026, 9, 2, 0, 0, 0, 0, utils.IST()),
		Strike:     strike,
	}
}

func TestSelectMinuteBucketsLatestWins(t *testing.T) {
	fetched := istMinute(10, 0)
	rows := []db.MinuteSnapshot{
		minuteRow(22450, istMinute(10, 1), fetched),
		minuteRow(22450, istMinute(10, 4), fetched),
		minuteRow(22450, istMinute(10, 2), fetched),
	}

	out := SelectMinuteBuckets(rows, 5)
	require.Len(t, out, 1)
	// The 10:04 row survives, restamped to the bucket start
	assert.Equal(t, "10:00", out[0].ISTMinute.Format("15:04"))
	assert.True(t, out[0].Timestamp.Equal(fetched))
}

func TestSelectMinuteBucketsTimestampTieBreak(t *testing.T) {
	early := istMinute(10, 4)
	late := early.Add(30 * time.Second)

	first := minuteRow(22450, istMinute(10, 4), early)
	second := minuteRow(22450, istMinute(10, 4), late)
	second.UnderlyingPrice = 22431

	out := SelectMinuteBuckets([]db.MinuteSnapshot{first, second}, 5)
	require.Len(t, out, 1)
	assert.Equal(t, 22431.0, out[0].UnderlyingPrice)
}

func TestSelectMinuteBucketsKeyedByStrikeAndBucket(t *testing.T) {
	fetched := istMinute(10, 0)
	rows := []db.MinuteSnapshot{
		minuteRow(22450, istMinute(10, 1), fetched),
		minuteRow(22500, istMinute(10, 1), fetched),
		minuteRow(22450, istMinute(10, 6), fetched),
	}

	out := SelectMinuteBuckets(rows, 5)
	require.Len(t, out, 3)
	// Deterministic order: bucket ascending, then strike
	assert.Equal(t, "10:00", out[0].ISTMinute.Format("15:04"))
	assert.Equal(t, 22450.0, out[0].Strike)
	assert.Equal(t, 22500.0, out[1].Strike)
	assert.Equal(t, "10:05", out[2].ISTMinute.Format("15:04"))
}

func TestSelectSummaryBuckets(t *testing.T) {
	expiry := time.Date(2026, 9, 2, 0, 0, 0, 0, utils.IST())
	rows := []db.Summary{
		{Instrument: "NIFTY", Expiry: expiry, ISTMinute: istMinute(10, 1), TotalNetGex: 1},
		{Instrument: "NIFTY", Expiry: expiry, ISTMinute: istMinute(10, 4), TotalNetGex: 2},
		{Instrument: "NIFTY", Expiry: expiry, ISTMinute: istMinute(10, 7), TotalNetGex: 3},
	}

	out := SelectSummaryBuckets(rows, 5)
	require.Len(t, out, 2)
	assert.Equal(t, "10:00", out[0].ISTMinute.Format("15:04"))
	assert.Equal(t, 2.0, out[0].TotalNetGex)
	assert.Equal(t, "10:05", out[1].ISTMinute.Format("15:04"))
	assert.Equal(t, 3.0, out[1].TotalNetGex)
}

type fakeCompactionStore struct {
	days     []db.InstrumentDay
	expiry   time.Time
	hasRows  bool
	minutes  map[string][]db.MinuteSnapshot
	sums     map[string][]db.Summary
	migrated []db.InstrumentDay
	failDay  string
}

func (f *fakeCompactionStore) ListActiveDays(ctx context.Context) ([]db.InstrumentDay, error) {
	return f.days, nil
}

func (f *fakeCompactionStore) EarliestExpiryForDay(ctx context.Context, instrument string, day time.Time) (time.Time, bool, error) {
	return f.expiry, f.hasRows, nil
}

func (f *fakeCompactionStore) MinuteSnapshotsForDay(ctx context.Context, instrument string, expiry, day time.Time) ([]db.MinuteSnapshot, error) {
	return f.minutes[day.Format("2006-01-02")], nil
}

func (f *fakeCompactionStore) SummariesForDay(ctx context.Context, instrument string, day time.Time) ([]db.Summary, error) {
	return f.sums[day.Format("2006-01-02")], nil
}

func (f *fakeCompactionStore) MigrateDay(ctx context.Context, instrument string, day time.Time, minutes []db.MinuteSnapshot, summaries []db.Summary) error {
	if day.Format("2006-01-02") == f.failDay {
		return errors.New("migration tx aborted")
	}
	f.migrated = append(f.migrated, db.InstrumentDay{Instrument: instrument, Day: day})
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) SendMessage(message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func TestSweepMigratesEveryDay(t *testing.T) {
	day1 := time.Date(2026, 8, 26, 0, 0, 0, 0, utils.IST())
	day2 := time.Date(2026, 8, 27, 0, 0, 0, 0, utils.IST())
	store := &fakeCompactionStore{
		days: []db.InstrumentDay{
			{Instrument: "NIFTY", Day: day1},
			{Instrument: "NIFTY", Day: day2},
		},
		expiry:  time.Date(2026, 9, 2, 0, 0, 0, 0, utils.IST()),
		hasRows: true,
	}
	notifier := &fakeNotifier{}

	c := NewCompactor(store, notifier, 5)
	err := c.Sweep(context.Background())

	require.NoError(t, err)
	assert.Len(t, store.migrated, 2)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "2/2")
}

func TestSweepOneFailureDoesNotAbort(t *testing.T) {
	day1 := time.Date(2026, 8, 26, 0, 0, 0, 0, utils.IST())
	day2 := time.Date(2026, 8, 27, 0, 0, 0, 0, utils.IST())
	store := &fakeCompactionStore{
		days: []db.InstrumentDay{
			{Instrument: "NIFTY", Day: day1},
			{Instrument: "NIFTY", Day: day2},
		},
		expiry:  time.Date(2026, 9, 2, 0, 0, 0, 0, utils.IST()),
		hasRows: true,
		failDay: "2026-08-26",
	}

	c := NewCompactor(store, nil, 5)
	err := c.Sweep(context.Background())

	require.NoError(t, err)
	require.Len(t, store.migrated, 1)
	assert.Equal(t, "2026-08-27", store.migrated[0].Day.Format("2006-01-02"))
}

type memKey struct {
	instrument string
	expiry     string
	strike     float64
	minute     string
}

type memSumKey struct {
	instrument string
	expiry     string
	minute     string
}

// memoryStore mirrors the storage contracts: short-term rows replaceable,
// historical inserts first-write-wins, migration purges the day in the
// same call.
type memoryStore struct {
	minutes     map[memKey]db.MinuteSnapshot
	sums        map[memSumKey]db.Summary
	histMinutes map[memKey]db.MinuteSnapshot
	histSums    map[memSumKey]db.Summary
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		minutes:     make(map[memKey]db.MinuteSnapshot),
		sums:        make(map[memSumKey]db.Summary),
		histMinutes: make(map[memKey]db.MinuteSnapshot),
		histSums:    make(map[memSumKey]db.Summary),
	}
}

func minuteKey(r db.MinuteSnapshot) memKey {
	return memKey{r.Instrument, r.Expiry.Format("2006-01-02"), r.Strike, r.ISTMinute.Format(time.RFC3339)}
}

func summaryKey(s db.Summary) memSumKey {
	return memSumKey{s.Instrument, s.Expiry.Format("2006-01-02"), s.ISTMinute.Format(time.RFC3339)}
}

func sameDay(ts, day time.Time) bool {
	return utils.ToIST(ts).Format("2006-01-02") == utils.ToIST(day).Format("2006-01-02")
}

func (m *memoryStore) seed(rows ...db.MinuteSnapshot) {
	for _, r := range rows {
		m.minutes[minuteKey(r)] = r
	}
}

func (m *memoryStore) seedSummary(sums ...db.Summary) {
	for _, s := range sums {
		m.sums[summaryKey(s)] = s
	}
}

func (m *memoryStore) ListActiveDays(ctx context.Context) ([]db.InstrumentDay, error) {
	seen := make(map[string]db.InstrumentDay)
	add := func(instrument string, ts time.Time) {
		d := utils.ToIST(ts)
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, utils.IST())
		seen[instrument+day.Format("2006-01-02")] = db.InstrumentDay{Instrument: instrument, Day: day}
	}
	for _, r := range m.minutes {
		add(r.Instrument, r.ISTMinute)
	}
	for _, s := range m.sums {
		add(s.Instrument, s.ISTMinute)
	}
	out := make([]db.InstrumentDay, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	return out, nil
}

func (m *memoryStore) EarliestExpiryForDay(ctx context.Context, instrument string, day time.Time) (time.Time, bool, error) {
	var earliest time.Time
	found := false
	for _, r := range m.minutes {
		if r.Instrument != instrument || !sameDay(r.ISTMinute, day) {
			continue
		}
		if !found || r.Expiry.Before(earliest) {
			earliest, found = r.Expiry, true
		}
	}
	return earliest, found, nil
}

func (m *memoryStore) MinuteSnapshotsForDay(ctx context.Context, instrument string, expiry, day time.Time) ([]db.MinuteSnapshot, error) {
	var out []db.MinuteSnapshot
	for _, r := range m.minutes {
		if r.Instrument == instrument && r.Expiry.Equal(expiry) && sameDay(r.ISTMinute, day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) SummariesForDay(ctx context.Context, instrument string, day time.Time) ([]db.Summary, error) {
	var out []db.Summary
	for _, s := range m.sums {
		if s.Instrument == instrument && sameDay(s.ISTMinute, day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) MigrateDay(ctx context.Context, instrument string, day time.Time, minutes []db.MinuteSnapshot, summaries []db.Summary) error {
	for _, r := range minutes {
		k := minuteKey(r)
		if _, exists := m.histMinutes[k]; !exists {
			m.histMinutes[k] = r
		}
	}
	for _, s := range summaries {
		k := summaryKey(s)
		if _, exists := m.histSums[k]; !exists {
			m.histSums[k] = s
		}
	}
	for k, r := range m.minutes {
		if r.Instrument == instrument && sameDay(r.ISTMinute, day) {
			delete(m.minutes, k)
		}
	}
	for k, s := range m.sums {
		if s.Instrument == instrument && sameDay(s.ISTMinute, day) {
			delete(m.sums, k)
		}
	}
	return nil
}

func TestSweepTwiceConvergesAndPurges(t *testing.T) {
	expiry := time.Date(2026, 9, 2, 0, 0, 0, 0, utils.IST())
	store := newMemoryStore()

	early := minuteRow(22450, istMinute(10, 1), istMinute(10, 1))
	early.UnderlyingPrice = 22400
	late := minuteRow(22450, istMinute(10, 4), istMinute(10, 4))
	late.UnderlyingPrice = 22410
	store.seed(early, late)
	store.seedSummary(db.Summary{
		Instrument: "NIFTY", Expiry: expiry, ISTMinute: istMinute(10, 4), TotalNetGex: 7,
	})

	c := NewCompactor(store, nil, 5)
	require.NoError(t, c.Sweep(context.Background()))

	// Short-term is purged in the same migration
	assert.Empty(t, store.minutes)
	assert.Empty(t, store.sums)

	// One bucket, one historical row, the latest minute's values
	require.Len(t, store.histMinutes, 1)
	for _, r := range store.histMinutes {
		assert.Equal(t, "10:00", r.ISTMinute.Format("15:04"))
		assert.Equal(t, 22410.0, r.UnderlyingPrice)
	}
	require.Len(t, store.histSums, 1)

	// The day reappears with different values; a second sweep must not
	// overwrite the historical rows or leave short-term data behind.
	stale := minuteRow(22450, istMinute(10, 4), istMinute(10, 4))
	stale.UnderlyingPrice = 99999
	store.seed(stale)
	store.seedSummary(db.Summary{
		Instrument: "NIFTY", Expiry: expiry, ISTMinute: istMinute(10, 4), TotalNetGex: 99,
	})

	require.NoError(t, c.Sweep(context.Background()))

	assert.Empty(t, store.minutes)
	assert.Empty(t, store.sums)
	require.Len(t, store.histMinutes, 1)
	for _, r := range store.histMinutes {
		assert.Equal(t, 22410.0, r.UnderlyingPrice)
	}
	require.Len(t, store.histSums, 1)
	for _, s := range store.histSums {
		assert.Equal(t, 7.0, s.TotalNetGex)
	}
}

func TestSweepNothingToCompact(t *testing.T) {
	store := &fakeCompactionStore{}
	notifier := &fakeNotifier{}

	c := NewCompactor(store, notifier, 5)
	err := c.Sweep(context.Background())

	require.NoError(t, err)
	assert.Empty(t, store.migrated)
	assert.Empty(t, notifier.messages)
}
