package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/testutil"
)

const testDate = "2026-03-03"

func newReservation(userID, fieldID uint64, start, end string) *model.Reservation {
	return &model.Reservation{
		UserID: userID, FieldID: fieldID, Date: testDate,
		StartTime: start, EndTime: end, TotalPrice: 100,
	}
}

func TestCreateChecked(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	first := newReservation(userID, fieldID, "10:00", "12:00")
	require.NoError(t, repo.CreateChecked(ctx, first, ""))
	assert.NotZero(t, first.ID)
	assert.Equal(t, model.StatusPending, first.Status)
	assert.Equal(t, model.PaymentPending, first.PaymentStatus)
	assert.Equal(t, testDate, first.Date)

	_, err := repo.UpdatePaymentStatus(ctx, first.ID, PaymentUpdate{Status: model.PaymentPaid})
	require.NoError(t, err)

	t.Run("overlapping request rejected", func(t *testing.T) {
		err := repo.CreateChecked(ctx, newReservation(userID, fieldID, "11:00", "13:00"), "")
		assert.ErrorIs(t, err, booking.ErrSlotConflict)
	})

	t.Run("adjacent request accepted", func(t *testing.T) {
		require.NoError(t, repo.CreateChecked(ctx, newReservation(userID, fieldID, "12:00", "14:00"), ""))
	})

	t.Run("conflict check is read-only and repeatable", func(t *testing.T) {
		a, err := repo.FindConflicts(ctx, fieldID, testDate, "11:00", "13:00")
		require.NoError(t, err)
		b, err := repo.FindConflicts(ctx, fieldID, testDate, "11:00", "13:00")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 2)
	})

	t.Run("other field unaffected", func(t *testing.T) {
		other := testutil.InsertField(t, db, "Futsal B", 100000)
		require.NoError(t, repo.CreateChecked(ctx, newReservation(userID, other, "10:00", "12:00"), ""))
	})

	t.Run("cancelled reservation releases its slots", func(t *testing.T) {
		res := newReservation(userID, fieldID, "16:00", "17:00")
		require.NoError(t, repo.CreateChecked(ctx, res, ""))
		_, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentRefunded})
		require.NoError(t, err)
		require.NoError(t, repo.CreateChecked(ctx, newReservation(userID, fieldID, "16:00", "17:00"), ""))
	})

	t.Run("inactive field rejected", func(t *testing.T) {
		_, err := db.Exec("UPDATE fields SET is_active = 0 WHERE id = ?", fieldID)
		require.NoError(t, err)
		defer db.Exec("UPDATE fields SET is_active = 1 WHERE id = ?", fieldID)
		err = repo.CreateChecked(ctx, newReservation(userID, fieldID, "20:00", "21:00"), "")
		assert.ErrorIs(t, err, ErrFieldNotFound)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		err := repo.CreateChecked(ctx, newReservation(userID, 9999, "20:00", "21:00"), "")
		assert.ErrorIs(t, err, ErrFieldNotFound)
	})
}

func TestCreateChecked_Concurrent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i := 0; i < workers; i++ {
		userID := testutil.InsertUser(t, db, fmt.Sprintf("u%d@example.com", i), model.RoleUser)
		wg.Add(1)
		go func(start string) {
			defer wg.Done()
			end := "12:00"
			if start == "11:00" {
				end = "13:00"
			}
			err := repo.CreateChecked(context.Background(), newReservation(userID, fieldID, start, end), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, booking.ErrSlotConflict):
				clash++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}([]string{"10:00", "11:00"}[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, clash)

	list, err := repo.ListBlockingInRange(context.Background(), fieldID, testDate, testDate)
	require.NoError(t, err)
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			a, _ := booking.ParseRange(list[i].StartTime, list[i].EndTime)
			b, _ := booking.ParseRange(list[j].StartTime, list[j].EndTime)
			assert.False(t, a.Overlaps(b), "reservations %d and %d overlap", list[i].ID, list[j].ID)
		}
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	res := newReservation(userID, fieldID, "10:00", "12:00")
	require.NoError(t, repo.CreateChecked(ctx, res, ""))

	paid, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPaid})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, model.StatusConfirmed, paid.Status)

	proof := "/uploads/payments/p.png"
	note := "second transfer"
	again, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPending, Proof: &proof, Notes: &note})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, again.PaymentStatus)
	assert.Equal(t, model.StatusPending, again.Status)
	require.NotNil(t, again.PaymentProof)
	assert.Equal(t, proof, *again.PaymentProof)
	require.NotNil(t, again.PaymentNotes)
	assert.Equal(t, note, *again.PaymentNotes)

	refunded, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentRefunded})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, refunded.Status)
	assert.Equal(t, proof, *refunded.PaymentProof, "proof kept when not replaced")

	t.Run("revival re-checks conflicts", func(t *testing.T) {
		taker := newReservation(userID, fieldID, "11:00", "12:00")
		require.NoError(t, repo.CreateChecked(ctx, taker, ""))
		_, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPaid})
		assert.ErrorIs(t, err, booking.ErrSlotConflict)

		cur, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, cur.Status, "failed update leaves no partial state")
	})

	t.Run("completed reservations are closed", func(t *testing.T) {
		done := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-01", "10:00", "11:00",
			string(model.StatusCompleted), string(model.PaymentPaid))
		_, err := repo.UpdatePaymentStatus(ctx, done, PaymentUpdate{Status: model.PaymentPending})
		assert.ErrorIs(t, err, ErrReservationClosed)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := repo.UpdatePaymentStatus(ctx, 424242, PaymentUpdate{Status: model.PaymentPaid})
		assert.ErrorIs(t, err, ErrReservationNotFound)
	})
}

func TestUpdatePaymentStatus_AdminNote(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	res := newReservation(userID, fieldID, "10:00", "12:00")
	require.NoError(t, repo.CreateChecked(ctx, res, ""))

	// The customer's notes land after the admin loaded the reservation.
	proof := "/uploads/payments/p.png"
	note := "BCA transfer"
	_, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPending, Proof: &proof, Notes: &note})
	require.NoError(t, err)

	paid, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPaid, AdminNote: "verified"})
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentNotes)
	assert.Equal(t, "BCA transfer\n[Admin]: verified", *paid.PaymentNotes)

	blank, err := repo.UpdatePaymentStatus(ctx, res.ID, PaymentUpdate{Status: model.PaymentPaid, AdminNote: "  "})
	require.NoError(t, err)
	assert.Equal(t, *paid.PaymentNotes, *blank.PaymentNotes)
}

func TestCompletion(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	past := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-01", "10:00", "12:00", "CONFIRMED", "PAID")
	today := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-02", "08:00", "09:00", "CONFIRMED", "PAID")
	running := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-02", "09:00", "11:00", "CONFIRMED", "PAID")
	testutil.InsertReservation(t, db, userID, fieldID, "2026-03-01", "13:00", "14:00", "PENDING", "PENDING")

	list, err := repo.ListCompletable(ctx, "2026-03-02", "10:00", 0)
	require.NoError(t, err)
	ids := []uint64{}
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint64{past, today}, ids)

	ok, err := repo.MarkCompleted(ctx, past)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkCompleted(ctx, past)
	require.NoError(t, err)
	assert.False(t, ok)

	cur, err := repo.GetByID(ctx, running)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, cur.Status)
}

func TestReservationList(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	a := testutil.InsertField(t, db, "Futsal A", 150000)
	b := testutil.InsertField(t, db, "Badminton B", 80000)
	u1 := testutil.InsertUser(t, db, "one@example.com", model.RoleUser)
	u2 := testutil.InsertUser(t, db, "two@example.com", model.RoleUser)

	testutil.InsertReservation(t, db, u1, a, testDate, "10:00", "11:00", "PENDING", "PENDING")
	testutil.InsertReservation(t, db, u1, b, testDate, "10:00", "11:00", "CONFIRMED", "PAID")
	testutil.InsertReservation(t, db, u2, a, "2026-03-04", "10:00", "11:00", "CANCELLED", "REFUNDED")

	all, total, err := repo.List(ctx, ReservationQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	mine, total, err := repo.List(ctx, ReservationQuery{UserID: u1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, d := range mine {
		assert.Equal(t, "one@example.com", d.UserEmail)
	}

	paid, _, err := repo.List(ctx, ReservationQuery{PaymentStatus: model.PaymentPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "Badminton B", paid[0].FieldName)

	byName, _, err := repo.List(ctx, ReservationQuery{Search: "badminton"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	page, total, err := repo.List(ctx, ReservationQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 1)

	revenue, err := NewReservationRepo(db).PaidRevenue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, revenue, "seeded rows have zero price")

	n, err := repo.CountOnDate(ctx, testDate)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	d, err := repo.GetDetail(ctx, paid[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Badminton B", d.FieldName)
	_, err = repo.GetDetail(ctx, 9999)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestMatchAccessToken(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	fieldID := testutil.InsertField(t, db, "Futsal A", 150000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	res := newReservation(userID, fieldID, "10:00", "11:00")
	require.NoError(t, repo.CreateChecked(ctx, res, "abc123"))

	ok, err := repo.MatchAccessToken(ctx, res.ID, "abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MatchAccessToken(ctx, res.ID, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	other := newReservation(userID, fieldID, "12:00", "13:00")
	require.NoError(t, repo.CreateChecked(ctx, other, ""))
	ok, err = repo.MatchAccessToken(ctx, other.ID, "")
	require.NoError(t, err)
	assert.False(t, ok, "reservations without a token never match")
}
