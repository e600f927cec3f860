package crdb_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-pass-gate/internal/adapters/crdb"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/gate"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping CockroachDB container test in short mode")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testBooking(code, name, phone string, people int, offset time.Duration) domain.Booking {
	return domain.Booking{
		ID:            uuid.NewString(),
		Code:          code,
		PassTypeID:    "couple",
		PassTypeName:  "Couple",
		BuyerName:     name,
		BuyerPhone:    phone,
		TotalPeople:   people,
		TotalAmount:   1200,
		PaymentStatus: domain.PaymentPaid,
		PaymentMode:   domain.PaymentCash,
		CreatedAt:     baseTime.Add(offset),
	}
}

func TestRepository_BookingLookups(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := testBooking("PS-AAAA0001", "Asha Rao", "9876543210", 2, 0)
	second := testBooking("PS-AAAA0002", "Asha Rao", "9876543210", 4, time.Minute)
	rich := testBooking("PS-AAAA0003", "Vikram Iyer", "9123456780", 0, 2*time.Minute)
	rich.Passes = []domain.SubPass{
		{PassTypeID: "teens", PassTypeName: "Teens", PeopleCount: 1},
		{PassTypeID: "family", PassTypeName: "Family", PeopleCount: 4},
	}
	for _, b := range []domain.Booking{first, second, rich} {
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatalf("create %s: %v", b.Code, err)
		}
	}

	if err := repo.CreateBooking(ctx, testBooking(first.Code, "Dup", "", 1, 0)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict on duplicate code, got %v", err)
	}

	byCode, err := repo.FindBookingByCode(ctx, "PS-AAAA0003")
	if err != nil {
		t.Fatal(err)
	}
	if len(byCode.Passes) != 2 || byCode.Passes[0].PassTypeName != "Teens" || byCode.Passes[1].PeopleCount != 4 {
		t.Errorf("expected passes in position order, got %+v", byCode.Passes)
	}

	byID, err := repo.FindBookingByCode(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Code != second.Code {
		t.Errorf("expected id lookup to return %s, got %s", second.Code, byID.Code)
	}

	if _, err := repo.FindBookingByCode(ctx, "PS-ZZZZ9999"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := repo.GetBooking(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Errorf("expected not found for malformed id, got %v", err)
	}

	byPhone, err := repo.FindBookingsByPhone(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if len(byPhone) != 2 || byPhone[0].Code != first.Code || byPhone[1].Code != second.Code {
		t.Errorf("expected both phone bookings in insertion order, got %v", byPhone)
	}

	byName, err := repo.SearchBookingsByName(ctx, "iyer")
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 1 || byName[0].Code != rich.Code || len(byName[0].Passes) != 2 {
		t.Errorf("expected the rich booking with passes, got %v", byName)
	}

	all, err := repo.ListBookings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(all))
	}
}

func TestRepository_RecordEntry(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	b := testBooking("PS-BBBB0001", "Meera Das", "9000000001", 5, 0)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}

	acc := gate.NewAccumulator(repo, "4821")
	adm, err := acc.Admit(ctx, gate.AdmitRequest{BookingID: b.ID, Count: 2, Operator: "gate-1"})
	if err != nil {
		t.Fatal(err)
	}
	if adm.Entered != 2 || adm.Remaining != 3 || adm.Status != domain.StatusPartiallyCheckedIn {
		t.Errorf("unexpected admission %+v", adm)
	}

	_, err = acc.Admit(ctx, gate.AdmitRequest{BookingID: b.ID, Count: 4, Operator: "gate-1"})
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) || capErr.Remaining != 3 {
		t.Fatalf("expected capacity error with 3 remaining, got %v", err)
	}

	if _, err := acc.Admit(ctx, gate.AdmitRequest{BookingID: b.ID, Count: 4, Operator: "gate-2", AdminOverride: true, AdminPIN: "4821"}); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PeopleEntered != 6 || !stored.CheckedIn || stored.CheckedInAt == nil || stored.ScannedBy != "gate-2" {
		t.Errorf("unexpected stored booking %+v", stored)
	}

	logs, err := repo.ListEntryLogs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entry logs, got %d", len(logs))
	}
	if !logs[0].AdminOverride || logs[0].PeopleEntered != 4 || logs[0].BuyerName != "Meera Das" || logs[0].BookingCode != b.Code {
		t.Errorf("expected newest log to be the override, got %+v", logs[0])
	}

	if err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := repo.GetUnpublishedOutbox(ctx, tx, 10)
		if err != nil {
			return err
		}
		kinds := map[string]int{}
		for _, rec := range records {
			kinds[rec.EventType]++
		}
		if kinds[domain.EventBookingCreated] != 1 || kinds[domain.EventEntryAdmitted] != 2 {
			t.Errorf("unexpected outbox contents %v", kinds)
		}
		for _, rec := range records {
			if err := repo.MarkPublished(ctx, tx, rec.ID, time.Now()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := repo.GetUnpublishedOutbox(ctx, tx, 10)
		if err != nil {
			return err
		}
		if len(records) != 0 {
			t.Errorf("expected outbox drained, got %d records", len(records))
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRepository_RecordEntryRichShape(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	b := testBooking("PS-CCCC0001", "Kiran Shah", "9000000002", 0, 0)
	b.Passes = []domain.SubPass{
		{PassTypeID: "teens", PassTypeName: "Teens", PeopleCount: 1},
		{PassTypeID: "couple", PassTypeName: "Couple", PeopleCount: 2},
	}
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}

	acc := gate.NewAccumulator(repo, "")
	if _, err := acc.Admit(ctx, gate.AdmitRequest{BookingID: b.ID, Count: 2, Operator: "gate-1"}); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Passes[0].PeopleEntered != 1 || stored.Passes[1].PeopleEntered != 1 || stored.PeopleEntered != 2 {
		t.Errorf("expected sub-passes filled in order, got %+v", stored.Passes)
	}
}

func TestRepository_ConcurrentAdmissionsAdmitExactlyCapacity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	b := testBooking("PS-DDDD0001", "Ravi Nair", "9000000003", 3, 0)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}

	acc := gate.NewAccumulator(repo, "")
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A scanner retries a 409 the same way, so every scan ends
			// admitted or refused for capacity.
			var err error
			for attempt := 0; attempt < 5; attempt++ {
				_, err = acc.Admit(ctx, gate.AdmitRequest{BookingID: b.ID, Count: 1, Operator: "gate"})
				if !errors.Is(err, domain.ErrSerializationFailure) {
					break
				}
			}
			var capErr *domain.CapacityError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.As(err, &capErr):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted != 3 || refused != 5 {
		t.Errorf("admitted %d and refused %d, want 3 and 5", admitted, refused)
	}
	stored, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PeopleEntered != 3 {
		t.Errorf("stored total %d, want 3", stored.PeopleEntered)
	}

	logs, err := repo.ListEntryLogs(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 {
		t.Errorf("expected 3 entry logs, got %d", len(logs))
	}
}
