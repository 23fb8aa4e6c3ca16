package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/cucumber/godog"
)

type countingBookings struct {
	bookings map[int64]domain.BookingRef
	calls    int
}

func (c *countingBookings) FindByID(_ context.Context, id int64) (domain.BookingRef, error) {
	c.calls++
	b, ok := c.bookings[id]
	if !ok {
		return domain.BookingRef{}, domain.ErrBookingNotFound
	}
	return b, nil
}

type authorizationFeature struct {
	bookings *countingBookings
	err      error
}

func (f *authorizationFeature) aBooking(id, customerID, providerID int64) error {
	f.bookings.bookings[id] = domain.BookingRef{ID: id, CustomerID: customerID, ProviderUserID: providerID, Status: "confirmed"}
	return nil
}

func (f *authorizationFeature) check(p domain.Principal, room string) error {
	f.err = NewAuthorizer(f.bookings).Check(context.Background(), p, domain.ParseRoom(room))
	return nil
}

func (f *authorizationFeature) userJoins(id int64, room string) error {
	return f.check(domain.Authenticated(domain.Identity{ID: id}), room)
}

func (f *authorizationFeature) providerJoins(id int64, room string) error {
	return f.check(domain.Authenticated(domain.Identity{ID: id, IsProvider: true}), room)
}

func (f *authorizationFeature) anonymousJoins(room string) error {
	return f.check(domain.Anonymous(), room)
}

func (f *authorizationFeature) accessIs(result string) error {
	switch {
	case result == "granted" && f.err != nil:
		return fmt.Errorf("expected access, got %v", f.err)
	case result == "denied" && f.err == nil:
		return errors.New("expected refusal, access was granted")
	case result == "denied" && !errors.Is(f.err, domain.ErrAuthorization):
		return fmt.Errorf("refusal %v is not an authorization failure", f.err)
	}
	return nil
}

func (f *authorizationFeature) refusalReason(reason string) error {
	if f.err == nil || !strings.Contains(f.err.Error(), reason) {
		return fmt.Errorf("expected refusal containing %q, got %v", reason, f.err)
	}
	return nil
}

func (f *authorizationFeature) bookingQueried(n int) error {
	if f.bookings.calls != n {
		return fmt.Errorf("booking store queried %d times, want %d", f.bookings.calls, n)
	}
	return nil
}

func initializeAuthorizationScenario(sc *godog.ScenarioContext) {
	f := &authorizationFeature{bookings: &countingBookings{bookings: map[int64]domain.BookingRef{}}}

	sc.Step(`^a booking (\d+) with customer (\d+) and provider (\d+)$`, f.aBooking)
	sc.Step(`^user (\d+) asks to join "([^"]*)"$`, f.userJoins)
	sc.Step(`^user (\d+) who is a provider asks to join "([^"]*)"$`, f.providerJoins)
	sc.Step(`^an anonymous visitor asks to join "([^"]*)"$`, f.anonymousJoins)
	sc.Step(`^access is (granted|denied)$`, f.accessIs)
	sc.Step(`^the refusal reason is "([^"]*)"$`, f.refusalReason)
	sc.Step(`^the booking store was queried (\d+) times?$`, f.bookingQueried)
}

func TestAuthorizationFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "authorization",
		ScenarioInitializer: initializeAuthorizationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
