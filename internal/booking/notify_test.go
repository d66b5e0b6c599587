package booking

import (
	"context"
	"errors"
	"testing"

	"venuebook/internal/model"
)

type failingNotifier struct{}

func (failingNotifier) Publish([]byte, int) error {
	return errors.New("broker down")
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.ctrl.nt = failingNotifier{}
	ctx := context.Background()

	e := f.createEvent(t, f.student, 9, 10)
	submitted, err := f.ctrl.SubmitEvent(ctx, f.student, e.ID)
	if err != nil {
		t.Fatalf("SubmitEvent with broken notifier: %v", err)
	}
	if submitted.Status != model.StatusSubmitted {
		t.Errorf("status = %s, want submitted", submitted.Status)
	}

	if _, err := f.ctrl.DecideEvent(ctx, f.admin, e.ID, true); err != nil {
		t.Fatalf("DecideEvent with broken notifier: %v", err)
	}
}
