package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCoverage_PrescriptionIndexRecomputedAfterCancel(t *testing.T) {
	f := newFixture(t)
	rx := f.addPrescription(nil)

	var created []*Booking
	for i := 0; i < 3; i++ {
		created = append(created, f.mustCreate(t, f.withPrescription(daySlot(i), rx)))
	}
	for i, b := range created {
		if b.CoverageSource() != SourcePrescription || *b.SessionIndex != i+1 {
			t.Errorf("booking %d: expected prescription index %d, got %s/%v", i, i+1, b.CoverageSource(), *b.SessionIndex)
		}
	}

	if _, err := f.svc.Cancel(context.Background(), created[0].ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	next := f.mustCreate(t, f.withPrescription(daySlot(10), rx))
	if *next.SessionIndex != 3 {
		t.Errorf("expected index 3 after a sibling was cancelled, got %d", *next.SessionIndex)
	}
}

func TestCoverage_PrescriptionCapFallsBackToAnnual(t *testing.T) {
	f := newFixture(t)
	rx := f.addPrescription(intPtr(18))

	var last *Booking
	for i := 0; i < 18; i++ {
		last = f.mustCreate(t, f.withPrescription(daySlot(i), rx))
	}
	if last.CoverageSource() != SourcePrescription || *last.SessionIndex != 18 {
		t.Fatalf("expected 18th booking on the prescription with index 18, got %s/%d", last.CoverageSource(), *last.SessionIndex)
	}
	if last.IsOverAnnual {
		t.Error("prescription coverage must never be over-annual")
	}

	_, err := f.svc.Create(context.Background(), f.withPrescription(daySlot(18), rx))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "pathology_category_id" {
		t.Fatalf("expected ValidationError on pathology_category_id, got %v", err)
	}

	req := f.withPrescription(daySlot(18), rx)
	req.PathologyCategoryID = &f.pc
	b, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CoverageSource() != SourceAnnual {
		t.Fatalf("expected annual coverage, got %s", b.CoverageSource())
	}
	if b.PrescriptionID() != nil {
		t.Error("expected the prescription link to be dropped")
	}
	if *b.SessionIndex != 1 {
		t.Errorf("expected first annual session, got %d", *b.SessionIndex)
	}
	if b.ProcedureCode != "567011" {
		t.Errorf("expected PC first-session code, got %s", b.ProcedureCode)
	}
}

func TestCoverage_AnnualQuota(t *testing.T) {
	f := newFixture(t)

	var last *Booking
	for i := 0; i < AnnualQuota; i++ {
		last = f.mustCreate(t, f.annual(daySlot(i)))
		if last.IsOverAnnual {
			t.Fatalf("session %d flagged over-annual", i+1)
		}
	}
	if *last.SessionIndex != AnnualQuota {
		t.Errorf("expected index %d, got %d", AnnualQuota, *last.SessionIndex)
	}

	over := f.mustCreate(t, f.annual(daySlot(AnnualQuota)))
	if !over.IsOverAnnual || *over.SessionIndex != AnnualQuota+1 {
		t.Errorf("expected session 19 to be over-annual, got %v/%d", over.IsOverAnnual, *over.SessionIndex)
	}

	// A new calendar year starts a new count.
	next := f.annual(daySlot(0).AddDate(1, 0, 0))
	b, err := f.svc.coverage.Resolve(context.Background(), Draft{PatientID: f.patient, Start: next.Start, CategoryID: next.PathologyCategoryID}, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SessionIndex != 1 || b.IsOverAnnual {
		t.Errorf("expected index 1 in the next year, got %d/%v", b.SessionIndex, b.IsOverAnnual)
	}
}

func TestCoverage_AnnualRequiresCategory(t *testing.T) {
	f := newFixture(t)
	req := f.annual(at(10, 0))
	req.PathologyCategoryID = nil
	_, err := f.svc.Create(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.repo.store) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestCoverage_PrescriptionChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.withPrescription(at(10, 0), uuid.New())); !isValidation(err) {
		t.Errorf("expected validation error for unknown prescription, got %v", err)
	}

	rx := f.addPrescription(nil)
	f.rx[rx].PatientID = uuid.New()
	if _, err := f.svc.Create(ctx, f.withPrescription(at(10, 0), rx)); !isValidation(err) {
		t.Errorf("expected validation error for another patient's prescription, got %v", err)
	}

	rx = f.addPrescription(nil)
	f.rx[rx].Active = false
	if _, err := f.svc.Create(ctx, f.withPrescription(at(10, 0), rx)); !isValidation(err) {
		t.Errorf("expected validation error for inactive prescription, got %v", err)
	}
}

func isValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
